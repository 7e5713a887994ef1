package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/auth"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/session"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tasks"
	tu "github.com/desertthunder/crate/internal/testing"
	"golang.org/x/oauth2"
)

func fixtureLibrary() *tu.FakeLibrary {
	return &tu.FakeLibrary{
		Tracks: []models.Track{
			{ID: "t1", Title: "One", Artists: []string{"A"}},
			{ID: "t2", Title: "Two", Artists: []string{"B"}},
		},
		Lists: []models.Playlist{{ID: "pl1", Name: "Mix", TrackCount: 1}},
		ListItems: map[string][]models.Track{
			"pl1": {{ID: "p1", Title: "P1", Artists: []string{"C"}}},
		},
	}
}

func fixtureCatalog() *tu.FakeCatalog {
	return tu.NewFakeCatalog("dest").
		AddTrack("One A", models.Candidate{ID: "d1", Title: "One", Artists: []string{"A"}}).
		AddTrack("P1 C", models.Candidate{ID: "dp1", Title: "P1", Artists: []string{"C"}})
}

type fixture struct {
	srv      *Server
	dest     *tu.FakeCatalog
	sessions *session.Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dest := fixtureCatalog()
	engine := tasks.NewEngine(
		tasks.Options{Concurrency: 2, BatchSize: 10, MaxAttempts: 1},
		tasks.WithLogger(shared.NewLogger(nil)),
	)
	sessions := session.NewManager(time.Hour, time.Now)
	registry := services.NewRegistry(dest, tu.SearchOnly(tu.NewFakeCatalog("guide-only")))

	opts = append([]Option{WithLogger(shared.NewLogger(nil))}, opts...)
	return &fixture{
		srv:      New(engine, sessions, registry, fixtureLibrary(), opts...),
		dest:     dest,
		sessions: sessions,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

// start posts body and waits for the transfer to finish.
func (f *fixture) start(t *testing.T, body string) *session.Session {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/transfers", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct{ ID string }
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	sess, err := f.sessions.Get(resp.ID)
	if err != nil {
		t.Fatalf("session %q not registered: %v", resp.ID, err)
	}

	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not finish")
	}
	return sess
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body, got %q", rec.Body.String())
	}
	return body.Error
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"dest"`) {
		t.Errorf("expected destinations in body, got %s", rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
}

func TestCreateTransfer(t *testing.T) {
	t.Run("runs transfer to completion", func(t *testing.T) {
		f := newFixture(t)
		sess := f.start(t, `{"destination":"dest","tracks":["t1","t2"],"playlists":["pl1"]}`)

		snap := sess.Snapshot()
		if snap.Phase != session.Completed {
			t.Fatalf("expected completed, got %s (%s)", snap.Phase, snap.Error)
		}
		if snap.Total != 3 || snap.Completed != 3 || snap.Succeeded != 2 {
			t.Errorf("unexpected counts: %+v", snap)
		}
		if got := f.dest.Saved(tu.OpSaveTracks); len(got) != 1 || got[0] != "d1" {
			t.Errorf("expected d1 saved, got %v", got)
		}
	})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed body", `{"destination":`, http.StatusBadRequest},
		{"empty selection", `{"destination":"dest"}`, http.StatusBadRequest},
		{"unknown destination", `{"destination":"nowhere","tracks":["t1"]}`, http.StatusNotFound},
		{"unknown track id", `{"destination":"dest","tracks":["missing"]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodPost, "/api/transfers", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if decodeError(t, rec) == "" {
				t.Error("expected error message")
			}
			if f.dest.TotalCalls() != 0 {
				t.Errorf("expected no destination calls, got %d", f.dest.TotalCalls())
			}
		})
	}

	t.Run("rejects a second transfer to the same destination", func(t *testing.T) {
		f := newFixture(t)
		f.dest.SetDelay(200 * time.Millisecond)

		first := f.do(t, http.MethodPost, "/api/transfers", `{"destination":"dest","tracks":["t1"]}`)
		if first.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", first.Code)
		}
		second := f.do(t, http.MethodPost, "/api/transfers", `{"destination":"dest","tracks":["t2"]}`)
		if second.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", second.Code, second.Body.String())
		}
	})

	t.Run("cross-process lock", func(t *testing.T) {
		dir := t.TempDir()
		lock, err := shared.AcquireTransferLock(dir, session.Key("local", "dest"))
		if err != nil {
			t.Fatalf("failed to take lock: %v", err)
		}
		defer lock.Release()

		f := newFixture(t, WithLockDir(dir))
		rec := f.do(t, http.MethodPost, "/api/transfers", `{"destination":"dest","tracks":["t1"]}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})
}

func TestGetTransfer(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, `{"destination":"dest","tracks":["t2"]}`)

	t.Run("snapshot", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/transfers/"+sess.ID(), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var snap session.Snapshot
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			t.Fatalf("failed to decode snapshot: %v", err)
		}
		if snap.ID != sess.ID() || snap.Phase != session.Completed || snap.Percent != 100 {
			t.Errorf("unexpected snapshot: %+v", snap)
		}
	})

	t.Run("list", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/transfers", "")
		var snaps []session.Snapshot
		if err := json.Unmarshal(rec.Body.Bytes(), &snaps); err != nil {
			t.Fatalf("failed to decode list: %v", err)
		}
		if len(snaps) != 1 {
			t.Errorf("expected 1 session, got %d", len(snaps))
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/transfers/nope", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestTransferReport(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, `{"destination":"dest","tracks":["t1","t2"]}`)

	t.Run("text download", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/transfers/"+sess.ID()+"/report", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "transfer-"+sess.ID()+".txt") {
			t.Errorf("unexpected disposition %q", cd)
		}
		if !strings.Contains(rec.Body.String(), "B - Two") {
			t.Errorf("expected unmatched track in report, got:\n%s", rec.Body.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/transfers/"+sess.ID()+"/report?format=yaml", "")
		if rec.Header().Get("Content-Type") != "application/yaml" {
			t.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
		}
		if !strings.Contains(rec.Body.String(), "B - Two") {
			t.Errorf("expected unmatched track in yaml, got:\n%s", rec.Body.String())
		}
	})

	t.Run("guide absent for transfers", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/transfers/"+sess.ID()+"/guide", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestTransferGuide(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, `{"destination":"guide-only","tracks":["t1"]}`)

	rec := f.do(t, http.MethodGet, "/api/transfers/"+sess.ID()+"/guide", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var guide models.Guide
	if err := json.Unmarshal(rec.Body.Bytes(), &guide); err != nil {
		t.Fatalf("failed to decode guide: %v", err)
	}
	if guide.Destination != "guide-only" {
		t.Errorf("unexpected guide destination %q", guide.Destination)
	}

	rec = f.do(t, http.MethodGet, "/api/transfers/"+sess.ID()+"/guide?format=txt", "")
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
}

func TestCancelTransfer(t *testing.T) {
	f := newFixture(t)
	f.dest.SetDelay(100 * time.Millisecond)

	rec := f.do(t, http.MethodPost, "/api/transfers", `{"destination":"dest","tracks":["t1","t2"],"playlists":["pl1"]}`)
	var resp struct{ ID string }
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)

	rec = f.do(t, http.MethodDelete, "/api/transfers/"+resp.ID, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	sess, _ := f.sessions.Get(resp.ID)
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not stop")
	}
	if sess.Phase() != session.Failed {
		t.Errorf("expected failed, got %s", sess.Phase())
	}

	rec = f.do(t, http.MethodGet, "/api/transfers/"+resp.ID+"/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the partial report, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Body.String(), "Transfer "+resp.ID+" to dest:") {
		t.Errorf("unexpected report:\n%s", rec.Body.String())
	}

	rec = f.do(t, http.MethodDelete, "/api/transfers/"+resp.ID, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for finished transfer, got %d", rec.Code)
	}
}

func TestTransferEvents(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	sess := f.start(t, `{"destination":"dest","tracks":["t1"]}`)

	resp, err := http.Get(ts.URL + "/api/transfers/" + sess.ID() + "/events")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	if len(events) == 0 || events[len(events)-1] != "done" {
		t.Errorf("expected stream to end with done, got %v", events)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.ErrEmptySelection, http.StatusBadRequest},
		{shared.ErrStateMismatch, http.StatusBadRequest},
		{shared.ErrUnauthenticated, http.StatusUnauthorized},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrUnknownDestination, http.StatusNotFound},
		{shared.ErrTransferInProgress, http.StatusConflict},
		{&shared.RateLimitError{Service: "x"}, http.StatusTooManyRequests},
		{shared.ErrTransport, http.StatusBadGateway},
		{shared.ErrNotImplemented, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestOAuthHandler(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	newFlow := func(t *testing.T) *auth.PKCEFlow {
		flow, err := auth.NewPKCEFlow(&oauth2.Config{
			ClientID: "client",
			Endpoint: oauth2.Endpoint{AuthURL: tokenServer.URL + "/authorize", TokenURL: tokenServer.URL + "/token"},
		})
		if err != nil {
			t.Fatalf("failed to create flow: %v", err)
		}
		return flow
	}

	t.Run("exchanges code", func(t *testing.T) {
		flow := newFlow(t)
		h := NewOAuthHandler(flow, "spotify")
		router := CallbackRouter(h)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state="+flow.State()+"&code=abc", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "Connected to spotify") {
			t.Errorf("unexpected page: %s", rec.Body.String())
		}

		res := <-h.Result()
		if res.Error() != nil || res.Token == nil || res.Token.AccessToken != "at" {
			t.Errorf("unexpected result: %+v (%v)", res.Token, res.Error())
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state="+flow.State()+"&code=abc", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected replayed callback to be rejected, got %d", rec.Code)
		}
	})

	t.Run("state mismatch", func(t *testing.T) {
		h := NewOAuthHandler(newFlow(t), "spotify")
		rec := httptest.NewRecorder()
		CallbackRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=forged&code=abc", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if res := <-h.Result(); res.Error() == nil {
			t.Error("expected error result")
		}
	})

	t.Run("provider error", func(t *testing.T) {
		flow := newFlow(t)
		h := NewOAuthHandler(flow, "spotify")
		rec := httptest.NewRecorder()
		CallbackRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state="+flow.State()+"&error=access_denied", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if res := <-h.Result(); res.Error() == nil || !strings.Contains(res.Error().Error(), "access_denied") {
			t.Errorf("unexpected result error: %v", res.Error())
		}
	})
}
