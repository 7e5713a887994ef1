package session

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
	tu "github.com/desertthunder/crate/internal/testing"
)

func testJob() models.TransferJob {
	return models.TransferJob{
		ID:          "job-1",
		Destination: "tidal",
		Tracks:      []models.Track{{ID: "t1", Title: "One"}, {ID: "t2", Title: "Two"}},
		Playlists: []models.Playlist{
			models.Playlist{Name: "Mix"}.WithTracks([]models.Track{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}}),
		},
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Run("pending to running to completed", func(t *testing.T) {
		s := New(testJob())
		if s.Phase() != Pending {
			t.Fatalf("expected pending, got %s", s.Phase())
		}
		if err := s.Start(3); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := s.Start(3); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("second Start() = %v, want ErrInvalidTransition", err)
		}

		s.Advance(models.KindTrack, "One", true)
		s.Advance(models.KindTrack, "Two", false)
		s.Advance(models.KindPlaylist, "Mix", true)

		report := &models.Report{TransferID: s.ID(), Succeeded: 2, Total: 3}
		if err := s.Complete(report); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}

		snap := s.Snapshot()
		if snap.Phase != Completed || snap.Percent != 100 || snap.Completed != 3 || snap.Succeeded != 2 {
			t.Errorf("unexpected snapshot %+v", snap)
		}
		if snap.Tracks.Completed != 2 || snap.Tracks.Succeeded != 1 || snap.Playlists.Completed != 1 {
			t.Errorf("unexpected counters tracks=%+v playlists=%+v", snap.Tracks, snap.Playlists)
		}
		if s.Report() != report {
			t.Error("expected report to be attached")
		}

		select {
		case <-s.Done():
		default:
			t.Error("expected Done to be closed")
		}
	})

	t.Run("terminal phases are final", func(t *testing.T) {
		s := New(testJob())
		_ = s.Start(3)
		if err := s.Fail(shared.ErrUnauthenticated, nil); err != nil {
			t.Fatal(err)
		}

		if err := s.Complete(nil); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("Complete after Fail = %v", err)
		}
		if err := s.Fail(errors.New("again"), nil); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("Fail after Fail = %v", err)
		}
		if !errors.Is(s.Err(), shared.ErrUnauthenticated) {
			t.Errorf("Err() = %v", s.Err())
		}
		if s.Snapshot().Error == "" {
			t.Error("expected error message in snapshot")
		}
	})

	t.Run("failed session keeps its partial report", func(t *testing.T) {
		s := New(testJob())
		_ = s.Start(3)
		s.Advance(models.KindTrack, "A - One", false)

		partial := &models.Report{TransferID: s.ID(), Total: 3, Tracks: []models.FailureRecord{{Kind: models.KindTrack, Label: "A - One", Reason: "no match"}}}
		if err := s.Fail(shared.ErrCancelled, partial); err != nil {
			t.Fatalf("Fail() error = %v", err)
		}
		if s.Report() != partial {
			t.Errorf("Report() = %+v, want the partial report", s.Report())
		}
		if s.Snapshot().Percent == 100 {
			t.Error("a failed session must not claim full progress")
		}
	})

	t.Run("pending may fail without starting", func(t *testing.T) {
		s := New(models.TransferJob{Destination: "tidal"})
		if err := s.Fail(shared.ErrEmptySelection, nil); err != nil {
			t.Fatalf("Fail() error = %v", err)
		}
		if s.Phase() != Failed {
			t.Errorf("expected failed, got %s", s.Phase())
		}
		if err := s.Start(1); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("Start after Fail = %v", err)
		}
	})

	t.Run("complete requires running", func(t *testing.T) {
		s := New(testJob())
		if err := s.Complete(nil); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("Complete from pending = %v", err)
		}
	})

	t.Run("generates id when job has none", func(t *testing.T) {
		s := New(models.TransferJob{Destination: "tidal"})
		if s.ID() == "" || s.Job().ID != s.ID() {
			t.Errorf("expected generated id, got %q / %q", s.ID(), s.Job().ID)
		}
	})
}

func TestSessionProgress(t *testing.T) {
	t.Run("percent floors and never decreases", func(t *testing.T) {
		s := New(testJob())
		_ = s.Start(3)

		want := []int{33, 66, 100}
		prev := 0
		for i, w := range want {
			s.Advance(models.KindTrack, "x", true)
			got := s.Snapshot().Percent
			if got != w {
				t.Errorf("step %d: percent = %d, want %d", i, got, w)
			}
			if got < prev {
				t.Errorf("percent decreased from %d to %d", prev, got)
			}
			prev = got
		}
	})

	t.Run("completed never exceeds total", func(t *testing.T) {
		s := New(testJob())
		_ = s.Start(2)
		for range 5 {
			s.Advance(models.KindTrack, "x", true)
		}
		snap := s.Snapshot()
		if snap.Completed != 2 || snap.Percent != 100 {
			t.Errorf("expected 2/2 at 100%%, got %d/%d at %d%%", snap.Completed, snap.Total, snap.Percent)
		}
	})

	t.Run("advance before start is ignored", func(t *testing.T) {
		s := New(testJob())
		s.Advance(models.KindTrack, "x", true)
		if s.Snapshot().Completed != 0 {
			t.Error("expected no progress while pending")
		}
	})

	t.Run("failures and current label", func(t *testing.T) {
		s := New(testJob())
		_ = s.Start(3)
		s.SetCurrent("Artist - Song")
		s.AddFailure(models.FailureRecord{Kind: models.KindTrack, Label: "Artist - Song", Reason: "no match"})

		snap := s.Snapshot()
		if snap.Current != "Artist - Song" || len(snap.Failures) != 1 {
			t.Errorf("unexpected snapshot %+v", snap)
		}

		snap.Failures[0].Label = "mutated"
		if s.Snapshot().Failures[0].Label != "Artist - Song" {
			t.Error("snapshot must not alias session state")
		}
	})
}

func TestSessionSubscribe(t *testing.T) {
	t.Run("receives latest snapshot and closes at terminal", func(t *testing.T) {
		s := New(testJob())
		ch, cancel := s.Subscribe()
		defer cancel()

		first := <-ch
		if first.Phase != Pending {
			t.Errorf("expected initial pending snapshot, got %s", first.Phase)
		}

		_ = s.Start(3)
		s.Advance(models.KindTrack, "a", true)
		s.Advance(models.KindTrack, "b", true)

		latest := <-ch
		if latest.Completed != 2 {
			t.Errorf("expected latest snapshot with 2 completed, got %d", latest.Completed)
		}

		_ = s.Complete(&models.Report{})
		last, ok := <-ch
		if !ok || last.Phase != Completed {
			t.Errorf("expected terminal snapshot, got %+v (ok=%v)", last, ok)
		}
		if _, ok := <-ch; ok {
			t.Error("expected channel to be closed")
		}
	})

	t.Run("subscribing after terminal yields final snapshot", func(t *testing.T) {
		s := New(testJob())
		_ = s.Fail(shared.ErrCancelled, nil)

		ch, _ := s.Subscribe()
		snap, ok := <-ch
		if !ok || snap.Phase != Failed {
			t.Errorf("expected failed snapshot, got %+v", snap)
		}
		if _, ok := <-ch; ok {
			t.Error("expected closed channel")
		}
	})

	t.Run("unsubscribe closes channel", func(t *testing.T) {
		s := New(testJob())
		ch, cancel := s.Subscribe()
		<-ch
		cancel()
		cancel()
		if _, ok := <-ch; ok {
			t.Error("expected closed channel after unsubscribe")
		}
		_ = s.Start(1)
	})

	t.Run("slow subscriber never blocks", func(t *testing.T) {
		s := New(testJob())
		_, cancel := s.Subscribe()
		defer cancel()

		_ = s.Start(100)
		done := make(chan struct{})
		go func() {
			for range 100 {
				s.Advance(models.KindTrack, "x", true)
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Advance blocked on an unread subscriber")
		}
	})
}

func TestCancel(t *testing.T) {
	s := New(testJob())
	if s.Cancelled() {
		t.Fatal("new session must not be cancelled")
	}
	s.Cancel()
	if !s.Cancelled() {
		t.Error("expected Cancelled after Cancel")
	}
}

func TestSnapshotJSON(t *testing.T) {
	s := New(testJob())
	_ = s.Start(3)

	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["phase"] != "running" {
		t.Errorf("phase = %v, want running", decoded["phase"])
	}
	if _, ok := decoded["failures"].([]any); !ok {
		t.Errorf("failures should encode as a list, got %T", decoded["failures"])
	}

	var back Snapshot
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Phase != Running {
		t.Errorf("decoded phase = %s", back.Phase)
	}
}

func TestManager(t *testing.T) {
	clock := tu.NewClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))

	t.Run("one active session per key", func(t *testing.T) {
		m := NewManager(time.Hour, clock.Now)
		key := Key("me", "Tidal")

		first, err := m.Create(models.TransferJob{Destination: "tidal"}, key)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.Create(models.TransferJob{Destination: "tidal"}, key); !errors.Is(err, shared.ErrTransferInProgress) {
			t.Errorf("expected ErrTransferInProgress, got %v", err)
		}
		if _, err := m.Create(models.TransferJob{Destination: "spotify"}, Key("me", "spotify")); err != nil {
			t.Errorf("other destination should be allowed: %v", err)
		}

		_ = first.Fail(shared.ErrCancelled, nil)
		if _, err := m.Create(models.TransferJob{Destination: "tidal"}, key); err != nil {
			t.Errorf("expected new session after terminal, got %v", err)
		}
	})

	t.Run("get and list", func(t *testing.T) {
		m := NewManager(time.Hour, clock.Now)
		a, _ := m.Create(models.TransferJob{ID: "a", Destination: "tidal"}, "")
		clock.Advance(time.Second)
		b, _ := m.Create(models.TransferJob{ID: "b", Destination: "tidal"}, "")

		got, err := m.Get(a.ID())
		if err != nil || got != a {
			t.Errorf("Get(a) = %v, %v", got, err)
		}
		if _, err := m.Get("missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		list := m.List()
		if len(list) != 2 || list[0].ID != a.ID() || list[1].ID != b.ID() {
			t.Errorf("unexpected list %+v", list)
		}

		if _, err := m.Create(models.TransferJob{ID: "a", Destination: "tidal"}, ""); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected duplicate id error, got %v", err)
		}
	})

	t.Run("sweep drops expired terminal sessions", func(t *testing.T) {
		m := NewManager(30*time.Minute, clock.Now)
		done, _ := m.Create(models.TransferJob{ID: "done", Destination: "tidal"}, Key("me", "tidal"))
		running, _ := m.Create(models.TransferJob{ID: "running", Destination: "spotify"}, Key("me", "spotify"))

		_ = done.Start(1)
		_ = done.Complete(&models.Report{})
		_ = running.Start(1)

		if n := m.Sweep(clock.Now().Add(10 * time.Minute)); n != 0 {
			t.Errorf("Sweep before TTL removed %d", n)
		}
		if n := m.Sweep(clock.Now().Add(31 * time.Minute)); n != 1 {
			t.Errorf("Sweep after TTL removed %d, want 1", n)
		}
		if _, err := m.Get("done"); !errors.Is(err, shared.ErrNotFound) {
			t.Error("expected swept session to be gone")
		}
		if _, err := m.Get("running"); err != nil {
			t.Error("running session must survive sweep")
		}
	})
}
