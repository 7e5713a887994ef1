package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/desertthunder/crate/internal/formatter"
	"github.com/desertthunder/crate/internal/session"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tasks"
	"github.com/go-chi/chi/v5"
)

const maxRequestBody = 1 << 20

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"destinations": s.registry.Names(),
	})
}

func (s *Server) listTransfers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

// createTransfer resolves the requested ids against the source library and starts the job.
func (s *Server) createTransfer(w http.ResponseWriter, r *http.Request) {
	var sel tasks.Selection
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&sel); err != nil {
		writeError(w, fmt.Errorf("%w: malformed request body: %v", shared.ErrInvalidInput, err))
		return
	}
	if sel.Empty() {
		writeError(w, fmt.Errorf("%w: no tracks, albums or playlists selected", shared.ErrEmptySelection))
		return
	}

	dest, err := s.registry.Get(sel.Destination)
	if err != nil {
		writeError(w, err)
		return
	}
	sel.Destination = dest.Name()

	key := session.Key(s.user, dest.Name())
	var lock *shared.TransferLock
	if s.lockDir != "" {
		if lock, err = shared.AcquireTransferLock(s.lockDir, key); err != nil {
			writeError(w, err)
			return
		}
	}

	job, err := tasks.ResolveSelection(r.Context(), s.source, sel, s.pageSize)
	if err != nil {
		_ = lock.Release()
		writeError(w, err)
		return
	}

	sess, err := s.engine.Launch(r.Context(), s.sessions, job, dest, key)
	if err != nil {
		_ = lock.Release()
		writeError(w, err)
		return
	}
	if lock != nil {
		go func() {
			<-sess.Done()
			if err := lock.Release(); err != nil {
				s.logger.Warn("failed to release transfer lock", "path", lock.Path(), "error", err)
			}
		}()
	}

	s.logger.Info("transfer accepted", "transfer_id", sess.ID(), "destination", dest.Name(), "items", job.TotalItems())
	writeJSON(w, http.StatusAccepted, map[string]string{"id": sess.ID()})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) getTransfer(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, sess.Snapshot())
	}
}

// cancelTransfer requests cooperative cancellation; items already in flight finish.
func (s *Server) cancelTransfer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if sess.Phase().Terminal() {
		writeError(w, fmt.Errorf("%w: transfer already %s", shared.ErrInvalidTransition, sess.Phase()))
		return
	}
	sess.Cancel()
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

// transferEvents streams one server-sent event per snapshot until the session is terminal or the
// client goes away.
func (s *Server) transferEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	send := func(event string, snap session.Snapshot) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send("progress", sess.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-updates:
			if !open {
				_ = send("done", sess.Snapshot())
				return
			}
			if err := send("progress", snap); err != nil {
				return
			}
		}
	}
}

// transferReport serves the failure report of a finished transfer as a text download, or YAML
// with ?format=yaml.
func (s *Server) transferReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	report := sess.Report()
	if report == nil {
		writeError(w, fmt.Errorf("%w: no report for transfer %s (%s)", shared.ErrNotFound, sess.ID(), sess.Phase()))
		return
	}

	var buf bytes.Buffer
	contentType, ext := "text/plain; charset=utf-8", "txt"
	if r.URL.Query().Get("format") == formatter.FormatYAML {
		data, err := formatter.ReportYAML(report)
		if err != nil {
			writeError(w, err)
			return
		}
		buf.Write(data)
		contentType, ext = "application/yaml", "yaml"
	} else if err := formatter.WriteFailureReport(&buf, report); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transfer-%s.%s"`, sess.ID(), ext))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) transferGuide(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	guide := sess.Guide()
	if guide == nil {
		writeError(w, fmt.Errorf("%w: transfer %s has no guide", shared.ErrNotFound, sess.ID()))
		return
	}

	switch r.URL.Query().Get("format") {
	case formatter.FormatYAML:
		data, err := formatter.GuideYAML(guide)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(data)
	case formatter.FormatText:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_ = formatter.WriteGuide(w, guide)
	default:
		writeJSON(w, http.StatusOK, guide)
	}
}
