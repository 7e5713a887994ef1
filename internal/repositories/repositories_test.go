package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/matcher"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/session"
	"github.com/desertthunder/crate/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "transfers")
		if err != nil {
			t.Fatalf("NextSequence() error = %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(db, "missing"); err == nil {
		t.Error("expected error for unknown sequence table")
	}
}

func TestTransferRepository(t *testing.T) {
	t.Run("Create and Get", func(t *testing.T) {
		repo := NewTransferRepository(setupTestDB(t))
		rec := models.NewTransferRecord("", "tidal", ModeTransfer, 3)

		if err := repo.Create(rec); err != nil {
			t.Fatalf("failed to create transfer: %v", err)
		}
		if rec.ID() == "" || rec.Sequence() != 1 {
			t.Errorf("expected generated id and sequence 1, got %q #%d", rec.ID(), rec.Sequence())
		}

		got, err := repo.Get(rec.ID())
		if err != nil {
			t.Fatalf("failed to get transfer: %v", err)
		}
		if got.Destination() != "tidal" || got.TotalItems() != 3 || got.Status() != models.StatusPending {
			t.Errorf("unexpected transfer: %+v", got)
		}
	})

	t.Run("Create rejects invalid records", func(t *testing.T) {
		repo := NewTransferRepository(setupTestDB(t))
		err := repo.Create(models.NewTransferRecord("x", "", ModeTransfer, 1))
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := NewTransferRepository(setupTestDB(t))
		rec := models.NewTransferRecord("t1", "spotify", ModeTransfer, 2)
		if err := repo.Create(rec); err != nil {
			t.Fatal(err)
		}

		rec.Start(time.Now())
		rec.SetProgress(2, 1)
		rec.Finish(time.Now(), errors.New("boom"))
		if err := repo.Update(rec); err != nil {
			t.Fatalf("failed to update transfer: %v", err)
		}

		got, _ := repo.Get("t1")
		if got.Status() != models.StatusFailed || got.ErrorMessage() != "boom" || got.Succeeded() != 1 {
			t.Errorf("unexpected transfer after update: status=%s err=%q", got.Status(), got.ErrorMessage())
		}
		if got.StartedAt() == nil || got.CompletedAt() == nil {
			t.Error("expected timestamps to be stored")
		}
	})

	t.Run("Delete is soft", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewTransferRepository(db)
		rec := models.NewTransferRecord("t1", "spotify", ModeTransfer, 1)
		if err := repo.Create(rec); err != nil {
			t.Fatal(err)
		}

		if err := repo.Delete("t1"); err != nil {
			t.Fatalf("failed to delete transfer: %v", err)
		}
		if _, err := repo.Get("t1"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.Delete("t1"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}

		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM transfers").Scan(&n); err != nil || n != 1 {
			t.Errorf("expected row to remain, count=%d err=%v", n, err)
		}
	})

	t.Run("List filters and orders", func(t *testing.T) {
		repo := NewTransferRepository(setupTestDB(t))
		for _, dest := range []string{"tidal", "spotify", "tidal"} {
			if err := repo.Create(models.NewTransferRecord("", dest, ModeTransfer, 1)); err != nil {
				t.Fatal(err)
			}
		}

		all, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list transfers: %v", err)
		}
		if len(all) != 3 || all[0].Sequence() != 3 {
			t.Errorf("expected 3 transfers newest first, got %d", len(all))
		}

		tidal, _ := repo.List(map[string]any{"destination": "tidal"})
		if len(tidal) != 2 {
			t.Errorf("expected 2 tidal transfers, got %d", len(tidal))
		}

		limited, _ := repo.List(map[string]any{"limit": 1})
		if len(limited) != 1 {
			t.Errorf("expected 1 transfer, got %d", len(limited))
		}
	})
}

func TestTransferRepositoryRecord(t *testing.T) {
	ctx := context.Background()
	job := models.TransferJob{
		ID:          "job-1",
		Destination: "tidal",
		Tracks:      []models.Track{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}},
	}

	t.Run("completed session with report", func(t *testing.T) {
		repo := NewTransferRepository(setupTestDB(t))
		s := session.New(job)
		if err := s.Start(2); err != nil {
			t.Fatal(err)
		}
		if err := repo.Record(ctx, s.Snapshot(), nil); err != nil {
			t.Fatalf("Record() running error = %v", err)
		}

		s.Advance(models.KindTrack, "A", true)
		s.Advance(models.KindTrack, "B", false)
		report := &models.Report{
			TransferID:  "job-1",
			Destination: "tidal",
			Succeeded:   1,
			Total:       2,
			Tracks:      []models.FailureRecord{{Kind: models.KindTrack, Label: "B", Reason: "no match"}},
		}
		if err := s.Complete(report); err != nil {
			t.Fatal(err)
		}
		if err := repo.Record(ctx, s.Snapshot(), report); err != nil {
			t.Fatalf("Record() completed error = %v", err)
		}

		got, err := repo.Get("job-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status() != models.StatusCompleted || got.CompletedItems() != 2 || got.Succeeded() != 1 {
			t.Errorf("status=%s completed=%d succeeded=%d", got.Status(), got.CompletedItems(), got.Succeeded())
		}
		if got.Sequence() != 1 {
			t.Errorf("expected a single row, sequence = %d", got.Sequence())
		}

		stored, err := repo.Report("job-1")
		if err != nil {
			t.Fatalf("Report() error = %v", err)
		}
		if len(stored.Tracks) != 1 || stored.Tracks[0].Kind != models.KindTrack || stored.Tracks[0].Reason != "no match" {
			t.Errorf("unexpected report: %+v", stored)
		}
	})

	t.Run("failed session keeps the error", func(t *testing.T) {
		repo := NewTransferRepository(setupTestDB(t))
		s := session.New(job)
		if err := s.Fail(shared.ErrUnauthenticated, nil); err != nil {
			t.Fatal(err)
		}
		if err := repo.Record(ctx, s.Snapshot(), nil); err != nil {
			t.Fatalf("Record() error = %v", err)
		}

		got, _ := repo.Get("job-1")
		if got.Status() != models.StatusFailed || got.ErrorMessage() != shared.ErrUnauthenticated.Error() {
			t.Errorf("status=%s err=%q", got.Status(), got.ErrorMessage())
		}
		if _, err := repo.Report("job-1"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing report, got %v", err)
		}
	})

	t.Run("guide sessions", func(t *testing.T) {
		repo := NewTransferRepository(setupTestDB(t))
		s := session.New(job)
		_ = s.Start(2)
		s.SetGuide(&models.Guide{TransferID: "job-1"})
		_ = s.Complete(&models.Report{TransferID: "job-1"})

		if err := repo.Record(ctx, s.Snapshot(), s.Report()); err != nil {
			t.Fatal(err)
		}
		got, _ := repo.Get("job-1")
		if got.Mode() != ModeGuide {
			t.Errorf("expected guide mode, got %q", got.Mode())
		}
	})
}

func TestMatchRepository(t *testing.T) {
	ctx := context.Background()
	key := matcher.Key{Destination: "tidal", Kind: models.KindTrack, SourceID: "sp-1"}

	t.Run("Store and Lookup", func(t *testing.T) {
		repo := NewMatchRepository(setupTestDB(t))

		if _, ok, err := repo.Lookup(ctx, key); err != nil || ok {
			t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
		}

		entry := matcher.Entry{DestinationID: "td-9", Confidence: models.ConfidenceExact}
		if err := repo.Store(ctx, key, entry); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		if err := repo.Store(ctx, key, matcher.Entry{DestinationID: "td-10", Confidence: models.ConfidenceISRC}); err != nil {
			t.Fatalf("Store() overwrite error = %v", err)
		}

		got, ok, err := repo.Lookup(ctx, key)
		if err != nil || !ok {
			t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
		}
		if got.DestinationID != "td-10" || got.Confidence != models.ConfidenceISRC {
			t.Errorf("unexpected entry: %+v", got)
		}

		other := key
		other.Kind = models.KindAlbum
		if _, ok, _ := repo.Lookup(ctx, other); ok {
			t.Error("kinds must not share entries")
		}

		stats, err := repo.Stats(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if stats.Hits != 1 || stats.Misses != 2 || stats.Entries != 1 {
			t.Errorf("unexpected stats: %+v", stats)
		}
	})

	t.Run("failure backoff", func(t *testing.T) {
		repo := NewMatchRepository(setupTestDB(t))
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

		if err := repo.RecordFailure(ctx, key, "no match", now); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
		if skip, _ := repo.ShouldSkip(ctx, key, now.Add(time.Hour)); !skip {
			t.Error("expected skip within backoff")
		}
		if skip, _ := repo.ShouldSkip(ctx, key, now.Add(matcher.FailureBackoff(1)+time.Second)); skip {
			t.Error("expected retry after backoff")
		}

		if err := repo.RecordFailure(ctx, key, "no match", now); err != nil {
			t.Fatal(err)
		}
		if skip, _ := repo.ShouldSkip(ctx, key, now.Add(matcher.FailureBackoff(1)+time.Second)); !skip {
			t.Error("second failure should double the backoff")
		}

		if err := repo.ClearFailure(ctx, key); err != nil {
			t.Fatal(err)
		}
		if skip, _ := repo.ShouldSkip(ctx, key, now); skip {
			t.Error("expected no skip after clear")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		repo := NewMatchRepository(setupTestDB(t))
		other := matcher.Key{Destination: "spotify", Kind: models.KindTrack, SourceID: "x"}
		_ = repo.Store(ctx, key, matcher.Entry{DestinationID: "a", Confidence: models.ConfidenceExact})
		_ = repo.Store(ctx, other, matcher.Entry{DestinationID: "b", Confidence: models.ConfidenceFuzzy})
		_ = repo.RecordFailure(ctx, key, "no match", time.Now())

		n, err := repo.Clear(ctx, "tidal")
		if err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 rows removed, got %d", n)
		}

		stats, _ := repo.Stats(ctx, "")
		if stats.Entries != 1 || stats.Failures != 0 {
			t.Errorf("unexpected stats after clear: %+v", stats)
		}
	})

	t.Run("works as matcher cache", func(t *testing.T) {
		var _ matcher.Cache = (*MatchRepository)(nil)
		var _ matcher.FailureCache = (*MatchRepository)(nil)
	})
}
