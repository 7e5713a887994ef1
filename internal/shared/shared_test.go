package shared

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func TestNormalizeTrackKey(t *testing.T) {
	tc := []struct {
		name   string
		title  string
		artist string
		want   string
	}{
		{
			name:   "basic normalization",
			title:  "Song Title",
			artist: "Artist Name",
			want:   "song title|artist name",
		},
		{
			name:   "extra whitespace",
			title:  "  Song   Title  ",
			artist: "  Artist   Name  ",
			want:   "song title|artist name",
		},
		{
			name:   "mixed case",
			title:  "SoNg TiTlE",
			artist: "ArTiSt NaMe",
			want:   "song title|artist name",
		},
		{
			name:   "diacritics and punctuation",
			title:  "Café del Mar!",
			artist: "Beyoncé",
			want:   "cafe del mar|beyonce",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTrackKey(tt.title, tt.artist)
			if got != tt.want {
				t.Errorf("NormalizeTrackKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tc := []struct {
		in   string
		want string
	}{
		{in: "Don't Stop Me Now", want: "dont stop me now"},
		{in: "Simon & Garfunkel", want: "simon and garfunkel"},
		{in: "Sigur Rós", want: "sigur ros"},
		{in: "AC/DC", want: "ac dc"},
		{in: "   ", want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSimplify(t *testing.T) {
	tc := []struct {
		in   string
		want string
	}{
		{in: "Yesterday - Remastered 2009", want: "Yesterday"},
		{in: "Hello (Live)", want: "Hello"},
		{in: "Track [Bonus]", want: "Track"},
		{in: "Song feat. Someone", want: "Song"},
		{in: "Plain", want: "Plain"},
		{in: "(Intro)", want: "(Intro)"},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			if got := Simplify(tt.in); got != tt.want {
				t.Errorf("Simplify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tc := map[int]string{0: "0:00", 5: "0:05", 185: "3:05", 3725: "1:02:05"}
	for in, want := range tc {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%d) = %s, want %s", in, got, want)
		}
	}
}

func TestSplitIDs(t *testing.T) {
	got := SplitIDs("a, b,,c", "d", " ")
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitIDs() = %v, want %v", got, want)
	}
}

func TestErrors(t *testing.T) {
	t.Run("RateLimitError unwraps", func(t *testing.T) {
		err := fmt.Errorf("search: %w", &RateLimitError{RetryAfter: 2 * time.Second, Service: "TIDAL"})

		if !errors.Is(err, ErrRateLimited) {
			t.Error("expected errors.Is(err, ErrRateLimited)")
		}
		if got := RetryAfter(err); got != 2*time.Second {
			t.Errorf("expected retry after 2s, got %s", got)
		}
		if !IsRetryable(err) {
			t.Error("expected rate limit to be retryable")
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		tc := []struct {
			err  error
			want bool
		}{
			{err: fmt.Errorf("%w: status 502", ErrTransport), want: true},
			{err: fmt.Errorf("%w: status 401", ErrUnauthenticated), want: false},
			{err: ErrEmptySelection, want: false},
			{err: nil, want: false},
		}
		for _, tt := range tc {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		}
	})

	t.Run("RetryAfter without hint", func(t *testing.T) {
		if got := RetryAfter(ErrTransport); got != 0 {
			t.Errorf("expected zero, got %s", got)
		}
	})
}

func TestTransferLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireTransferLock(dir, "user@example.com:tidal")
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	if _, err := AcquireTransferLock(dir, "user@example.com:tidal"); !errors.Is(err, ErrTransferInProgress) {
		t.Errorf("expected ErrTransferInProgress, got %v", err)
	}

	other, err := AcquireTransferLock(dir, "user@example.com:spotify")
	if err != nil {
		t.Fatalf("different key should lock independently: %v", err)
	}
	defer other.Release()

	if err := lock.Release(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}

	again, err := AcquireTransferLock(dir, "user@example.com:tidal")
	if err != nil {
		t.Fatalf("expected lock to be free after release: %v", err)
	}
	again.Release()
}

func TestBrowserCommand(t *testing.T) {
	orig := goos
	defer func() { goos = orig }()

	tests := []struct {
		os   string
		want string
	}{
		{"darwin", "open"},
		{"linux", "xdg-open"},
		{"windows", "rundll32"},
	}
	for _, tt := range tests {
		t.Run(tt.os, func(t *testing.T) {
			goos = func() string { return tt.os }
			cmd, err := browserCommand("https://example.com")
			if err != nil {
				t.Fatalf("browserCommand() error = %v", err)
			}
			if got := cmd.Args[0]; got != tt.want {
				t.Errorf("launcher = %q, want %q", got, tt.want)
			}
			if last := cmd.Args[len(cmd.Args)-1]; last != "https://example.com" {
				t.Errorf("url argument = %q", last)
			}
		})
	}

	t.Run("unknown platform", func(t *testing.T) {
		goos = func() string { return "plan9" }
		if err := OpenURL("https://example.com"); !errors.Is(err, ErrUnsupported) {
			t.Errorf("OpenURL() error = %v, want ErrUnsupported", err)
		}
	})
}
