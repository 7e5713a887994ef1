package shared

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// TransferLock is an advisory file lock held for the lifetime of one transfer so that a second
// process cannot start a transfer for the same user and destination.
type TransferLock struct {
	fl   *flock.Flock
	path string
}

// AcquireTransferLock takes the lock for key inside dir without blocking.
//
// Returns [ErrTransferInProgress] when another holder exists.
func AcquireTransferLock(dir, key string) (*TransferLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	path := filepath.Join(dir, lockName(key))
	fl := flock.New(path)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire transfer lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransferInProgress, key)
	}
	return &TransferLock{fl: fl, path: path}, nil
}

// Path returns the lock file location.
func (l *TransferLock) Path() string {
	return l.path
}

// Release unlocks. Safe to call more than once.
func (l *TransferLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

func lockName(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return "transfer_" + safe + ".lock"
}
