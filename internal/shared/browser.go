package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

var goos = func() string { return runtime.GOOS }

// browserCommand returns the launcher for the current platform.
func browserCommand(url string) (*exec.Cmd, error) {
	switch os := goos(); os {
	case "darwin":
		return exec.Command("open", url), nil
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	default:
		return nil, fmt.Errorf("%w: no browser launcher for %s", ErrUnsupported, os)
	}
}

// OpenURL hands url to the desktop's default browser without waiting for it.
func OpenURL(url string) error {
	cmd, err := browserCommand(url)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return cmd.Process.Release()
}
