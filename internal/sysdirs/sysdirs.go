// Package sysdirs resolves platform-appropriate per-user paths for
// application data, the local-app-data equivalent of each OS.
package sysdirs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "backupnow"

// DataRoot resolves the per-user application data root:
// %LOCALAPPDATA% on Windows, ~/Library/Application Support on macOS,
// $XDG_DATA_HOME (or ~/.local/share) elsewhere.
func DataRoot() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "AppData", "Local"), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return dir, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
}

// AppData returns the path of name inside this application's data
// directory. The directory is not created.
func AppData(name string) (string, error) {
	root, err := DataRoot()
	if err != nil {
		return "", fmt.Errorf("resolving data root: %w", err)
	}
	return filepath.Join(root, appDirName, name), nil
}

// EnsureAppDir creates the application data directory if needed and
// returns its path.
func EnsureAppDir() (string, error) {
	root, err := DataRoot()
	if err != nil {
		return "", fmt.Errorf("resolving data root: %w", err)
	}
	dir := filepath.Join(root, appDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}
