// Package ankipath locates the host application's addon directory.
package ankipath

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// EnvAddonsDir overrides the detected addon directory.
const EnvAddonsDir = "ANKI_ADDONS_DIR"

// AddonsDir returns $ANKI_ADDONS_DIR or the platform default.
func AddonsDir() (string, error) {
	return resolve(runtime.GOOS, os.Getenv, os.UserHomeDir)
}

func resolve(goos string, getenv func(string) string, home func() (string, error)) (string, error) {
	if dir := getenv(EnvAddonsDir); dir != "" {
		return dir, nil
	}
	if goos == "windows" {
		appData := getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA is not set; set " + EnvAddonsDir)
		}
		return filepath.Join(appData, "Anki2", "addons21"), nil
	}
	dir, err := home()
	if err != nil {
		return "", err
	}
	if goos == "darwin" {
		return filepath.Join(dir, "Library", "Application Support", "Anki2", "addons21"), nil
	}
	return filepath.Join(dir, ".local", "share", "Anki2", "addons21"), nil
}
