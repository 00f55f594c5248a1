package core

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the application name used in data directory paths.
const AppName = "previewd"

// ServiceDataDirectory returns the platform data directory used when
// previewd runs as an OS service, where the working directory is not
// meaningful.
//
// Paths by platform:
//   - Windows: %PROGRAMDATA%\previewd
//   - Linux/macOS: /var/lib/previewd
func ServiceDataDirectory() string {
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("PROGRAMDATA"); pd != "" {
			return filepath.Join(pd, AppName)
		}
		return filepath.Join(`C:\ProgramData`, AppName)
	}
	return filepath.Join("/var/lib", AppName)
}

// EnsureDataDirectory creates dir if needed and checks that files can be
// created in it.
func EnsureDataDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ErrDataDirUnwritable(dir, err.Error())
	}
	check, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return ErrDataDirUnwritable(dir, err.Error())
	}
	name := check.Name()
	check.Close()
	if err := os.Remove(name); err != nil {
		return ErrDataDirUnwritable(dir, fmt.Sprintf("cannot remove check file: %v", err))
	}
	return nil
}
