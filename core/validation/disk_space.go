package validation

import (
	"fmt"
	"os"
	"path/filepath"

	"preview_engine/core"
)

// DefaultMinFreeBytes is the free space below which the disk check warns.
// Render history and logs are small; this only catches a full disk.
const DefaultMinFreeBytes = 100 * core.BytesPerMB

// DiskSpaceInfo contains information about disk space.
type DiskSpaceInfo struct {
	Path  string
	Total int64
	Free  int64
}

// GetDiskSpace returns disk space information for the filesystem holding
// path. Missing paths are resolved to their closest existing ancestor.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	dir, err := existingAncestor(path)
	if err != nil {
		return nil, err
	}
	total, free, err := freeSpace(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", dir, err)
	}
	return &DiskSpaceInfo{Path: dir, Total: total, Free: free}, nil
}

func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		info, err := os.Stat(p)
		if err == nil {
			if !info.IsDir() {
				return filepath.Dir(p), nil
			}
			return p, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("cannot access path %s: %w", p, err)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		p = parent
	}
}
