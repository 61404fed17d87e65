package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/gridflow/internal/errdefs"
)

// errFilesystemUnknown is returned by detectors on platforms without statfs.
var errFilesystemUnknown = errors.New("filesystem type unknown")

var networkFilesystems = map[string]struct{}{
	"afpfs":      {},
	"cifs":       {},
	"fuse.sshfs": {},
	"lustre":     {},
	"nfs":        {},
	"nfs4":       {},
	"smbfs":      {},
	"smb2":       {},
	"webdav":     {},
}

// validateSQLiteFilesystem ensures the DB path is on a local filesystem.
// Idempotent inserts rely on SQLite's file locks, which network filesystems
// do not honour.
func validateSQLiteFilesystem(path string) error {
	return validateSQLiteFilesystemWithDetector(path, detectFilesystemType)
}

func validateSQLiteFilesystemWithDetector(path string, detector func(string) (string, error)) error {
	if path == "" {
		return errdefs.InvalidArgument("storage.Open", "sqlite path is empty")
	}

	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, err := detector(inspectPath)
	if errors.Is(err, errFilesystemUnknown) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}

	if isNetworkFilesystem(fsType) {
		return errdefs.InvalidArgument("storage.Open",
			"bookkeeping store %q is on %s, a network mount; concurrent fileset and subscription inserts need local file locks (move store.path to local disk or switch store.backend)",
			path,
			fsType,
		)
	}

	return nil
}

func nearestExistingPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	candidate := absPath
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", absPath)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	normalized := strings.TrimSpace(strings.ToLower(fsType))
	_, found := networkFilesystems[normalized]
	return found
}
