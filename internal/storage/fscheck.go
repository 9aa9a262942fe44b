package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is matched by errors.Is on a *NetworkFSError.
var ErrNetworkFilesystem = errors.New("sqlite database is on a network filesystem")

// NetworkFSError reports a state path whose mount cannot give sqlite reliable locks.
type NetworkFSError struct {
	Path   string
	FSType string
}

func (e *NetworkFSError) Error() string {
	return fmt.Sprintf("state.path %q is on network filesystem %q; sqlite needs a local disk for WAL locking", e.Path, e.FSType)
}

func (e *NetworkFSError) Is(target error) bool { return target == ErrNetworkFilesystem }

// remoteFilesystems are the filesystem type names reported for shared mounts.
var remoteFilesystems = []string{"afpfs", "cifs", "nfs", "nfs4", "smbfs", "smb2", "webdav"}

// fsTypeOf is replaced in tests.
var fsTypeOf = filesystemType

// CheckPath fails when the database at path, or the closest directory of it
// that already exists, lives on a network filesystem. The in-memory path is
// always accepted.
func CheckPath(path string) error {
	if path == "" {
		return errors.New("sqlite path is empty")
	}
	if path == MemoryPath {
		return nil
	}

	existing, err := closestExisting(path)
	if err != nil {
		return fmt.Errorf("resolve state path %q: %w", path, err)
	}
	fsType, err := fsTypeOf(existing)
	if err != nil {
		return fmt.Errorf("inspect filesystem of %q: %w", existing, err)
	}
	if isRemote(fsType) {
		return &NetworkFSError{Path: path, FSType: fsType}
	}
	return nil
}

// closestExisting walks up from path until it finds something on disk.
func closestExisting(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no part of %q exists", path)
		}
		p = parent
	}
}

func isRemote(fsType string) bool {
	fsType = strings.ToLower(strings.TrimSpace(fsType))
	for _, name := range remoteFilesystems {
		if fsType == name {
			return true
		}
	}
	return false
}
