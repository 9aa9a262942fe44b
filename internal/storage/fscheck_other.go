//go:build !darwin && !linux

package storage

// filesystemType reports every path as local where mounts cannot be inspected.
func filesystemType(string) (string, error) {
	return "local", nil
}
