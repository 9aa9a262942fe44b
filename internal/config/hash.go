package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumsFile is the manifest name, written next to the config file.
const ChecksumsFile = ".checksums"

// LockReport describes a manifest written by Lock.
type LockReport struct {
	ConfigPath   string
	ChecksumPath string
	Hash         string
	Written      bool
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

// Lock hashes the config file and writes the .checksums manifest next to it.
// When dryRun is true, it computes the hash without writing.
func Lock(configPath string, dryRun bool) (*LockReport, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	hash, err := ComputeBlake3Hash(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", absPath, err)
	}

	report := &LockReport{
		ConfigPath:   absPath,
		ChecksumPath: filepath.Join(filepath.Dir(absPath), ChecksumsFile),
		Hash:         hash,
	}
	if dryRun {
		return report, nil
	}

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      map[string]string{filepath.Base(absPath): hash},
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}

	// Write with restrictive permissions (contains expected hashes)
	if err := os.WriteFile(report.ChecksumPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}

// LoadChecksums reads the .checksums file from a config directory.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	checksumPath := filepath.Join(configDir, ChecksumsFile)

	data, err := os.ReadFile(checksumPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checksums file not found (run 'flowgate config lock'): %w", err)
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}

	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}

	return &manifest, nil
}

// verifyConfigHash checks path against the manifest in its directory.
// A missing manifest skips verification.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	manifest, err := LoadChecksums(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	basename := filepath.Base(path)
	expectedHash, ok := manifest.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: flowgate config lock --config %s", basename, dir, path)
	}

	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: flowgate config lock --config %s", path, err, path)
	}
	return nil
}
