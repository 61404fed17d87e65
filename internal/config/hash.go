package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name looked up next to the root config.
const ChecksumFile = ".checksums"

// ChecksumManifest records the expected BLAKE3 hash of each config file,
// keyed by path relative to the config directory.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
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

// GenerateChecksums hashes files and writes the manifest into configDir.
func GenerateChecksums(configDir string, files []string) (*ChecksumManifest, error) {
	manifest := &ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string, len(files)),
	}

	for _, f := range files {
		rel, err := relativeTo(configDir, f)
		if err != nil {
			return nil, err
		}
		hash, err := ComputeBlake3Hash(f)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", rel, err)
		}
		manifest.Hashes[rel] = hash
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	// Restrictive permissions: the manifest is what tampering is checked against.
	if err := os.WriteFile(filepath.Join(configDir, ChecksumFile), data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	return manifest, nil
}

// LoadChecksums reads the manifest from configDir. A missing manifest is
// reported as (nil, nil).
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
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

// VerifyChecksums checks files against the manifest. Every file must be
// listed and match.
func VerifyChecksums(configDir string, manifest *ChecksumManifest, files []string) error {
	for _, f := range files {
		rel, err := relativeTo(configDir, f)
		if err != nil {
			return err
		}
		expected, ok := manifest.Hashes[rel]
		if !ok {
			return fmt.Errorf("config file %s has no hash in %s (run 'gridflow config hash-update')", rel, ChecksumFile)
		}
		if err := VerifyFileHash(f, expected); err != nil {
			return fmt.Errorf("config file verification failed: %w\n"+
				"If you edited this file intentionally, run: gridflow config hash-update", err)
		}
	}
	return nil
}

// fingerprint hashes the contents of files in order.
func fingerprint(files []string) (string, error) {
	h := blake3.New()
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		_, _ = h.Write(data)
	}
	return "blake3:" + hex.EncodeToString(h.Sum(nil)), nil
}

func relativeTo(dir, path string) (string, error) {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}
