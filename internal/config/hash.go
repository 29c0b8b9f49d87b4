package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Fingerprint identifies the exact config file a process was started with.
func Fingerprint(filePath string) (string, error) {
	sum, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return "", err
	}
	return "blake3:" + sum, nil
}

// SecretFingerprint returns a short, non-reversible tag for a secret so that
// operators can tell which secret is loaded without it ever reaching a log.
func SecretFingerprint(secret []byte) string {
	if len(secret) == 0 {
		return ""
	}
	sum := blake3.Sum256(secret)
	return "blake3:" + hex.EncodeToString(sum[:6])
}
