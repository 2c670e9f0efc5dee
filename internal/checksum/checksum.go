package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ShortHex returns the first n hex characters of the SHA256 of s. Used for
// compact content-derived identifiers such as log filenames.
func ShortHex(s string, n int) string {
	hash := sha256.Sum256([]byte(s))
	full := hex.EncodeToString(hash[:])
	if n <= 0 || n > len(full) {
		return full
	}
	return full[:n]
}

// SHA256File computes the SHA256 hash of a file and returns it as "sha256:hexstring"
// Uses streaming to handle large files efficiently
func SHA256File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return "sha256:" + hex.EncodeToString(hasher.Sum(nil)), nil
}
