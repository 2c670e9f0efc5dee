package checksum

import (
	"os"
	"path/filepath"
	"testing"
)

func TestShortHex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		n        int
		expected string
	}{
		{
			// sha256("hello world") = b94d27b9...
			name:     "eight chars",
			input:    "hello world",
			n:        8,
			expected: "b94d27b9",
		},
		{
			name:     "twelve chars",
			input:    "hello world",
			n:        12,
			expected: "b94d27b9934d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ShortHex(tt.input, tt.n)
			if result != tt.expected {
				t.Errorf("ShortHex() = %v, want %v", result, tt.expected)
			}
			if len(result) != tt.n {
				t.Errorf("ShortHex() length = %d, want %d", len(result), tt.n)
			}
		})
	}
}

func TestShortHexNonASCII(t *testing.T) {
	result := ShortHex("goroutine設計の相談", 8)
	if len(result) != 8 {
		t.Fatalf("ShortHex() length = %d, want 8", len(result))
	}
	for _, c := range result {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Errorf("ShortHex() produced non-hex character %q", c)
		}
	}
}

func TestShortHexBounds(t *testing.T) {
	// Zero and oversized n both fall back to the full digest.
	full := ShortHex("anything", 0)
	if len(full) != 64 {
		t.Errorf("ShortHex(n=0) length = %d, want 64", len(full))
	}
	if ShortHex("anything", 999) != full {
		t.Error("ShortHex(n=999) should equal the full digest")
	}
}

func TestShortHexDistinguishesTopics(t *testing.T) {
	a := ShortHex("topic one", 8)
	b := ShortHex("topic two", 8)
	if a == b {
		t.Errorf("distinct inputs hashed to the same prefix: %s", a)
	}
}

func TestSHA256File(t *testing.T) {
	tmpDir := t.TempDir()

	// Create test file
	testFile := filepath.Join(tmpDir, "test.txt")
	content := []byte("hello world")
	if err := os.WriteFile(testFile, content, 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	// Test successful hash
	hash, err := SHA256File(testFile)
	if err != nil {
		t.Fatalf("SHA256File() error = %v", err)
	}

	expected := "sha256:b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if hash != expected {
		t.Errorf("SHA256File() = %v, want %v", hash, expected)
	}

	// Test non-existent file
	_, err = SHA256File(filepath.Join(tmpDir, "missing.txt"))
	if err == nil {
		t.Error("SHA256File() expected error for missing file")
	}
}

func TestSHA256FileWithLargeFile(t *testing.T) {
	tmpDir := t.TempDir()

	// Create a larger test file (1MB)
	testFile := filepath.Join(tmpDir, "large.bin")
	content := make([]byte, 1024*1024)
	for i := range content {
		content[i] = byte(i % 256)
	}
	if err := os.WriteFile(testFile, content, 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	// Should handle large files efficiently
	hash, err := SHA256File(testFile)
	if err != nil {
		t.Fatalf("SHA256File() error = %v", err)
	}

	// Verify it returns a properly formatted hash
	if len(hash) != 71 { // "sha256:" (7) + 64 hex chars
		t.Errorf("SHA256File() hash length = %d, want 71", len(hash))
	}
	if hash[:7] != "sha256:" {
		t.Errorf("SHA256File() hash prefix = %s, want 'sha256:'", hash[:7])
	}

	// Verify consistency
	hash2, err := SHA256File(testFile)
	if err != nil {
		t.Fatalf("SHA256File() second call error = %v", err)
	}
	if hash != hash2 {
		t.Errorf("SHA256File() inconsistent: %s != %s", hash, hash2)
	}
}
