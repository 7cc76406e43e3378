package update

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// hashChunkSize is the read size used when hashing, independent of file size.
const hashChunkSize = 32 << 10

// ComputeFileHash returns the lowercase hex SHA256 digest of the file at path.
func ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing file %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyFile computes the SHA256 hash of the file at path and compares it with
// expectedHash. Returns nil if the hashes match (case-insensitive comparison),
// or a *ChecksumError wrapping ErrChecksumMismatch if they differ.
func VerifyFile(path, expectedHash string) error {
	got, err := ComputeFileHash(path)
	if err != nil {
		return err
	}

	if !strings.EqualFold(got, strings.TrimSpace(expectedHash)) {
		return &ChecksumError{
			Filename: path,
			Expected: strings.ToLower(strings.TrimSpace(expectedHash)),
			Got:      got,
		}
	}

	return nil
}

// ParseDigest extracts the digest from the body of a published .sha256 asset:
// the first whitespace-delimited token, lowercased. It accepts both a bare
// digest and sha256sum's "<digest>  <filename>" layout.
func ParseDigest(body string) (string, error) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", fmt.Errorf("checksum asset is empty")
	}

	digest := strings.ToLower(fields[0])
	if !isValidHexHash(digest) {
		return "", fmt.Errorf("checksum asset does not start with a SHA256 digest: %q", fields[0])
	}

	return digest, nil
}

// isValidHexHash checks if s is a valid 64-character hex-encoded SHA256 hash.
func isValidHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
