package sync

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
)

// Fingerprint opens the file, streams its content through MD5 and returns
// the hex digest. MD5 is used for content identity, not security. Memory use
// is bounded by the copy buffer regardless of file size.
func Fingerprint(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file '%s': %w", filePath, err)
	}
	defer file.Close()

	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to copy file content for hashing '%s': %w", filePath, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
