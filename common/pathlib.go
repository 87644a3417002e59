package common

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves "~" prefixes and returns an absolute, cleaned path.
func ExpandPath(entry string) string {
	if strings.HasPrefix(entry, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			entry = home + entry[1:]
		}
	}
	full, err := filepath.Abs(entry)
	if err != nil {
		return filepath.Clean(entry)
	}
	return full
}
