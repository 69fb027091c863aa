// internal/reporting/files.go
package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func expandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %q: %w", path, err)
	}
	return expanded, nil
}

// WriteFileAtomic writes data to path through a temporary file in the same
// directory, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(expanded)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(expanded)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", expanded, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set mode on %s: %w", expanded, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), expanded); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", expanded, err)
	}
	return nil
}

// WriteSessionURL stores the notebook URL as a single line.
func WriteSessionURL(path, url string) error {
	return WriteFileAtomic(path, []byte(url+"\n"), 0o644)
}

// ReadSessionURL returns the URL stored by WriteSessionURL.
func ReadSessionURL(path string) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to read session URL file: %w", err)
	}
	url := strings.TrimSpace(string(data))
	if url == "" {
		return "", fmt.Errorf("session URL file %s is empty", expanded)
	}
	return url, nil
}

// SaveScreenshot writes png to dir under a name derived from step and returns its path.
func SaveScreenshot(dir, step string, png []byte) (string, error) {
	name := strings.Trim(unsafeNameChars.ReplaceAllString(step, "_"), "_")
	if name == "" {
		name = "step"
	}
	file := fmt.Sprintf("%s-%s.png", time.Now().UTC().Format("20060102T150405"), name)

	expandedDir, err := expandPath(dir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(expandedDir, file)
	if err := WriteFileAtomic(path, png, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
