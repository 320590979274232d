// Package secrets resolves credentials that may be given inline, as
// environment references or as mounted secret files.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/mcmigrate/internal/errors"
)

// maxFileSize caps secret file reads; credentials are small.
const maxFileSize = 64 * 1024

// Expand replaces ${VAR} and ${VAR:-fallback} references in s.
// A reference without a fallback to an unset variable is an error.
func Expand(s string) (string, error) {
	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if !hasFallback {
			missing = append(missing, name)
		}
		return fallback
	})
	if len(missing) > 0 {
		return "", errors.Newf("missing environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file, trimming trailing newlines.
func ReadFile(path string) (string, error) {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return "", fileError(clean, err)
	}
	if !info.Mode().IsRegular() {
		return "", fileError(clean, fmt.Errorf("not a regular file"))
	}
	if info.Size() > maxFileSize {
		return "", fileError(clean, fmt.Errorf("larger than %d bytes", maxFileSize))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", fileError(clean, err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fileError(clean, fmt.Errorf("file is empty"))
	}
	return secret, nil
}

// Permissive reports whether group or other users can access path.
func Permissive(path string) bool {
	info, err := os.Stat(filepath.Clean(path))
	return err == nil && info.Mode().Perm()&0o077 != 0
}

// Resolve returns the secret from file when set, otherwise value with
// environment references expanded.
func Resolve(file, value string) (string, error) {
	if file != "" {
		return ReadFile(file)
	}
	if value == "" {
		return "", nil
	}
	return Expand(value)
}

func fileError(path string, err error) error {
	return errors.New(fmt.Errorf("secret file %s: %w", path, err)).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Build()
}
