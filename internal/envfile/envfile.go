// Package envfile reads single values out of flat KEY=VALUE settings files.
//
// The format is deliberately looser than dotenv: no quoting, no expansion, no
// export prefix. A line matches when the text before its first '=' equals the
// key (surrounding spaces ignored). The value is everything after that '=',
// with surrounding spaces, tabs and carriage returns removed. When a key
// appears more than once the first occurrence wins.
package envfile

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/psantana5/kiosk-supervisor/internal/logging"
)

const valueCutset = " \t\r"

// Lookup returns the value stored under key in the file at path.
// found is false when no line carries the key.
func Lookup(fs afero.Fs, path, key string) (value string, found bool, err error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("failed to open settings file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		k, v, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		if strings.Trim(k, valueCutset) != key {
			continue
		}
		return strings.Trim(v, valueCutset), true, nil
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	return "", false, nil
}

// Resolve is Lookup that never fails: an unreadable file or a missing key
// yields the empty string and a warning.
func Resolve(fs afero.Fs, path, key string, logger *logging.Logger) string {
	fields := map[string]interface{}{"file": path, "key": key}

	value, found, err := Lookup(fs, path, key)
	switch {
	case err != nil:
		fields["error"] = err.Error()
		logger.Warn("Settings file unreadable, using empty value", fields)
	case !found:
		logger.Warn("Settings key not found, using empty value", fields)
	default:
		fields["value"] = value
		logger.Info("Resolved settings value", fields)
	}

	return value
}
