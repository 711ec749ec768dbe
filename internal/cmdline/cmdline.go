// Package cmdline extracts boot parameters from the kernel command line.
package cmdline

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const initKey = "init"

var ErrMalformedBootParameters = errors.New("cmdline: malformed boot parameters")

// ExtractInit returns the value of the single init= token in line. The value
// is returned as written; it is not canonicalized.
func ExtractInit(line string) (string, error) {
	var values []string
	for _, token := range strings.Fields(line) {
		key, value, ok := strings.Cut(token, "=")
		if !ok || key != initKey {
			continue
		}
		values = append(values, value)
	}

	if len(values) != 1 {
		return "", fmt.Errorf(
			"%w: expected exactly one %s= param on kernel cmdline, found %d: %s",
			ErrMalformedBootParameters,
			initKey,
			len(values),
			strings.TrimSpace(line),
		)
	}
	if values[0] == "" {
		return "", fmt.Errorf("%w: empty %s= param on kernel cmdline: %s", ErrMalformedBootParameters, initKey, strings.TrimSpace(line))
	}
	return values[0], nil
}

// ReadInit reads the kernel command line from path and extracts init=.
func ReadInit(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read kernel cmdline (%s): %w", path, err)
	}
	return ExtractInit(string(data))
}
