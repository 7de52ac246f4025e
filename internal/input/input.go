// Package input expands argument values that name stdin (-) or a file
// (@path) into their contents.
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marcus/prep/internal/output"
)

// ExpandArgs replaces "-" with the non-empty lines of stdin and "@path"
// with the non-empty lines of that file. Other values pass through. Stdin
// is read at most once.
func ExpandArgs(values []string, stdin io.Reader) ([]string, error) {
	var result []string
	stdinUsed := false
	for _, v := range values {
		switch {
		case v == "-":
			if stdinUsed {
				output.Warning("stdin already used, ignoring additional -")
				continue
			}
			stdinUsed = true
			lines, err := ReadLines(stdin)
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			result = append(result, lines...)
		case strings.HasPrefix(v, "@") && len(v) > 1:
			path := v[1:]
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			lines, err := ReadLines(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			result = append(result, lines...)
		default:
			result = append(result, v)
		}
	}
	return result, nil
}

// ReadLines returns the trimmed non-empty lines of r.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// ReadText returns the whole of stdin when path is "-", else the file.
func ReadText(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
