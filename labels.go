package yoloseg

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// LoadLabels reads the class names used to train the Model from the given
// text file.  It should contain one label per line, blank lines are skipped.
func LoadLabels(file string) ([]string, error) {

	// open the file
	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	return ReadLabels(f)
}

// ReadLabels reads one label per line from r
func ReadLabels(r io.Reader) ([]string, error) {

	scanner := bufio.NewScanner(r)

	var labels []string

	// read and trim each line
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		labels = append(labels, line)
	}

	// check for errors during scanning
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading labels: %w", err)
	}

	return labels, nil
}

// legacyEntry matches one `index: 'name'` pair of a class name dictionary
// as embedded in exported model metadata, names may be single or double
// quoted
var legacyEntry = regexp.MustCompile(`(\d+)\s*:\s*(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")`)

// ParseLegacyNames parses a class name dictionary such as
// "{0: 'person', 1: 'bicycle'}" into a slice indexed by class.  Indexes must
// be unique and contiguous from 0.
func ParseLegacyNames(s string) ([]string, error) {

	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, fmt.Errorf("class names not enclosed in braces")
	}

	matches := legacyEntry.FindAllStringSubmatch(s, -1)

	if len(matches) == 0 {
		return nil, fmt.Errorf("no class names found")
	}

	names := make([]string, len(matches))
	seen := make([]bool, len(matches))

	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])

		if err != nil {
			return nil, fmt.Errorf("invalid class index %q: %w", m[1], err)
		}

		if idx >= len(names) {
			return nil, fmt.Errorf("class index %d is not contiguous", idx)
		}

		if seen[idx] {
			return nil, fmt.Errorf("duplicate class index %d", idx)
		}

		name := m[2]

		if name == "" {
			name = m[3]
		}

		names[idx] = unescapeName(name)
		seen[idx] = true
	}

	return names, nil
}

func unescapeName(s string) string {

	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder

	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}

		b.WriteByte(s[i])
	}

	return b.String()
}
