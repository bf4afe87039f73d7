// Package vcs loads the Subversion revision to git commit lookup table.
package vcs

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadRevisionMap reads a whitespace separated "revision commit" table from
// path. Blank lines and lines starting with '#' are skipped. A leading 'r' on
// the revision column is tolerated and stripped, so both "1234 abc..." and
// "r1234 abc..." work.
func LoadRevisionMap(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open revision map %s: %w", path, err)
	}
	defer f.Close()

	revisions := make(map[string]string)

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed revision map entry at %s:%d: %q", path, line, text)
		}

		rev := strings.TrimPrefix(fields[0], "r")
		revisions[rev] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read revision map %s: %w", path, err)
	}

	return revisions, nil
}
