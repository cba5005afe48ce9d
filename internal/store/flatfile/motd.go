package flatfile

import (
	"bufio"
	"fmt"
	"os"
)

// LoadMOTD reads path line by line, returning one entry per non-empty
// line. A missing file returns an empty slice, not an error.
func LoadMOTD(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("flatfile: open motd: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("flatfile: read motd: %w", err)
	}
	return lines, nil
}
