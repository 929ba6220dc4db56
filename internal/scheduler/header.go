package scheduler

import (
	"bufio"
	"os"
	"strings"
)

const endOfHeader = "END OF HEADER"

// ScanHeader returns the observation-header lines containing any of the
// patterns, trimmed. A missing file or empty pattern list yields nil.
func ScanHeader(path string, patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close() //nolint:errcheck

	var hits []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		for _, p := range patterns {
			if p != "" && strings.Contains(line, p) {
				hits = append(hits, strings.TrimRight(line, " "))
				break
			}
		}
		if strings.Contains(line, endOfHeader) {
			break
		}
	}
	return hits
}
