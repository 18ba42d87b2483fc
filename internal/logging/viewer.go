package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
)

// TailOptions filters the lines returned by Tail.
type TailOptions struct {
	// Lines is the number of matching lines to return; <= 0 means 50.
	Lines int
	// Level drops entries below this level. Empty keeps everything.
	Level string
	// Pattern keeps only lines matching it when set.
	Pattern *regexp.Regexp
}

// Tail returns the last matching lines of a JSON log file, oldest first.
// Lines that are not JSON are kept unless a level filter is set.
func Tail(path string, opts TailOptions) ([]string, error) {
	if opts.Lines <= 0 {
		opts.Lines = 50
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	ring := make([]string, 0, opts.Lines)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !keep(line, opts) {
			continue
		}
		if len(ring) == opts.Lines {
			copy(ring, ring[1:])
			ring = ring[:len(ring)-1]
		}
		ring = append(ring, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return ring, nil
}

func keep(line string, opts TailOptions) bool {
	if opts.Pattern != nil && !opts.Pattern.MatchString(line) {
		return false
	}
	if opts.Level == "" {
		return true
	}
	var entry struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Level == "" {
		return false
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(entry.Level)); err != nil {
		return false
	}
	return lvl >= LevelFromString(opts.Level)
}
