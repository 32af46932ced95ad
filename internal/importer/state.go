package importer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// State is the persisted set of source conversation ids already delivered.
// The on-disk format is one id per line, append-only, so an interrupted run
// can resume without re-importing what was already confirmed.
type State struct {
	path string
	seen map[string]bool
}

// LoadState reads the state file. A missing file is an empty state.
func LoadState(path string) (*State, error) {
	s := &State{
		path: path,
		seen: make(map[string]bool),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id != "" {
			s.seen[id] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan state: %w", err)
	}
	return s, nil
}

// Has reports whether the given source id was already delivered.
func (s *State) Has(id string) bool {
	return s.seen[id]
}

// Len returns the number of recorded ids.
func (s *State) Len() int {
	return len(s.seen)
}

// Path returns the state file location.
func (s *State) Path() string {
	return s.path
}

// Append records newly delivered ids, flushing to disk immediately so a crash
// mid-run leaves the file consistent with what was actually delivered.
func (s *State) Append(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer f.Close()

	for _, id := range ids {
		if id == "" || s.seen[id] {
			continue
		}
		if _, err := fmt.Fprintln(f, id); err != nil {
			return fmt.Errorf("append state: %w", err)
		}
		s.seen[id] = true
	}
	return nil
}
