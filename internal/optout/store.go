package optout

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrEmptyID is returned when asked to record a meeting without a stable
// identifier; such meetings cannot be matched on later scans.
var ErrEmptyID = errors.New("meeting has no stable identifier")

const header = `# Ignored Full-Hour Appointments
# Meetings listed here no longer trigger the reschedule prompt.
# Each non-comment line is a stable meeting identifier (iCalUId, UID or event id).
# Lines starting with # are comments and are ignored.
# Edit this file by hand to remove an entry.
#
`

// Set is the loaded collection of opted-out identifiers.
type Set map[string]struct{}

// Has reports whether id was opted out.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Entry is one recorded opt-out with the comment hint written above it.
type Entry struct {
	ID   string
	Note string
}

// Store is the append-only opt-out file.
type Store struct {
	path string
	now  func() time.Time
}

// NewStore creates a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// WithClock replaces the clock used for "Added" timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the set of opted-out identifiers. A missing file is an
// empty set.
func (s *Store) Load() (Set, error) {
	entries, err := s.List()
	if err != nil {
		return Set{}, err
	}
	set := make(Set, len(entries))
	for _, e := range entries {
		set[e.ID] = struct{}{}
	}
	return set, nil
}

// List returns every recorded identifier in file order, paired with the
// nearest preceding "# Added:" comment.
func (s *Store) List() ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening opt-out file: %w", err)
	}
	defer f.Close()

	var (
		entries []Entry
		note    string
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "#"):
			if rest, ok := strings.CutPrefix(line, "# Added:"); ok {
				note = strings.TrimSpace(rest)
			}
		default:
			entries = append(entries, Entry{ID: line, Note: note})
			note = ""
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading opt-out file: %w", err)
	}
	return entries, nil
}

// Append records id with a comment naming subject and start for later
// auditing. Matching uses id only. Appending an id twice is harmless.
func (s *Store) Append(id, subject string, start time.Time) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyID
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating opt-out directory: %w", err)
	}

	info, statErr := os.Stat(s.path)
	isNew := os.IsNotExist(statErr)

	needsNewline := false
	if statErr == nil && info.Size() > 0 {
		last, err := lastByte(s.path, info.Size())
		if err != nil {
			return fmt.Errorf("reading opt-out file: %w", err)
		}
		needsNewline = last != '\n'
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening opt-out file: %w", err)
	}

	var b strings.Builder
	if isNew {
		b.WriteString(header)
	}
	// Hand-edited files may lack a final newline.
	if needsNewline {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "# Added: %s | Subject: %s | Start: %s\n",
		s.now().Format("2006-01-02 15:04:05"),
		strings.ReplaceAll(subject, "\n", " "),
		start.Format("2006-01-02 15:04"),
	)
	b.WriteString(id + "\n")

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("writing opt-out file: %w", err)
	}
	return f.Close()
}

func lastByte(path string, size int64) (byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, size-1); err != nil {
		return 0, err
	}
	return buf[0], nil
}
