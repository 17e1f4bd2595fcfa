package history

// MaxEntries caps the log; older entries are dropped on append.
const MaxEntries = 50

// Filter selects entries by matrix type. The zero value matches everything.
type Filter struct {
	MatrixType string
}

// All is the filter value that matches every matrix.
const All = "All"

func (f Filter) Match(e Entry) bool {
	return f.MatrixType == "" || f.MatrixType == All || string(e.MatrixType) == f.MatrixType
}

// Log is a bounded, most-recent-first sequence of entries. It is not safe
// for concurrent use; the session serializes access.
type Log struct {
	entries []Entry
}

// NewLog builds a log from entries already ordered most-recent-first,
// keeping at most MaxEntries.
func NewLog(entries []Entry) *Log {
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	return &Log{entries: cloneAll(entries)}
}

// Prepend inserts e at the front and drops the oldest entries beyond the cap.
// It returns the entries that were dropped.
func (l *Log) Prepend(e Entry) []Entry {
	next := make([]Entry, 0, min(len(l.entries)+1, MaxEntries))
	next = append(next, e.Clone())
	keep := min(len(l.entries), MaxEntries-1)
	next = append(next, l.entries[:keep]...)
	dropped := l.entries[keep:]
	l.entries = next
	return dropped
}

// Remove deletes the entry with id, reporting whether it existed.
func (l *Log) Remove(id string) (Entry, bool) {
	for i, e := range l.entries {
		if e.ID == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return e, true
		}
	}
	return Entry{}, false
}

func (l *Log) Clear() {
	l.entries = nil
}

func (l *Log) Len() int { return len(l.entries) }

// Entries returns a copy of the log, most recent first.
func (l *Log) Entries() []Entry {
	return cloneAll(l.entries)
}

// Filtered returns a copy of the entries matching f.
func (l *Log) Filtered(f Filter) []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if f.Match(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

func (l *Log) Find(id string) (Entry, bool) {
	for _, e := range l.entries {
		if e.ID == id {
			return e.Clone(), true
		}
	}
	return Entry{}, false
}
