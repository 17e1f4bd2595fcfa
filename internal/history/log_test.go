package history

import (
	"fmt"
	"testing"

	"github.com/MJE43/lotto-desk/internal/matrix"
)

func TestLogPrependCapsAtMax(t *testing.T) {
	l := NewLog(nil)
	var dropped []Entry
	for i := 0; i < MaxEntries+3; i++ {
		dropped = append(dropped, l.Prepend(entry(fmt.Sprintf("E%d", i), matrix.Lotto645, 1, 2, 3, 4, 5, 6))...)
	}

	if l.Len() != MaxEntries {
		t.Fatalf("Len = %d, want %d", l.Len(), MaxEntries)
	}
	got := l.Entries()
	if got[0].ID != fmt.Sprintf("E%d", MaxEntries+2) {
		t.Errorf("newest = %s", got[0].ID)
	}
	if got[MaxEntries-1].ID != "E3" {
		t.Errorf("oldest kept = %s, want E3", got[MaxEntries-1].ID)
	}
	if len(dropped) != 3 || dropped[0].ID != "E0" || dropped[2].ID != "E2" {
		t.Errorf("dropped = %v", ids(dropped))
	}
}

func TestLogEntriesAreCopies(t *testing.T) {
	l := NewLog([]Entry{entry("A", matrix.Lotto645, 1, 2, 3, 4, 5, 6)})
	got := l.Entries()
	got[0].Numbers[0] = 99

	again, _ := l.Find("A")
	if again.Numbers[0] != 1 {
		t.Fatalf("log was mutated through Entries(): %v", again.Numbers)
	}
}

func TestLogRemoveAndFilter(t *testing.T) {
	l := NewLog([]Entry{
		entry("A", matrix.Lotto645, 1, 2, 3, 4, 5, 6),
		entry("B", matrix.Powerball, 1, 2, 3, 4, 5),
		entry("C", matrix.Lotto645, 7, 8, 9, 10, 11, 12),
	})

	if got := l.Filtered(Filter{MatrixType: string(matrix.Lotto645)}); len(got) != 2 || got[0].ID != "A" || got[1].ID != "C" {
		t.Errorf("Filtered(6/45) = %v", ids(got))
	}
	if got := l.Filtered(Filter{MatrixType: All}); len(got) != 3 {
		t.Errorf("Filtered(All) = %v", ids(got))
	}
	if got := l.Filtered(Filter{MatrixType: string(matrix.MegaMillions)}); len(got) != 0 {
		t.Errorf("Filtered(mega) = %v", ids(got))
	}

	if _, ok := l.Remove("B"); !ok {
		t.Fatal("Remove(B) = false")
	}
	if _, ok := l.Remove("B"); ok {
		t.Fatal("second Remove(B) = true")
	}
	if got := ids(l.Entries()); len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("after remove = %v", got)
	}

	l.Clear()
	if l.Len() != 0 {
		t.Errorf("Len after Clear = %d", l.Len())
	}
}

func TestNewLogTruncates(t *testing.T) {
	var in []Entry
	for i := 0; i < MaxEntries+10; i++ {
		in = append(in, entry(fmt.Sprint(i), matrix.Lotto645, 1))
	}
	l := NewLog(in)
	if l.Len() != MaxEntries {
		t.Fatalf("Len = %d", l.Len())
	}
	if l.Entries()[0].ID != "0" {
		t.Errorf("first = %s, want 0", l.Entries()[0].ID)
	}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
