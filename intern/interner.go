// Package intern provides a mapping from string content to compact
// integer ids, shared by the compiler and the VM so that
// identifier comparisons and global-table lookups reduce to integer
// equality and hashing instead of string comparison.
package intern

import (
	"sync"

	"github.com/dolthub/swiss"
)

// Table interns strings to small integer ids. It is safe for concurrent
// use. Its lifetime is the lifetime of the Table value itself; there is no
// removal operation, matching spec.md §4.A's "process-wide... no
// removal" contract. Unlike a package-level singleton, a Table is passed
// explicitly to the compiler and the VM so independent compile/run
// pipelines (as in parallel tests) don't share state.
type Table struct {
	mu      sync.RWMutex
	ids     *swiss.Map[string, uint32]
	strings []string
}

// New returns an empty Table.
func New() *Table {
	return &Table{
		ids: swiss.NewMap[string, uint32](64),
	}
}

// Intern returns the id for text, allocating a new one the first time text
// is seen. Equal byte sequences always yield equal ids.
func (t *Table) Intern(text string) uint32 {
	t.mu.RLock()
	if id, ok := t.ids.Get(text); ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	// Another writer may have interned text while we waited for the lock.
	if id, ok := t.ids.Get(text); ok {
		return id
	}
	id := uint32(len(t.strings))
	t.strings = append(t.strings, text)
	t.ids.Put(text, id)
	return id
}

// Resolve returns the text interned under id and whether id has ever been
// produced by this Table.
func (t *Table) Resolve(id uint32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.strings) {
		return "", false
	}
	return t.strings[id], true
}

// Len reports how many distinct strings have been interned.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.strings)
}
