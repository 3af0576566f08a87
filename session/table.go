package session

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrDuplicate is returned when a username is already in the table.
var ErrDuplicate = errors.New("username already logged on")

// Table indexes authenticated sessions by username. Like Session it belongs
// to the reactor goroutine and has no locking.
type Table struct {
	byName map[string]*Session
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*Session)}
}

// Insert adds s under its username.
func (t *Table) Insert(s *Session) error {
	name := s.Username()
	if name == "" {
		return errors.New("session has no username")
	}
	if _, ok := t.byName[name]; ok {
		return errors.Wrap(ErrDuplicate, name)
	}
	t.byName[name] = s
	return nil
}

// Find returns the session logged on as name.
func (t *Table) Find(name string) (*Session, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// Remove drops s. Removing a session that is not indexed does nothing.
func (t *Table) Remove(s *Session) {
	if cur, ok := t.byName[s.Username()]; ok && cur == s {
		delete(t.byName, s.Username())
	}
}

// Len is the number of authenticated sessions.
func (t *Table) Len() int { return len(t.byName) }

// Names returns the logged on usernames in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.byName))
	for n := range t.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
