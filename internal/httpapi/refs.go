package httpapi

import (
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/koustreak/ocisql/internal/database"
	"github.com/koustreak/ocisql/internal/errs"
)

// connRef remembers the environment a connection belongs to; async logons
// are polled through it.
type connRef struct {
	env  *database.Environment
	conn *database.Connection
}

// pendingRef is a statement left executing on a non-blocking connection.
type pendingRef struct {
	conn    *database.Connection
	pending *database.Pending
}

// table maps remote reference ids to live handles. Ids are random so a
// caller cannot guess the handles of another caller.
type table[T any] struct {
	kind  string
	items *xsync.MapOf[string, T]
}

func newTable[T any](kind string) *table[T] {
	return &table[T]{kind: kind, items: xsync.NewMapOf[string, T]()}
}

func (t *table[T]) add(v T) string {
	id := uuid.NewString()
	t.items.Store(id, v)
	return id
}

func (t *table[T]) get(id string) (T, error) {
	v, ok := t.items.Load(id)
	if !ok {
		var zero T
		return zero, errs.Argument(t.kind + " expected")
	}
	return v, nil
}

func (t *table[T]) remove(id string) {
	t.items.Delete(id)
}

// refs holds every handle exposed to remote callers.
type refs struct {
	envs    *table[*database.Environment]
	conns   *table[connRef]
	cursors *table[*database.Cursor]
	pending *table[pendingRef]
}

func newRefs() *refs {
	return &refs{
		envs:    newTable[*database.Environment]("environment"),
		conns:   newTable[connRef]("connection"),
		cursors: newTable[*database.Cursor]("cursor"),
		pending: newTable[pendingRef]("statement handle"),
	}
}
