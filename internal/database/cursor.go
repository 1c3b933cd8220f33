package database

import (
	"context"
	"strings"
	"sync"

	"github.com/koustreak/ocisql/internal/errs"
	"github.com/koustreak/ocisql/internal/logger"
	"github.com/koustreak/ocisql/internal/metrics"
	"github.com/koustreak/ocisql/internal/native"
)

// Cursor is a positioned result stream of one executed query.
//
// A Cursor closes itself when Fetch reaches the end of the result; callers
// must not assume it is still open after the last row.
type Cursor struct {
	mu     sync.Mutex
	closed bool
	conn   *Connection
	text   string
	stmt   native.Statement
	errh   native.ErrorHandle
	cols   []*Column
	log    *logger.Logger

	// memoized projections, dropped on close
	names        []string
	types        []string
	descriptions map[string]ColumnDescription
}

// Record is the caller-supplied destination of FetchInto.
type Record struct {
	// Values holds the row by position (mode "n").
	Values []any
	// Named holds the row by lower-cased column name (mode "a").
	Named map[string]any
}

// newCursor takes ownership of stmt, discovers its columns and binds their
// buffers. On failure everything allocated so far, stmt included, is freed.
func newCursor(c *Connection, stmt native.Statement, text string) (*Cursor, error) {
	env := c.env
	lib := env.lib

	cur := &Cursor{conn: c, text: text, stmt: stmt}

	errh, st := lib.NewErrorHandle(env.env)
	if err := alloc(st, "error handle"); err != nil {
		cur.release()
		return nil, err
	}
	cur.errh = errh

	n, st := lib.ParamCount(stmt, errh)
	if err := check(lib, st, errh); err != nil {
		cur.release()
		return nil, err
	}

	cur.cols = make([]*Column, 0, n)
	for pos := 1; pos <= n; pos++ {
		col, err := allocColumn(lib, env.env, stmt, errh, pos)
		if col != nil {
			cur.cols = append(cur.cols, col)
		}
		if err != nil {
			cur.release()
			return nil, err
		}
	}

	c.mu.Lock()
	c.cursors++
	c.mu.Unlock()

	cur.log = c.log.With().Int("columns", n).Logger()
	cur.log.Debug("cursor opened")
	metrics.CursorsOpened.Inc()
	return cur, nil
}

// release frees column buffers and native handles.
func (k *Cursor) release() {
	lib := k.conn.env.lib
	for _, col := range k.cols {
		col.release(lib)
	}
	k.cols = nil
	if k.stmt != 0 {
		lib.FreeStatement(k.stmt)
		k.stmt = 0
	}
	if k.errh != 0 {
		lib.FreeErrorHandle(k.errh)
		k.errh = 0
	}
}

// Close releases the cursor. It returns false if the cursor was already closed.
func (k *Cursor) Close() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closeLocked("closed")
}

func (k *Cursor) closeLocked(reason string) bool {
	if k.closed {
		return false
	}
	k.release()
	k.closed = true
	k.names = nil
	k.types = nil
	k.descriptions = nil

	k.conn.mu.Lock()
	k.conn.cursors--
	k.conn.mu.Unlock()

	k.log.Debug("cursor " + reason)
	metrics.CursorsClosed.Inc()
	return true
}

// Closed reports whether the cursor has been closed.
func (k *Cursor) Closed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}

// Text returns the statement text the cursor was created from.
func (k *Cursor) Text() string { return k.text }

func (k *Cursor) checkOpen() error {
	if k.closed {
		return errs.Argument("cursor is closed")
	}
	return nil
}

// advance fetches the next row into the column buffers. done is true when the
// result was exhausted and the cursor has been closed.
func (k *Cursor) advance(ctx context.Context) (done bool, status Status, err error) {
	if err := k.checkOpen(); err != nil {
		return false, 0, err
	}
	lib := k.conn.env.lib

	st := lib.Fetch(ctx, k.stmt, k.errh)
	switch {
	case st == native.StillExecuting:
		return false, StatusStillExecuting, nil
	case st == native.NoData:
		k.closeLocked("exhausted")
		return true, StatusSuccess, nil
	case !st.OK():
		return false, 0, check(lib, st, k.errh)
	}
	metrics.RowsFetched.Inc()
	return false, StatusSuccess, nil
}

func (k *Cursor) decoder() *decoder {
	env := k.conn.env
	return &decoder{
		lib:      env.lib,
		env:      env.env,
		sess:     k.conn.sess,
		errh:     k.errh,
		exactInt: env.exactInt,
	}
}

// Fetch returns the next row as one value per column, in column order.
//
// At the end of the result it closes the cursor and returns a nil row. On a
// non-blocking connection it may return a nil row with StatusStillExecuting;
// call Fetch again to collect the row.
func (k *Cursor) Fetch(ctx context.Context) ([]any, Status, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	done, status, err := k.advance(ctx)
	if err != nil || done || status == StatusStillExecuting {
		return nil, status, err
	}

	d := k.decoder()
	row := make([]any, len(k.cols))
	for i, col := range k.cols {
		v, err := d.decode(ctx, col)
		if err != nil {
			return nil, 0, err
		}
		row[i] = v
	}
	return row, StatusSuccess, nil
}

// FetchInto writes the next row into rec and returns it. mode may contain
// "n" (by position), "a" (by name) or both; an empty mode means "n".
// End of result and pending states behave as in Fetch.
func (k *Cursor) FetchInto(ctx context.Context, rec *Record, mode string) (*Record, Status, error) {
	if rec == nil {
		return nil, 0, errs.Argument("record expected")
	}
	if mode == "" {
		mode = "n"
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	done, status, err := k.advance(ctx)
	if err != nil || done || status == StatusStillExecuting {
		return nil, status, err
	}

	d := k.decoder()
	if strings.Contains(mode, "n") {
		if cap(rec.Values) >= len(k.cols) {
			rec.Values = rec.Values[:len(k.cols)]
		} else {
			rec.Values = make([]any, len(k.cols))
		}
		for i, col := range k.cols {
			v, err := d.decode(ctx, col)
			if err != nil {
				return nil, 0, err
			}
			rec.Values[i] = v
		}
	}
	if strings.Contains(mode, "a") {
		if rec.Named == nil {
			rec.Named = make(map[string]any, len(k.cols))
		}
		for _, col := range k.cols {
			v, err := d.decode(ctx, col)
			if err != nil {
				return nil, 0, err
			}
			rec.Named[col.name] = v
		}
	}
	return rec, StatusSuccess, nil
}

// GetColumnNames returns the lower-cased column names in column order.
func (k *Cursor) GetColumnNames() ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkOpen(); err != nil {
		return nil, err
	}
	if k.names == nil {
		k.names = make([]string, len(k.cols))
		for i, col := range k.cols {
			k.names[i] = col.name
		}
	}
	return k.names, nil
}

// GetColumnTypes returns the driver type names in column order.
func (k *Cursor) GetColumnTypes() ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkOpen(); err != nil {
		return nil, err
	}
	if k.types == nil {
		k.types = make([]string, len(k.cols))
		for i, col := range k.cols {
			k.types[i] = col.typeName(k.conn.env.exactInt)
		}
	}
	return k.types, nil
}

// GetColumnDescriptions returns type and max size keyed by column name.
func (k *Cursor) GetColumnDescriptions() (map[string]ColumnDescription, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkOpen(); err != nil {
		return nil, err
	}
	if k.descriptions == nil {
		k.descriptions = make(map[string]ColumnDescription, len(k.cols))
		for _, col := range k.cols {
			k.descriptions[col.name] = ColumnDescription{
				Type:    col.typeName(k.conn.env.exactInt),
				MaxSize: col.maxSize,
			}
		}
	}
	return k.descriptions, nil
}

// Columns returns the column metadata in column order.
func (k *Cursor) Columns() ([]*Column, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkOpen(); err != nil {
		return nil, err
	}
	return k.cols, nil
}
