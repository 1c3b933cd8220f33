package sqlnative

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/koustreak/ocisql/internal/native"
)

// maxTextLength is the largest driver-reported length taken as a text
// buffer size; longer or unbounded columns get Options.TextSize.
const maxTextLength = 32767

type column struct {
	name string
	tag  native.TypeTag
	size int
}

type define struct {
	dest any
	ind  *native.Indicator
}

type statement struct {
	sql      string
	kind     native.StmtKind
	prepared bool
	prefetch int

	executed bool
	affected int64

	rows     *sqlx.Rows
	srv      *server
	cancel   context.CancelFunc
	cols     []column
	row      []any
	buffered bool    // row holds the prefetched, not yet fetched row
	queued   [][]any // rows drained from a result set that is already closed

	defines  map[int]define
	charsets map[int]uint16

	pending *call
}

// reset drops the result set and every row read from it.
func (st *statement) reset() {
	st.closeRows()
	st.buffered = false
	st.queued = nil
}

// closeRows releases the open result set, if any.
func (st *statement) closeRows() {
	if st.rows != nil {
		_ = st.rows.Close()
		st.rows = nil
	}
	if st.cancel != nil {
		st.srv.forgetCursor(st)
		st.cancel()
		st.cancel = nil
	}
}

// next reads the following row into st.row.
func (st *statement) next() (bool, error) {
	if len(st.queued) > 0 {
		st.row, st.queued = st.queued[0], st.queued[1:]
		return true, nil
	}
	if st.rows == nil {
		return false, nil
	}
	if !st.rows.Next() {
		err := st.rows.Err()
		st.closeRows()
		return false, err
	}
	vals, err := st.rows.SliceScan()
	if err != nil {
		return false, err
	}
	st.row = vals
	return true, nil
}

// drain reads the rest of the result set into st.queued and closes it,
// freeing the connection for other statements.
func (st *statement) drain() error {
	for st.rows != nil {
		if !st.rows.Next() {
			err := st.rows.Err()
			st.closeRows()
			return err
		}
		vals, err := st.rows.SliceScan()
		if err != nil {
			return err
		}
		st.queued = append(st.queued, vals)
	}
	return nil
}

func (s *server) watchCursor(st *statement, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursors == nil {
		s.cursors = make(map[*statement]context.CancelFunc)
	}
	s.cursors[st] = cancel
}

func (s *server) forgetCursor(st *statement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, st)
}

func (l *Library) NewStatement(env native.Env) (native.Statement, native.Status) {
	if _, ok := l.envs.Get(uint64(env)); !ok {
		return 0, native.InvalidHandle
	}
	st := &statement{
		defines:  make(map[int]define),
		charsets: make(map[int]uint16),
	}
	return native.Statement(l.stmts.Add(st)), native.Success
}

func (l *Library) SetPrefetch(stmt native.Statement, _ native.ErrorHandle, rows int) native.Status {
	st, ok := l.stmts.Get(uint64(stmt))
	if !ok {
		return native.InvalidHandle
	}
	st.prefetch = rows
	return native.Success
}

func (l *Library) Prepare(stmt native.Statement, errh native.ErrorHandle, sqlText string) native.Status {
	st, ok := l.stmts.Get(uint64(stmt))
	if !ok {
		return native.InvalidHandle
	}
	if strings.TrimSpace(sqlText) == "" {
		return l.record(errh, 900, "ORA-00900: invalid SQL statement")
	}
	st.reset()
	st.sql = sqlText
	st.kind = classify(sqlText)
	st.prepared = true
	st.executed = false
	return native.Success
}

func (l *Library) StatementType(stmt native.Statement, _ native.ErrorHandle) (native.StmtKind, native.Status) {
	st, ok := l.stmts.Get(uint64(stmt))
	if !ok || !st.prepared {
		return 0, native.InvalidHandle
	}
	return st.kind, native.Success
}

func (l *Library) Execute(ctx context.Context, sess native.Session, stmt native.Statement, errh native.ErrorHandle, iters int, mode native.ExecMode) native.Status {
	s, ok := l.sessions.Get(uint64(sess))
	if !ok {
		return native.InvalidHandle
	}
	st, ok := l.stmts.Get(uint64(stmt))
	if !ok || !st.prepared {
		return native.InvalidHandle
	}

	o := l.run(ctx, s.srv, &st.pending, func(ctx context.Context) outcome {
		if iters == 0 {
			return l.query(ctx, s, st)
		}
		return l.exec(ctx, s, st, mode)
	})
	return l.report(errh, o)
}

// query opens the result set and prefetches the first row so that column
// types can be derived from values when the driver reports no type name.
func (l *Library) query(ctx context.Context, s *session, st *statement) outcome {
	st.reset()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return failed(errNotAttached)
	}

	// the result set outlives this call; Break reaches it through the server
	qctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		if errors.Is(context.Cause(ctx), errBreak) {
			cancel()
		}
	})
	defer stop()

	rows, err := conn.QueryxContext(qctx, st.sql)
	if err != nil {
		cancel()
		return failed(err)
	}
	st.rows, st.srv, st.cancel = rows, s.srv, cancel
	s.srv.watchCursor(st, cancel)

	types, err := rows.ColumnTypes()
	if err != nil {
		st.closeRows()
		return failed(err)
	}
	st.buffered, err = st.next()
	if err != nil {
		st.reset()
		return failed(err)
	}
	if l.dialect.BufferRows {
		if err := st.drain(); err != nil {
			st.reset()
			return failed(err)
		}
	}

	st.cols = make([]column, len(types))
	for i, ct := range types {
		var v any
		if st.buffered {
			v = st.row[i]
		}
		tag := l.tagOf(ct, v)
		st.cols[i] = column{name: ct.Name(), tag: tag, size: l.sizeOf(ct, tag)}
	}
	st.executed = true
	st.affected = 0
	return succeeded()
}

// exec runs a non-query inside the session transaction. DDL commits the
// open transaction and runs outside it.
func (l *Library) exec(ctx context.Context, s *session, st *statement, mode native.ExecMode) outcome {
	st.reset()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch st.kind {
	case native.StmtCreate, native.StmtDrop, native.StmtAlter:
		return l.execDDL(ctx, s, st)
	}

	tx, opened, err := s.begin(ctx)
	if err != nil {
		return failed(err)
	}
	res, err := tx.ExecContext(ctx, st.sql)
	if err != nil {
		if opened && mode == native.ExecCommitOnSuccess {
			_ = tx.Rollback()
			s.tx = nil
		}
		return failed(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		n = 0
	}
	st.affected = n
	st.cols = nil
	st.executed = true

	if mode == native.ExecCommitOnSuccess {
		s.tx = nil
		if err := tx.Commit(); err != nil {
			return failed(err)
		}
	}
	return succeeded()
}

func (l *Library) execDDL(ctx context.Context, s *session, st *statement) outcome {
	if s.conn == nil {
		return failed(errNotAttached)
	}
	if s.tx != nil {
		tx := s.tx
		s.tx = nil
		if err := tx.Commit(); err != nil {
			return failed(err)
		}
	}
	if _, err := s.conn.ExecContext(ctx, st.sql); err != nil {
		return failed(err)
	}
	st.affected = 0
	st.cols = nil
	st.executed = true
	return succeeded()
}

func (l *Library) tagOf(ct *sql.ColumnType, v any) native.TypeTag {
	name := normalizeTypeName(ct.DatabaseTypeName())
	if name != "" {
		if l.dialect.TypeTag != nil {
			if tag, ok := l.dialect.TypeTag(name); ok {
				return tag
			}
		}
		if tag, ok := genericTag(name); ok {
			return tag
		}
	}
	return tagOfValue(v)
}

func (l *Library) sizeOf(ct *sql.ColumnType, tag native.TypeTag) int {
	switch tag {
	case native.TypeCHR, native.TypeSTR, native.TypeVCS, native.TypeAFC, native.TypeAVC:
		if n, ok := ct.Length(); ok && n > 0 && n <= maxTextLength {
			return int(n)
		}
		return l.opts.TextSize
	case native.TypeCLOB:
		return l.opts.TextSize
	}
	return 0
}

func (l *Library) RowCount(stmt native.Statement, _ native.ErrorHandle) (int64, native.Status) {
	st, ok := l.stmts.Get(uint64(stmt))
	if !ok {
		return 0, native.InvalidHandle
	}
	return st.affected, native.Success
}

func (l *Library) ParamCount(stmt native.Statement, _ native.ErrorHandle) (int, native.Status) {
	st, ok := l.stmts.Get(uint64(stmt))
	if !ok {
		return 0, native.InvalidHandle
	}
	return len(st.cols), native.Success
}

func (l *Library) Describe(stmt native.Statement, errh native.ErrorHandle, pos int) (native.Param, native.Status) {
	st, ok := l.stmts.Get(uint64(stmt))
	if !ok {
		return native.Param{}, native.InvalidHandle
	}
	if pos < 1 || pos > len(st.cols) {
		return native.Param{}, l.record(errh, CodeNoDescriptor, "ORA-24334: no descriptor for this position")
	}
	c := st.cols[pos-1]
	return native.Param{Name: c.name, Type: c.tag, Size: c.size}, native.Success
}

func (l *Library) DefineByPos(stmt native.Statement, errh native.ErrorHandle, pos int, dest any, ind *native.Indicator, _ native.TypeTag) native.Status {
	st, ok := l.stmts.Get(uint64(stmt))
	if !ok {
		return native.InvalidHandle
	}
	if pos < 1 || pos > len(st.cols) {
		return l.record(errh, CodeNoDescriptor, "ORA-24334: no descriptor for this position")
	}
	switch dest.(type) {
	case *[]byte, *float64, *int64, *uint64, *native.Number, *native.Descriptor:
	default:
		return l.record(errh, CodeGeneric, fmt.Sprintf("unsupported define target %T", dest))
	}
	st.defines[pos] = define{dest: dest, ind: ind}
	return native.Success
}

func (l *Library) SetDefineCharset(stmt native.Statement, _ native.ErrorHandle, pos int, charset uint16) native.Status {
	st, ok := l.stmts.Get(uint64(stmt))
	if !ok {
		return native.InvalidHandle
	}
	st.charsets[pos] = charset
	return native.Success
}

// Fetch is synchronous in both modes.
func (l *Library) Fetch(_ context.Context, stmt native.Statement, errh native.ErrorHandle) native.Status {
	st, ok := l.stmts.Get(uint64(stmt))
	if !ok || !st.executed {
		return native.InvalidHandle
	}

	if st.buffered {
		st.buffered = false
	} else {
		more, err := st.next()
		if err != nil {
			return l.fail(errh, err)
		}
		if !more {
			return native.NoData
		}
	}

	status := native.Success
	for pos, d := range st.defines {
		truncated, err := l.write(d, st.row[pos-1])
		if err != nil {
			return l.record(errh, CodeConversion, fmt.Sprintf("ORA-01722: column %d: %v", pos, err))
		}
		if truncated {
			status = native.SuccessWithInfo
		}
	}
	return status
}

func (l *Library) FreeStatement(stmt native.Statement) native.Status {
	st, ok := l.stmts.Remove(uint64(stmt))
	if !ok {
		return native.InvalidHandle
	}
	if st.pending != nil {
		// let a running non-blocking call finish before releasing its rows
		<-st.pending.done
		st.pending = nil
	}
	st.reset()
	return native.Success
}
