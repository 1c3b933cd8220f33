package database

import (
	"context"
	"sync"

	"github.com/koustreak/ocisql/internal/errs"
	"github.com/koustreak/ocisql/internal/logger"
	"github.com/koustreak/ocisql/internal/metrics"
	"github.com/koustreak/ocisql/internal/native"
)

// maxCredential bounds source, user and password, in bytes.
const maxCredential = 255

type credentials struct {
	source   string
	user     string
	password string
}

func newCredentials(source, user, password string) credentials {
	return credentials{
		source:   bound(source),
		user:     bound(user),
		password: bound(password),
	}
}

func bound(s string) string {
	if len(s) > maxCredential {
		return s[:maxCredential]
	}
	return s
}

// Connection is a live session created by an Environment.
//
// A Connection is not safe for concurrent use, except for Abort and Reset,
// which may be called from another goroutine to interrupt a running call,
// and Close, which is idempotent.
type Connection struct {
	mu         sync.Mutex
	closed     bool
	autoCommit bool
	cursors    int
	pending    map[native.Statement]struct{} // executes awaiting Resume
	env        *Environment
	creds      credentials
	log        *logger.Logger

	// set by the logon (or the async worker) and read-only afterwards
	srv  native.Server
	sess native.Session
	errh native.ErrorHandle

	// non-nil while an asynchronous logon is in flight or not yet joined
	login *loginFuture
}

// Result is the outcome of Execute and Resume. Exactly one of Cursor,
// RowsAffected or Pending is meaningful, selected by Status and statement kind.
type Result struct {
	Status       Status
	Cursor       *Cursor
	RowsAffected int64
	Pending      *Pending
}

// Pending is the continuation token of an execute that returned
// StatusStillExecuting. Pass it to Connection.Resume.
type Pending struct {
	conn *Connection
	stmt native.Statement
	sql  string
}

// SQL returns the statement text of the pending execute.
func (p *Pending) SQL() string { return p.sql }

func (c *Connection) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errs.Argument("connection is closed")
	}
	return nil
}

// Closed reports whether the connection is closed (or not yet connected).
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Cursors returns the number of open cursors.
func (c *Connection) Cursors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursors
}

// AutoCommit reports the autocommit mode.
func (c *Connection) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit
}

// Execute runs sql. Queries yield a Cursor; other statements yield the number
// of affected rows. On a non-blocking connection the result may be pending;
// pass Result.Pending to Resume until it completes.
func (c *Connection) Execute(ctx context.Context, sql string) (*Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.execute(ctx, sql, 0)
}

// Resume continues an execute that returned StatusStillExecuting.
func (c *Connection) Resume(ctx context.Context, p *Pending) (*Result, error) {
	if p == nil || p.conn != c || p.stmt == 0 {
		return nil, errs.Argument("statement handle expected")
	}
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.execute(ctx, p.sql, p.stmt)
}

func (c *Connection) execute(ctx context.Context, sql string, stmt native.Statement) (*Result, error) {
	env := c.env
	lib := env.lib

	if stmt == 0 {
		var st native.Status
		stmt, st = lib.NewStatement(env.env)
		if err := alloc(st, "statement handle"); err != nil {
			return nil, err
		}
		if err := check(lib, lib.SetPrefetch(stmt, c.errh, env.prefetch), c.errh); err != nil {
			lib.FreeStatement(stmt)
			return nil, err
		}
		if err := check(lib, lib.Prepare(stmt, c.errh, sql), c.errh); err != nil {
			lib.FreeStatement(stmt)
			return nil, err
		}
	}

	kind, st := lib.StatementType(stmt, c.errh)
	if err := check(lib, st, c.errh); err != nil {
		c.forgetPending(stmt)
		lib.FreeStatement(stmt)
		return nil, err
	}

	iters := 1
	if kind == native.StmtSelect {
		iters = 0
	}
	mode := native.ExecDefault
	if c.AutoCommit() {
		mode = native.ExecCommitOnSuccess
	}

	st = lib.Execute(ctx, c.sess, stmt, c.errh, iters, mode)
	if st == native.StillExecuting {
		c.mu.Lock()
		if c.pending == nil {
			c.pending = make(map[native.Statement]struct{})
		}
		c.pending[stmt] = struct{}{}
		c.mu.Unlock()
		return &Result{
			Status:  StatusStillExecuting,
			Pending: &Pending{conn: c, stmt: stmt, sql: sql},
		}, nil
	}
	c.forgetPending(stmt)
	if !st.OK() && st != native.NoData {
		err := check(lib, st, c.errh)
		lib.FreeStatement(stmt)
		c.log.WarnWith("execute failed", err, map[string]interface{}{"code": errs.CodeOf(err)})
		return nil, err
	}
	metrics.StatementsExecuted.Inc()

	if kind == native.StmtSelect {
		cur, err := newCursor(c, stmt, sql)
		if err != nil {
			return nil, err
		}
		return &Result{Status: StatusSuccess, Cursor: cur}, nil
	}

	rows, st := lib.RowCount(stmt, c.errh)
	if err := check(lib, st, c.errh); err != nil {
		lib.FreeStatement(stmt)
		return nil, err
	}
	lib.FreeStatement(stmt)
	c.log.DebugWith("statement executed", map[string]interface{}{"rows_affected": rows})
	return &Result{Status: StatusSuccess, RowsAffected: rows}, nil
}

func (c *Connection) forgetPending(stmt native.Statement) {
	c.mu.Lock()
	delete(c.pending, stmt)
	c.mu.Unlock()
}

// Commit commits the current transaction.
func (c *Connection) Commit(ctx context.Context) (Status, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	lib := c.env.lib
	st := lib.Commit(ctx, c.sess, c.errh)
	if st == native.StillExecuting {
		return StatusStillExecuting, nil
	}
	if err := check(lib, st, c.errh); err != nil {
		return 0, err
	}
	return StatusSuccess, nil
}

// Rollback discards the current transaction.
func (c *Connection) Rollback(ctx context.Context) (Status, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	lib := c.env.lib
	st := lib.Rollback(ctx, c.sess, c.errh)
	if st == native.StillExecuting {
		return StatusStillExecuting, nil
	}
	if err := check(lib, st, c.errh); err != nil {
		return 0, err
	}
	return StatusSuccess, nil
}

// SetAutoCommit switches autocommit mode. Turning it on rolls back the
// transaction in progress; pending writes are never committed implicitly.
// The mode only changes once that rollback has completed.
func (c *Connection) SetAutoCommit(ctx context.Context, on bool) (Status, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if on {
		status, err := c.Rollback(ctx)
		if err != nil || status == StatusStillExecuting {
			return status, err
		}
	}
	c.mu.Lock()
	c.autoCommit = on
	c.mu.Unlock()
	return StatusSuccess, nil
}

// Abort interrupts the call currently running on the connection.
func (c *Connection) Abort() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	lib := c.env.lib
	return check(lib, lib.Break(c.srv, c.errh), c.errh)
}

// Reset clears the connection state after an Abort.
func (c *Connection) Reset() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	lib := c.env.lib
	return check(lib, lib.Reset(c.srv, c.errh), c.errh)
}

// Close ends the session. It returns false if the connection was already
// closed and fails with a ResourceBusy error while cursors are open.
// Executes still awaiting Resume are abandoned and their statements freed.
func (c *Connection) Close() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.login != nil {
		return false, errs.Argument("connection is still connecting")
	}
	if c.closed {
		return false, nil
	}
	if c.cursors > 0 {
		return false, errs.Busy("there are open cursors")
	}

	for stmt := range c.pending {
		c.env.lib.FreeStatement(stmt)
	}
	c.pending = nil
	c.releaseHandles()
	c.closed = true
	c.env.connectionClosed()

	c.log.Debug("connection closed")
	metrics.ConnectionsClosed.Inc()
	return true, nil
}

// releaseHandles ends the session, detaches the server and frees every handle.
func (c *Connection) releaseHandles() {
	lib := c.env.lib
	ctx := context.Background()
	if c.sess != 0 {
		lib.SessionEnd(ctx, c.sess, c.errh)
	}
	if c.srv != 0 {
		lib.ServerDetach(ctx, c.srv, c.errh)
		lib.FreeServer(c.srv)
		c.srv = 0
	}
	if c.sess != 0 {
		lib.FreeSession(c.sess)
		c.sess = 0
	}
	if c.errh != 0 {
		lib.FreeErrorHandle(c.errh)
		c.errh = 0
	}
}
