// Package database implements the driver core: environments that own the
// native client context, connections that execute statements, and cursors
// that decode result rows into Go values.
//
// Handles form a strict hierarchy. A Cursor must be closed before its
// Connection, and a Connection before its Environment:
//
//	env, err := database.NewEnvironment(lib, database.WithLogger(log))
//	conn, err := env.Connect(ctx, "db", "scott", "tiger")
//	res, err := conn.Execute(ctx, "SELECT 1 AS one FROM dual")
//	row, _, err := res.Cursor.Fetch(ctx) // [1]
//	row, _, err = res.Cursor.Fetch(ctx)  // nil, cursor closed
//	conn.Close()
//	env.Close()
package database

import (
	"context"
	"sync"

	"github.com/koustreak/ocisql/internal/errs"
	"github.com/koustreak/ocisql/internal/logger"
	"github.com/koustreak/ocisql/internal/metrics"
	"github.com/koustreak/ocisql/internal/native"
)

// DefaultPrefetchRows is the statement prefetch count unless WithPrefetch says otherwise.
const DefaultPrefetchRows = 0

// Environment owns one native client context and counts the connections
// created from it. It must outlive all of them.
type Environment struct {
	mu      sync.Mutex
	closed  bool
	conns   int
	pending int // async logons not yet joined

	lib  native.Library
	env  native.Env
	errh native.ErrorHandle

	// serializes async logons against the shared native context
	loginMu sync.Mutex

	exactInt bool
	prefetch int
	log      *logger.Logger
}

// Option configures an Environment.
type Option func(*Environment)

// WithLogger sets the logger used by the environment and everything it creates.
func WithLogger(l *logger.Logger) Option {
	return func(e *Environment) {
		if l != nil {
			e.log = l
		}
	}
}

// WithInt64 selects whether integers decode as int64/uint64 (true, the
// default) or are widened to float64.
func WithInt64(on bool) Option {
	return func(e *Environment) { e.exactInt = on }
}

// WithPrefetch sets the number of rows prefetched per statement.
func WithPrefetch(rows int) Option {
	return func(e *Environment) {
		if rows >= 0 {
			e.prefetch = rows
		}
	}
}

// NewEnvironment initializes a native client context on lib.
func NewEnvironment(lib native.Library, opts ...Option) (*Environment, error) {
	if lib == nil {
		return nil, errs.Argument("native library expected")
	}
	e := &Environment{
		lib:      lib,
		exactInt: true,
		prefetch: DefaultPrefetchRows,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	env, st := lib.EnvCreate()
	if err := alloc(st, "environment"); err != nil {
		return nil, err
	}
	errh, st := lib.NewErrorHandle(env)
	if err := alloc(st, "error handle"); err != nil {
		lib.FreeEnv(env)
		return nil, err
	}
	e.env = env
	e.errh = errh

	e.log.DebugWith("environment created", map[string]interface{}{
		"int64":    e.exactInt,
		"prefetch": e.prefetch,
	})
	metrics.EnvironmentsCreated.Inc()
	return e, nil
}

func (e *Environment) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errs.Argument("environment is closed")
	}
	return nil
}

// Closed reports whether the environment has been closed.
func (e *Environment) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Connections returns the number of open connections.
func (e *Environment) Connections() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns
}

func (e *Environment) newConnection(source, user, password string) *Connection {
	creds := newCredentials(source, user, password)
	return &Connection{
		env:   e,
		creds: creds,
		log:   e.log.With().Str("source", creds.source).Str("user", creds.user).Logger(),
	}
}

func (e *Environment) connectionOpened() {
	e.mu.Lock()
	e.conns++
	e.mu.Unlock()
	metrics.ConnectionsOpened.Inc()
}

func (e *Environment) connectionClosed() {
	e.mu.Lock()
	e.conns--
	e.mu.Unlock()
}

// Connect logs on to source and blocks until the session is established.
func (e *Environment) Connect(ctx context.Context, source, user, password string) (*Connection, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	conn := e.newConnection(source, user, password)
	lib := e.lib

	errh, st := lib.NewErrorHandle(e.env)
	if err := alloc(st, "error handle"); err != nil {
		return nil, err
	}
	srv, sess, st := lib.Logon(ctx, e.env, errh, conn.creds.source, conn.creds.user, conn.creds.password)
	if err := check(lib, st, errh); err != nil {
		lib.FreeErrorHandle(errh)
		conn.log.WarnWith("logon failed", err, nil)
		return nil, err
	}

	conn.srv, conn.sess, conn.errh = srv, sess, errh
	e.connectionOpened()
	conn.log.Info("connected")
	return conn, nil
}

// Close frees the native context. It returns false if the environment was
// already closed and fails with a ResourceBusy error while connections are
// open or async logons have not been joined.
func (e *Environment) Close() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false, nil
	}
	if e.conns > 0 || e.pending > 0 {
		return false, errs.Busy("there are open connections")
	}

	if e.errh != 0 {
		e.lib.FreeErrorHandle(e.errh)
		e.errh = 0
	}
	if e.env != 0 {
		e.lib.FreeEnv(e.env)
		e.env = 0
	}
	e.closed = true
	e.log.Debug("environment closed")
	return true, nil
}
