package sqlnative

import (
	"context"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/koustreak/ocisql/internal/native"
)

var (
	errNotAttached = errors.New("ORA-03114: not connected to ORACLE")
	errNoSource    = errors.New("ORA-12154: TNS:could not resolve the connect identifier specified")
	errBreak       = errors.New("ORA-01013: user requested cancel of current operation")
)

// inflight is one running call that Break can cancel.
type inflight struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

type server struct {
	mu          sync.Mutex
	source      string
	db          *sqlx.DB
	nonBlocking bool

	nextCall uint64
	calls    map[uint64]*inflight
	cursors  map[*statement]context.CancelFunc
}

// track derives a cancellable context for one call on s. release must be
// called when the call has finished.
func (s *server) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	c := &inflight{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.nextCall++
	id := s.nextCall
	s.calls[id] = c
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		delete(s.calls, id)
		s.mu.Unlock()
		cancel(nil)
		close(c.done)
	}
}

// cancelAll cancels every in-flight call and open result set and returns
// the done channels of the calls.
func (s *server) cancelAll() []chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := make([]chan struct{}, 0, len(s.calls))
	for _, c := range s.calls {
		c.cancel(errBreak)
		done = append(done, c.done)
	}
	for _, cancel := range s.cursors {
		cancel()
	}
	return done
}

func (s *server) isNonBlocking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonBlocking
}

// call is a non-blocking operation running on a goroutine.
type call struct {
	done chan struct{}
	res  outcome
}

type session struct {
	srv  *server
	conn *sqlx.Conn

	mu sync.Mutex
	tx *sqlx.Tx

	// pending non-blocking commit or rollback
	txCall *call
	txOp   string
}

// run executes fn on srv. In blocking mode it runs inline. In non-blocking
// mode the first invocation starts fn on a goroutine and reports
// StillExecuting; re-invocations report StillExecuting until fn has finished
// and then return its outcome, clearing *pending.
func (l *Library) run(ctx context.Context, srv *server, pending **call, fn func(context.Context) outcome) outcome {
	if !srv.isNonBlocking() {
		ctx, release := srv.track(ctx)
		defer release()
		return fn(ctx)
	}

	if *pending == nil {
		ctx, release := srv.track(context.WithoutCancel(ctx))
		c := &call{done: make(chan struct{})}
		*pending = c
		go func() {
			defer close(c.done)
			defer release()
			c.res = fn(ctx)
		}()
		return outcome{status: native.StillExecuting}
	}

	c := *pending
	select {
	case <-c.done:
		*pending = nil
		return c.res
	default:
		return outcome{status: native.StillExecuting}
	}
}

func (l *Library) Logon(ctx context.Context, env native.Env, errh native.ErrorHandle, source, user, password string) (native.Server, native.Session, native.Status) {
	srv, st := l.NewServer(env)
	if !st.OK() {
		return 0, 0, st
	}
	if st := l.ServerAttach(ctx, srv, errh, source); !st.OK() {
		l.FreeServer(srv)
		return 0, 0, st
	}
	sess, st := l.SessionBegin(ctx, srv, errh, user, password)
	if !st.OK() {
		l.ServerDetach(ctx, srv, errh)
		l.FreeServer(srv)
		return 0, 0, st
	}
	return srv, sess, native.Success
}

func (l *Library) NewServer(env native.Env) (native.Server, native.Status) {
	if _, ok := l.envs.Get(uint64(env)); !ok {
		return 0, native.InvalidHandle
	}
	s := &server{calls: make(map[uint64]*inflight)}
	return native.Server(l.servers.Add(s)), native.Success
}

func (l *Library) ServerAttach(_ context.Context, srv native.Server, errh native.ErrorHandle, source string) native.Status {
	s, ok := l.servers.Get(uint64(srv))
	if !ok {
		return native.InvalidHandle
	}
	if source == "" {
		return l.fail(errh, errNoSource)
	}
	s.mu.Lock()
	s.source = source
	s.mu.Unlock()
	return native.Success
}

func (l *Library) SessionBegin(ctx context.Context, srv native.Server, errh native.ErrorHandle, user, password string) (native.Session, native.Status) {
	s, ok := l.servers.Get(uint64(srv))
	if !ok {
		return 0, native.InvalidHandle
	}
	s.mu.Lock()
	source := s.source
	s.mu.Unlock()
	if source == "" {
		return 0, l.fail(errh, errNotAttached)
	}

	dsn, err := l.dialect.DSN(source, user, password)
	if err != nil {
		return 0, l.fail(errh, err)
	}
	db, err := sqlx.Open(l.dialect.DriverName, dsn)
	if err != nil {
		return 0, l.fail(errh, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(l.opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(l.opts.ConnMaxIdleTime)

	pingCtx := ctx
	if l.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, l.opts.ConnectTimeout)
		defer cancel()
	}
	conn, err := db.Connx(pingCtx)
	if err == nil {
		err = conn.PingContext(pingCtx)
		if err != nil {
			_ = conn.Close()
		}
	}
	if err != nil {
		_ = db.Close()
		l.log.WarnWith("session begin failed", err, map[string]interface{}{"user": user})
		return 0, l.fail(errh, err)
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()

	l.log.DebugWith("session begun", map[string]interface{}{"user": user})
	return native.Session(l.sessions.Add(&session{srv: s, conn: conn})), native.Success
}

func (l *Library) SetNonBlocking(srv native.Server, errh native.ErrorHandle) native.Status {
	s, ok := l.servers.Get(uint64(srv))
	if !ok {
		return native.InvalidHandle
	}
	s.mu.Lock()
	attached := s.db != nil
	if attached {
		s.nonBlocking = true
	}
	s.mu.Unlock()
	if !attached {
		return l.fail(errh, errNotAttached)
	}
	return native.Success
}

// SessionEnd rolls back any open transaction and returns the pinned connection.
func (l *Library) SessionEnd(_ context.Context, sess native.Session, errh native.ErrorHandle) native.Status {
	s, ok := l.sessions.Get(uint64(sess))
	if !ok {
		return native.InvalidHandle
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.tx != nil {
		err = s.tx.Rollback()
		s.tx = nil
	}
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
		s.conn = nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return l.fail(errh, err)
	}
	return native.Success
}

func (l *Library) ServerDetach(_ context.Context, srv native.Server, errh native.ErrorHandle) native.Status {
	s, ok := l.servers.Get(uint64(srv))
	if !ok {
		return native.InvalidHandle
	}
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.nonBlocking = false
	s.mu.Unlock()

	if db == nil {
		return native.Success
	}
	if err := db.Close(); err != nil {
		return l.fail(errh, err)
	}
	l.log.Debug("server detached")
	return native.Success
}

func (l *Library) FreeServer(srv native.Server) native.Status {
	s, ok := l.servers.Remove(uint64(srv))
	if !ok {
		return native.InvalidHandle
	}
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db != nil {
		_ = db.Close()
	}
	return native.Success
}

func (l *Library) FreeSession(sess native.Session) native.Status {
	s, ok := l.sessions.Remove(uint64(sess))
	if !ok {
		return native.InvalidHandle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	return native.Success
}

// Break cancels every call in flight on srv.
func (l *Library) Break(srv native.Server, _ native.ErrorHandle) native.Status {
	s, ok := l.servers.Get(uint64(srv))
	if !ok {
		return native.InvalidHandle
	}
	n := len(s.cancelAll())
	l.log.DebugWith("break", map[string]interface{}{"calls": n})
	return native.Success
}

// Reset cancels every call in flight on srv and waits until they have returned.
func (l *Library) Reset(srv native.Server, _ native.ErrorHandle) native.Status {
	s, ok := l.servers.Get(uint64(srv))
	if !ok {
		return native.InvalidHandle
	}
	for _, done := range s.cancelAll() {
		<-done
	}
	return native.Success
}

func (l *Library) Commit(ctx context.Context, sess native.Session, errh native.ErrorHandle) native.Status {
	return l.endTx(ctx, sess, errh, "commit")
}

func (l *Library) Rollback(ctx context.Context, sess native.Session, errh native.ErrorHandle) native.Status {
	return l.endTx(ctx, sess, errh, "rollback")
}

func (l *Library) endTx(ctx context.Context, sess native.Session, errh native.ErrorHandle, op string) native.Status {
	s, ok := l.sessions.Get(uint64(sess))
	if !ok {
		return native.InvalidHandle
	}

	// a pending call of the other kind is collected first
	if s.txCall != nil && s.txOp != op {
		op = s.txOp
	}
	s.txOp = op

	o := l.run(ctx, s.srv, &s.txCall, func(context.Context) outcome {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.tx == nil {
			return succeeded()
		}
		tx := s.tx
		s.tx = nil
		var err error
		if op == "commit" {
			err = tx.Commit()
		} else {
			err = tx.Rollback()
		}
		if err != nil {
			return failed(err)
		}
		return succeeded()
	})
	return l.report(errh, o)
}

// begin returns the open transaction of s, starting one if needed. opened
// reports whether this call started it. s.mu must be held.
func (s *session) begin(ctx context.Context) (tx *sqlx.Tx, opened bool, err error) {
	if s.tx != nil {
		return s.tx, false, nil
	}
	if s.conn == nil {
		return nil, false, errNotAttached
	}
	// the transaction outlives the statement context
	tx, err = s.conn.BeginTxx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, false, err
	}
	s.tx = tx
	return tx, true, nil
}
