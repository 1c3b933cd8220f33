package database

import (
	"context"

	"github.com/koustreak/ocisql/internal/errs"
	"github.com/koustreak/ocisql/internal/metrics"
	"github.com/koustreak/ocisql/internal/native"
)

// loginFuture is the pending/ready state of one asynchronous logon.
// The worker writes the result fields and then closes done; readers only
// look at them after done is closed.
type loginFuture struct {
	done chan struct{}

	srv  native.Server
	sess native.Session
	errh native.ErrorHandle
	err  error
}

func newLoginFuture() *loginFuture {
	return &loginFuture{done: make(chan struct{})}
}

// Ready reports whether the worker has finished.
func (f *loginFuture) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the worker has finished or ctx is done.
func (f *loginFuture) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectAsync starts a logon in the background and returns at once with a
// connection that is not usable yet and StatusStillExecuting. Drive it with
// PollConnect or JoinConnect. The logon cannot be cancelled; it always runs
// to completion or failure, and the resulting session is non-blocking.
func (e *Environment) ConnectAsync(ctx context.Context, source, user, password string) (*Connection, Status, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, 0, errs.Argument("environment is closed")
	}
	e.pending++
	e.mu.Unlock()

	conn := e.newConnection(source, user, password)
	conn.closed = true
	conn.login = newLoginFuture()

	metrics.AsyncConnects.Inc()
	conn.log.Debug("async logon started")
	go e.login(context.WithoutCancel(ctx), conn.creds, conn.login)

	return conn, StatusStillExecuting, nil
}

// login runs the whole logon sequence for one async attempt.
func (e *Environment) login(ctx context.Context, creds credentials, f *loginFuture) {
	defer close(f.done)

	e.loginMu.Lock()
	defer e.loginMu.Unlock()

	lib := e.lib

	errh, st := lib.NewErrorHandle(e.env)
	if f.err = alloc(st, "error handle"); f.err != nil {
		return
	}
	srv, st := lib.NewServer(e.env)
	if f.err = alloc(st, "server handle"); f.err != nil {
		lib.FreeErrorHandle(errh)
		return
	}
	if f.err = check(lib, lib.ServerAttach(ctx, srv, errh, creds.source), errh); f.err != nil {
		lib.FreeServer(srv)
		lib.FreeErrorHandle(errh)
		return
	}
	sess, st := lib.SessionBegin(ctx, srv, errh, creds.user, creds.password)
	if f.err = check(lib, st, errh); f.err != nil {
		lib.ServerDetach(ctx, srv, errh)
		lib.FreeServer(srv)
		lib.FreeErrorHandle(errh)
		return
	}
	if f.err = check(lib, lib.SetNonBlocking(srv, errh), errh); f.err != nil {
		lib.SessionEnd(ctx, sess, errh)
		lib.ServerDetach(ctx, srv, errh)
		lib.FreeSession(sess)
		lib.FreeServer(srv)
		lib.FreeErrorHandle(errh)
		return
	}
	f.srv, f.sess, f.errh = srv, sess, errh
}

// PollConnect checks an async logon without blocking. While the worker runs
// it returns the same connection with StatusStillExecuting. Once it has
// finished, the first call returns the open connection with StatusSuccess (or
// the logon error); later calls fail with an Argument error.
func (e *Environment) PollConnect(conn *Connection) (*Connection, Status, error) {
	f, err := e.pendingLogin(conn)
	if err != nil {
		return nil, 0, err
	}
	if !f.Ready() {
		return conn, StatusStillExecuting, nil
	}
	if err := e.finishLogin(conn, f); err != nil {
		return nil, 0, err
	}
	return conn, StatusSuccess, nil
}

// JoinConnect waits for an async logon and returns the open connection.
// If ctx ends first the logon stays pending and can be joined again.
func (e *Environment) JoinConnect(ctx context.Context, conn *Connection) (*Connection, error) {
	f, err := e.pendingLogin(conn)
	if err != nil {
		return nil, err
	}
	if err := f.Wait(ctx); err != nil {
		return nil, err
	}
	if err := e.finishLogin(conn, f); err != nil {
		return nil, err
	}
	return conn, nil
}

func (e *Environment) pendingLogin(conn *Connection) (*loginFuture, error) {
	if conn == nil || conn.env != e {
		return nil, errs.Argument("connection expected")
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.login == nil {
		return nil, errs.Argument("connection is not connecting")
	}
	return conn.login, nil
}

// finishLogin moves the worker's result into conn exactly once.
func (e *Environment) finishLogin(conn *Connection, f *loginFuture) error {
	conn.mu.Lock()
	if conn.login != f {
		conn.mu.Unlock()
		return errs.Argument("connection is not connecting")
	}
	conn.login = nil
	if f.err == nil {
		conn.srv, conn.sess, conn.errh = f.srv, f.sess, f.errh
		conn.closed = false
	}
	conn.mu.Unlock()

	e.mu.Lock()
	e.pending--
	e.mu.Unlock()

	if f.err != nil {
		conn.log.WarnWith("async logon failed", f.err, nil)
		return f.err
	}
	e.connectionOpened()
	conn.log.Info("connected")
	return nil
}
