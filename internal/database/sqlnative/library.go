// Package sqlnative implements native.Library on top of database/sql drivers.
//
// Each server handle owns one sqlx.DB limited to a single connection, and a
// session pins that connection. Non-query statements run inside an implicit
// transaction that is finished by Commit, Rollback or commit-on-success
// execution. A server switched to non-blocking mode runs execute, commit and
// rollback on a goroutine and reports OCI_STILL_EXECUTING until the call is
// collected by re-invoking it.
//
//	lib := sqlnative.New(sqlite.Dialect())
//	env, err := database.NewEnvironment(lib)
package sqlnative

import (
	"context"
	"errors"
	"sync"

	"github.com/koustreak/ocisql/internal/logger"
	"github.com/koustreak/ocisql/internal/native"
)

// Native codes reported for failures that do not come from the driver.
const (
	CodeGeneric      = 20000
	CodeCancelled    = 1013
	CodeNoDescriptor = 24334
	CodeNotConnected = 3114
	CodeConversion   = 1722
)

type errorState struct {
	mu   sync.Mutex
	code int
	msg  string
}

// Library is a native.Library backed by a database/sql driver.
type Library struct {
	dialect Dialect
	opts    Options
	log     *logger.Logger

	envs     *native.Registry[struct{}]
	errhs    *native.Registry[*errorState]
	servers  *native.Registry[*server]
	sessions *native.Registry[*session]
	stmts    *native.Registry[*statement]
	descs    *native.Registry[*descriptor]
}

var _ native.Library = (*Library)(nil)

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger for connection lifecycle events.
func WithLogger(l *logger.Logger) Option {
	return func(lib *Library) {
		if l != nil {
			lib.log = l
		}
	}
}

// WithOptions replaces the connection settings.
func WithOptions(o Options) Option {
	return func(lib *Library) {
		if o.TextSize <= 0 {
			o.TextSize = DefaultTextSize
		}
		lib.opts = o
	}
}

// New returns a Library for d.
func New(d Dialect, opts ...Option) *Library {
	lib := &Library{
		dialect:  d,
		opts:     DefaultOptions(),
		log:      logger.Nop(),
		envs:     native.NewRegistry[struct{}](),
		errhs:    native.NewRegistry[*errorState](),
		servers:  native.NewRegistry[*server](),
		sessions: native.NewRegistry[*session](),
		stmts:    native.NewRegistry[*statement](),
		descs:    native.NewRegistry[*descriptor](),
	}
	for _, opt := range opts {
		opt(lib)
	}
	lib.log = lib.log.With().Str("dialect", d.Name).Logger()
	return lib
}

// Dialect returns the dialect the library was created for.
func (l *Library) Dialect() Dialect { return l.dialect }

func (l *Library) EnvCreate() (native.Env, native.Status) {
	return native.Env(l.envs.Add(struct{}{})), native.Success
}

func (l *Library) FreeEnv(env native.Env) native.Status {
	if _, ok := l.envs.Remove(uint64(env)); !ok {
		return native.InvalidHandle
	}
	return native.Success
}

func (l *Library) NewErrorHandle(env native.Env) (native.ErrorHandle, native.Status) {
	if _, ok := l.envs.Get(uint64(env)); !ok {
		return 0, native.InvalidHandle
	}
	return native.ErrorHandle(l.errhs.Add(&errorState{})), native.Success
}

func (l *Library) FreeErrorHandle(errh native.ErrorHandle) native.Status {
	if _, ok := l.errhs.Remove(uint64(errh)); !ok {
		return native.InvalidHandle
	}
	return native.Success
}

func (l *Library) ErrorGet(errh native.ErrorHandle) (int, string) {
	e, ok := l.errhs.Get(uint64(errh))
	if !ok {
		return 0, ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.code, e.msg
}

// record stores code and msg on errh and returns native.Error.
func (l *Library) record(errh native.ErrorHandle, code int, msg string) native.Status {
	if e, ok := l.errhs.Get(uint64(errh)); ok {
		e.mu.Lock()
		e.code, e.msg = code, msg
		e.mu.Unlock()
	}
	return native.Error
}

// fail translates err through the dialect and records it on errh.
func (l *Library) fail(errh native.ErrorHandle, err error) native.Status {
	code, msg := l.translate(err)
	return l.record(errh, code, msg)
}

func (l *Library) translate(err error) (int, string) {
	if errors.Is(err, errBreak) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancelled, "ORA-01013: user requested cancel of current operation"
	}
	if l.dialect.MapError != nil {
		if code, msg, ok := l.dialect.MapError(err); ok {
			return code, msg
		}
	}
	return CodeGeneric, err.Error()
}

// outcome is a status plus the error to record when the status is native.Error.
type outcome struct {
	status native.Status
	err    error
}

func succeeded() outcome { return outcome{status: native.Success} }

func failed(err error) outcome { return outcome{status: native.Error, err: err} }

// report turns an outcome into a status, recording its error on errh.
func (l *Library) report(errh native.ErrorHandle, o outcome) native.Status {
	if o.status == native.Error && o.err != nil {
		return l.fail(errh, o.err)
	}
	return o.status
}
