// Package nativetest provides an in-memory native.Library whose statements
// are scripted by SQL text. It counts live handles so tests can assert that
// every allocation was released.
package nativetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/koustreak/ocisql/internal/native"
)

// Column describes one scripted result field.
type Column struct {
	Name string
	Type native.TypeTag
	Size int
}

// Failure is a scripted native error.
type Failure struct {
	Code    int
	Message string
}

// Script is the behaviour of one SQL text.
//
// Row values are nil (NULL), string, float64, int64, uint64, int,
// native.Number or time.Time, matching the column type.
type Script struct {
	Kind         native.StmtKind
	Columns      []Column
	Rows         [][]any
	RowsAffected int64

	// Pending makes Execute return StillExecuting this many times first.
	Pending int
	// FetchPending makes every Fetch return StillExecuting this many times first.
	FetchPending int

	ExecuteErr *Failure
	FetchErr   *Failure
}

// Allocation points that FailAlloc can break.
const (
	AllocEnv        = "env"
	AllocError      = "errh"
	AllocServer     = "server"
	AllocStatement  = "stmt"
	AllocDescriptor = "desc"
)

// ErrUnknownStatement is reported by Prepare for SQL without a script.
var ErrUnknownStatement = Failure{Code: 900, Message: "ORA-00900: invalid SQL statement"}

type errState struct {
	code int
	msg  string
}

type serverState struct {
	source      string
	attached    bool
	nonBlocking bool
}

type sessionState struct {
	server native.Server
	user   string
}

type define struct {
	dest any
	ind  *native.Indicator
	ext  native.TypeTag
}

type stmtState struct {
	sql          string
	script       Script
	prepared     bool
	executed     bool
	pending      int
	fetchPending int
	row          int
	prefetch     int
	defines      map[int]define
	charsets     map[int]uint16
}

type descState struct {
	kind native.DescriptorKind
	t    time.Time
	lob  string
}

// Library is a scripted native.Library. The zero value is not usable; call New.
type Library struct {
	mu        sync.Mutex
	scripts   map[string]Script
	logonErr  *Failure
	gate      chan struct{}
	allocFail map[string]bool

	commits   int
	rollbacks int
	breaks    int
	resets    int
	modes     []native.ExecMode
	logons    int

	envs     *native.Registry[struct{}]
	errhs    *native.Registry[*errState]
	servers  *native.Registry[*serverState]
	sessions *native.Registry[*sessionState]
	stmts    *native.Registry[*stmtState]
	descs    *native.Registry[*descState]
}

var _ native.Library = (*Library)(nil)

// New returns a library with no scripts.
func New() *Library {
	return &Library{
		scripts:   make(map[string]Script),
		allocFail: make(map[string]bool),
		envs:      native.NewRegistry[struct{}](),
		errhs:     native.NewRegistry[*errState](),
		servers:   native.NewRegistry[*serverState](),
		sessions:  native.NewRegistry[*sessionState](),
		stmts:     native.NewRegistry[*stmtState](),
		descs:     native.NewRegistry[*descState](),
	}
}

// On scripts the behaviour of sql.
func (l *Library) On(sql string, s Script) *Library {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scripts[sql] = s
	return l
}

// FailLogon makes every following logon fail with f; nil clears it.
func (l *Library) FailLogon(f *Failure) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logonErr = f
}

// FailAlloc makes the named allocation point fail.
func (l *Library) FailAlloc(what string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allocFail[what] = true
}

// HoldLogons blocks SessionBegin until the returned release func is called.
func (l *Library) HoldLogons() (release func()) {
	gate := make(chan struct{})
	l.mu.Lock()
	l.gate = gate
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.gate == gate {
				l.gate = nil
			}
			l.mu.Unlock()
			close(gate)
		})
	}
}

// LiveHandles returns the number of allocated, not yet freed handles.
func (l *Library) LiveHandles() int {
	return l.envs.Len() + l.errhs.Len() + l.servers.Len() +
		l.sessions.Len() + l.stmts.Len() + l.descs.Len()
}

// LiveStatements returns the number of statement handles not yet freed.
func (l *Library) LiveStatements() int { return l.stmts.Len() }

// LiveDescriptors returns the number of descriptors not yet freed.
func (l *Library) LiveDescriptors() int { return l.descs.Len() }

// Commits returns the number of commits, explicit or on success.
func (l *Library) Commits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commits
}

// Rollbacks returns the number of Rollback calls.
func (l *Library) Rollbacks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rollbacks
}

// Breaks returns the number of Break calls.
func (l *Library) Breaks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.breaks
}

// Resets returns the number of Reset calls.
func (l *Library) Resets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resets
}

// Logons returns the number of sessions begun.
func (l *Library) Logons() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logons
}

// ExecModes returns the mode of every completed Execute, in order.
func (l *Library) ExecModes() []native.ExecMode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]native.ExecMode(nil), l.modes...)
}

// NonBlocking reports whether srv was switched to non-blocking mode.
func (l *Library) NonBlocking(srv native.Server) bool {
	s, ok := l.servers.Get(uint64(srv))
	return ok && s.nonBlocking
}

func (l *Library) allocFails(what string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allocFail[what]
}

func (l *Library) fail(errh native.ErrorHandle, f Failure) native.Status {
	if e, ok := l.errhs.Get(uint64(errh)); ok {
		l.mu.Lock()
		e.code, e.msg = f.Code, f.Message
		l.mu.Unlock()
	}
	return native.Error
}

func (l *Library) stmt(stmt native.Statement) (*stmtState, bool) {
	return l.stmts.Get(uint64(stmt))
}

// --- environment & error handles ---

func (l *Library) EnvCreate() (native.Env, native.Status) {
	if l.allocFails(AllocEnv) {
		return 0, native.Error
	}
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
	if l.allocFails(AllocError) {
		return 0, native.Error
	}
	return native.ErrorHandle(l.errhs.Add(&errState{})), native.Success
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
	l.mu.Lock()
	defer l.mu.Unlock()
	return e.code, e.msg
}

// --- sessions ---

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
	if l.allocFails(AllocServer) {
		return 0, native.Error
	}
	return native.Server(l.servers.Add(&serverState{})), native.Success
}

func (l *Library) ServerAttach(_ context.Context, srv native.Server, errh native.ErrorHandle, source string) native.Status {
	s, ok := l.servers.Get(uint64(srv))
	if !ok {
		return native.InvalidHandle
	}
	if source == "" {
		return l.fail(errh, Failure{Code: 12154, Message: "ORA-12154: TNS:could not resolve the connect identifier specified"})
	}
	l.mu.Lock()
	s.source, s.attached = source, true
	l.mu.Unlock()
	return native.Success
}

func (l *Library) SessionBegin(ctx context.Context, srv native.Server, errh native.ErrorHandle, user, _ string) (native.Session, native.Status) {
	if _, ok := l.servers.Get(uint64(srv)); !ok {
		return 0, native.InvalidHandle
	}

	l.mu.Lock()
	gate := l.gate
	l.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, l.fail(errh, Failure{Code: 1013, Message: "ORA-01013: user requested cancel of current operation"})
		}
	}

	l.mu.Lock()
	f := l.logonErr
	if f == nil {
		l.logons++
	}
	l.mu.Unlock()
	if f != nil {
		return 0, l.fail(errh, *f)
	}
	return native.Session(l.sessions.Add(&sessionState{server: srv, user: user})), native.Success
}

func (l *Library) SetNonBlocking(srv native.Server, _ native.ErrorHandle) native.Status {
	s, ok := l.servers.Get(uint64(srv))
	if !ok {
		return native.InvalidHandle
	}
	l.mu.Lock()
	s.nonBlocking = true
	l.mu.Unlock()
	return native.Success
}

func (l *Library) SessionEnd(_ context.Context, sess native.Session, _ native.ErrorHandle) native.Status {
	if _, ok := l.sessions.Get(uint64(sess)); !ok {
		return native.InvalidHandle
	}
	return native.Success
}

func (l *Library) ServerDetach(_ context.Context, srv native.Server, _ native.ErrorHandle) native.Status {
	s, ok := l.servers.Get(uint64(srv))
	if !ok {
		return native.InvalidHandle
	}
	l.mu.Lock()
	s.attached = false
	l.mu.Unlock()
	return native.Success
}

func (l *Library) FreeServer(srv native.Server) native.Status {
	if _, ok := l.servers.Remove(uint64(srv)); !ok {
		return native.InvalidHandle
	}
	return native.Success
}

func (l *Library) FreeSession(sess native.Session) native.Status {
	if _, ok := l.sessions.Remove(uint64(sess)); !ok {
		return native.InvalidHandle
	}
	return native.Success
}

func (l *Library) Break(srv native.Server, _ native.ErrorHandle) native.Status {
	if _, ok := l.servers.Get(uint64(srv)); !ok {
		return native.InvalidHandle
	}
	l.mu.Lock()
	l.breaks++
	l.mu.Unlock()
	return native.Success
}

func (l *Library) Reset(srv native.Server, _ native.ErrorHandle) native.Status {
	if _, ok := l.servers.Get(uint64(srv)); !ok {
		return native.InvalidHandle
	}
	l.mu.Lock()
	l.resets++
	l.mu.Unlock()
	return native.Success
}

func (l *Library) Commit(_ context.Context, sess native.Session, _ native.ErrorHandle) native.Status {
	if _, ok := l.sessions.Get(uint64(sess)); !ok {
		return native.InvalidHandle
	}
	l.mu.Lock()
	l.commits++
	l.mu.Unlock()
	return native.Success
}

func (l *Library) Rollback(_ context.Context, sess native.Session, _ native.ErrorHandle) native.Status {
	if _, ok := l.sessions.Get(uint64(sess)); !ok {
		return native.InvalidHandle
	}
	l.mu.Lock()
	l.rollbacks++
	l.mu.Unlock()
	return native.Success
}

// --- statements ---

func (l *Library) NewStatement(env native.Env) (native.Statement, native.Status) {
	if _, ok := l.envs.Get(uint64(env)); !ok {
		return 0, native.InvalidHandle
	}
	if l.allocFails(AllocStatement) {
		return 0, native.Error
	}
	st := &stmtState{defines: make(map[int]define), charsets: make(map[int]uint16)}
	return native.Statement(l.stmts.Add(st)), native.Success
}

func (l *Library) SetPrefetch(stmt native.Statement, _ native.ErrorHandle, rows int) native.Status {
	s, ok := l.stmt(stmt)
	if !ok {
		return native.InvalidHandle
	}
	s.prefetch = rows
	return native.Success
}

func (l *Library) Prepare(stmt native.Statement, errh native.ErrorHandle, sql string) native.Status {
	s, ok := l.stmt(stmt)
	if !ok {
		return native.InvalidHandle
	}
	l.mu.Lock()
	script, known := l.scripts[sql]
	l.mu.Unlock()
	if !known {
		return l.fail(errh, ErrUnknownStatement)
	}
	s.sql = sql
	s.script = script
	s.prepared = true
	s.pending = script.Pending
	return native.Success
}

func (l *Library) StatementType(stmt native.Statement, _ native.ErrorHandle) (native.StmtKind, native.Status) {
	s, ok := l.stmt(stmt)
	if !ok || !s.prepared {
		return 0, native.InvalidHandle
	}
	return s.script.Kind, native.Success
}

func (l *Library) Execute(_ context.Context, sess native.Session, stmt native.Statement, errh native.ErrorHandle, _ int, mode native.ExecMode) native.Status {
	if _, ok := l.sessions.Get(uint64(sess)); !ok {
		return native.InvalidHandle
	}
	s, ok := l.stmt(stmt)
	if !ok || !s.prepared {
		return native.InvalidHandle
	}
	if s.pending > 0 {
		s.pending--
		return native.StillExecuting
	}
	if s.script.ExecuteErr != nil {
		return l.fail(errh, *s.script.ExecuteErr)
	}
	s.executed = true
	s.fetchPending = s.script.FetchPending

	l.mu.Lock()
	l.modes = append(l.modes, mode)
	if mode == native.ExecCommitOnSuccess && s.script.Kind != native.StmtSelect {
		l.commits++
	}
	l.mu.Unlock()
	return native.Success
}

func (l *Library) RowCount(stmt native.Statement, _ native.ErrorHandle) (int64, native.Status) {
	s, ok := l.stmt(stmt)
	if !ok {
		return 0, native.InvalidHandle
	}
	return s.script.RowsAffected, native.Success
}

func (l *Library) ParamCount(stmt native.Statement, _ native.ErrorHandle) (int, native.Status) {
	s, ok := l.stmt(stmt)
	if !ok {
		return 0, native.InvalidHandle
	}
	return len(s.script.Columns), native.Success
}

func (l *Library) Describe(stmt native.Statement, errh native.ErrorHandle, pos int) (native.Param, native.Status) {
	s, ok := l.stmt(stmt)
	if !ok {
		return native.Param{}, native.InvalidHandle
	}
	if pos < 1 || pos > len(s.script.Columns) {
		return native.Param{}, l.fail(errh, Failure{Code: 24334, Message: "ORA-24334: no descriptor for this position"})
	}
	c := s.script.Columns[pos-1]
	return native.Param{Name: c.Name, Type: c.Type, Size: c.Size}, native.Success
}

func (l *Library) DefineByPos(stmt native.Statement, _ native.ErrorHandle, pos int, dest any, ind *native.Indicator, ext native.TypeTag) native.Status {
	s, ok := l.stmt(stmt)
	if !ok {
		return native.InvalidHandle
	}
	s.defines[pos] = define{dest: dest, ind: ind, ext: ext}
	return native.Success
}

func (l *Library) SetDefineCharset(stmt native.Statement, _ native.ErrorHandle, pos int, charset uint16) native.Status {
	s, ok := l.stmt(stmt)
	if !ok {
		return native.InvalidHandle
	}
	s.charsets[pos] = charset
	return native.Success
}

// Charset returns the charset set on the define at pos of stmt.
func (l *Library) Charset(stmt native.Statement, pos int) uint16 {
	s, ok := l.stmt(stmt)
	if !ok {
		return 0
	}
	return s.charsets[pos]
}

func (l *Library) Fetch(_ context.Context, stmt native.Statement, errh native.ErrorHandle) native.Status {
	s, ok := l.stmt(stmt)
	if !ok || !s.executed {
		return native.InvalidHandle
	}
	if s.fetchPending > 0 {
		s.fetchPending--
		return native.StillExecuting
	}
	s.fetchPending = s.script.FetchPending
	if s.script.FetchErr != nil {
		return l.fail(errh, *s.script.FetchErr)
	}
	if s.row >= len(s.script.Rows) {
		return native.NoData
	}
	row := s.script.Rows[s.row]
	s.row++

	status := native.Success
	for pos, d := range s.defines {
		var v any
		if pos-1 < len(row) {
			v = row[pos-1]
		}
		st := l.write(d, v)
		if st == native.Error {
			return l.fail(errh, Failure{Code: 1722, Message: fmt.Sprintf("ORA-01722: invalid number at position %d", pos)})
		}
		if st == native.SuccessWithInfo {
			status = st
		}
	}
	return status
}

// write stores v into the define target.
func (l *Library) write(d define, v any) native.Status {
	if v == nil {
		*d.ind = -1
		return native.Success
	}
	*d.ind = 0

	switch dest := d.dest.(type) {
	case *[]byte:
		s := fmt.Sprint(v)
		buf := *dest
		if len(buf) == 0 {
			return native.SuccessWithInfo
		}
		n := copy(buf[:len(buf)-1], s)
		buf[n] = 0
		if n < len(s) {
			return native.SuccessWithInfo
		}
	case *float64:
		f, ok := toNumber(v)
		if !ok {
			return native.Error
		}
		*dest = f.Float64()
	case *int64:
		f, ok := toNumber(v)
		if !ok {
			return native.Error
		}
		i, ok := f.Int64()
		if !ok {
			return native.Error
		}
		*dest = i
	case *uint64:
		f, ok := toNumber(v)
		if !ok {
			return native.Error
		}
		u, ok := f.Uint64()
		if !ok {
			return native.Error
		}
		*dest = u
	case *native.Number:
		n, ok := toNumber(v)
		if !ok {
			return native.Error
		}
		*dest = n
	case *native.Descriptor:
		desc, ok := l.descs.Get(uint64(*dest))
		if !ok {
			return native.Error
		}
		switch x := v.(type) {
		case time.Time:
			desc.t = x
		case string:
			desc.lob = x
		default:
			return native.Error
		}
	default:
		return native.Error
	}
	return native.Success
}

func toNumber(v any) (native.Number, bool) {
	switch x := v.(type) {
	case native.Number:
		return x, true
	case int:
		return native.NumberFromInt64(int64(x)), true
	case int64:
		return native.NumberFromInt64(x), true
	case uint64:
		return native.NumberFromUint64(x), true
	case float64:
		return native.NumberFromFloat64(x), true
	case string:
		n, err := native.ParseNumber(x)
		return n, err == nil
	}
	return native.Number{}, false
}

func (l *Library) FreeStatement(stmt native.Statement) native.Status {
	if _, ok := l.stmts.Remove(uint64(stmt)); !ok {
		return native.InvalidHandle
	}
	return native.Success
}

// --- descriptors ---

func (l *Library) NewDescriptor(env native.Env, kind native.DescriptorKind) (native.Descriptor, native.Status) {
	if _, ok := l.envs.Get(uint64(env)); !ok {
		return 0, native.InvalidHandle
	}
	if l.allocFails(AllocDescriptor) {
		return 0, native.Error
	}
	return native.Descriptor(l.descs.Add(&descState{kind: kind})), native.Success
}

func (l *Library) FreeDescriptor(desc native.Descriptor, kind native.DescriptorKind) native.Status {
	d, ok := l.descs.Get(uint64(desc))
	if !ok || d.kind != kind {
		return native.InvalidHandle
	}
	l.descs.Remove(uint64(desc))
	return native.Success
}

func (l *Library) DateTimeGet(_ native.Env, _ native.ErrorHandle, desc native.Descriptor) (native.DateTime, native.Status) {
	d, ok := l.descs.Get(uint64(desc))
	if !ok || d.kind != native.DescTimestamp {
		return native.DateTime{}, native.InvalidHandle
	}
	return native.DateTimeOf(d.t), native.Success
}

func (l *Library) LobLength(_ context.Context, _ native.Session, _ native.ErrorHandle, desc native.Descriptor) (int, native.Status) {
	d, ok := l.descs.Get(uint64(desc))
	if !ok || d.kind != native.DescLob {
		return 0, native.InvalidHandle
	}
	return len(d.lob), native.Success
}

func (l *Library) LobRead(_ context.Context, _ native.Session, _ native.ErrorHandle, desc native.Descriptor, buf []byte) (int, native.Status) {
	d, ok := l.descs.Get(uint64(desc))
	if !ok || d.kind != native.DescLob {
		return 0, native.InvalidHandle
	}
	return copy(buf, d.lob), native.Success
}
