// Package native defines the surface of the database client library that the
// driver core is written against.
//
// The surface is deliberately call-and-status shaped: every operation returns
// a Status, and failure details are retrieved separately from an ErrorHandle
// with ErrorGet. Only the status adapter in package database interprets these
// codes.
//
// Implementations:
//
//	sqlnative.New(dialect)   // database/sql drivers (postgres, mysql, sqlite)
//	nativetest.New()         // programmable in-memory library for tests
package native

import "context"

// Library is the native client library. Handles returned by one Library must
// only be passed back to the same Library.
type Library interface {
	// --- environment & error handles ---

	EnvCreate() (Env, Status)
	FreeEnv(env Env) Status
	NewErrorHandle(env Env) (ErrorHandle, Status)
	FreeErrorHandle(errh ErrorHandle) Status

	// ErrorGet returns the code and message of the last failure recorded on errh.
	ErrorGet(errh ErrorHandle) (code int, message string)

	// --- sessions ---

	// Logon attaches to source and begins a session in one blocking call.
	Logon(ctx context.Context, env Env, errh ErrorHandle, source, user, password string) (Server, Session, Status)

	NewServer(env Env) (Server, Status)
	ServerAttach(ctx context.Context, srv Server, errh ErrorHandle, source string) Status
	SessionBegin(ctx context.Context, srv Server, errh ErrorHandle, user, password string) (Session, Status)

	// SetNonBlocking switches srv so that long calls return StillExecuting
	// instead of blocking.
	SetNonBlocking(srv Server, errh ErrorHandle) Status

	SessionEnd(ctx context.Context, sess Session, errh ErrorHandle) Status
	ServerDetach(ctx context.Context, srv Server, errh ErrorHandle) Status
	FreeServer(srv Server) Status
	FreeSession(sess Session) Status

	// Break interrupts the call currently running on srv. Safe to call from
	// another goroutine.
	Break(srv Server, errh ErrorHandle) Status

	// Reset clears the interrupted state of srv after a Break.
	Reset(srv Server, errh ErrorHandle) Status

	Commit(ctx context.Context, sess Session, errh ErrorHandle) Status
	Rollback(ctx context.Context, sess Session, errh ErrorHandle) Status

	// --- statements ---

	NewStatement(env Env) (Statement, Status)
	SetPrefetch(stmt Statement, errh ErrorHandle, rows int) Status
	Prepare(stmt Statement, errh ErrorHandle, sql string) Status
	StatementType(stmt Statement, errh ErrorHandle) (StmtKind, Status)

	// Execute runs stmt. iters is 0 for queries and 1 otherwise.
	Execute(ctx context.Context, sess Session, stmt Statement, errh ErrorHandle, iters int, mode ExecMode) Status
	RowCount(stmt Statement, errh ErrorHandle) (int64, Status)
	ParamCount(stmt Statement, errh ErrorHandle) (int, Status)

	// Describe returns the select-list item at 1-based pos.
	Describe(stmt Statement, errh ErrorHandle, pos int) (Param, Status)

	// DefineByPos binds dest as the fetch target of the column at 1-based pos.
	// dest is one of *[]byte (text buffer; its length is the capacity),
	// *float64, *int64, *uint64, *Number or *Descriptor; ext names the
	// external representation. ind receives the null flag on every fetch.
	DefineByPos(stmt Statement, errh ErrorHandle, pos int, dest any, ind *Indicator, ext TypeTag) Status
	SetDefineCharset(stmt Statement, errh ErrorHandle, pos int, charset uint16) Status

	// Fetch writes the next row into the defined targets; NoData at the end.
	Fetch(ctx context.Context, stmt Statement, errh ErrorHandle) Status
	FreeStatement(stmt Statement) Status

	// --- descriptors ---

	NewDescriptor(env Env, kind DescriptorKind) (Descriptor, Status)
	FreeDescriptor(desc Descriptor, kind DescriptorKind) Status
	DateTimeGet(env Env, errh ErrorHandle, desc Descriptor) (DateTime, Status)
	LobLength(ctx context.Context, sess Session, errh ErrorHandle, desc Descriptor) (int, Status)

	// LobRead copies up to len(buf) bytes of the LOB starting at offset 1.
	LobRead(ctx context.Context, sess Session, errh ErrorHandle, desc Descriptor, buf []byte) (int, Status)
}
