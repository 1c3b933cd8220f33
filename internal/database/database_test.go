package database

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ocisql/internal/errs"
	"github.com/koustreak/ocisql/internal/native"
	"github.com/koustreak/ocisql/internal/native/nativetest"
)

const selectOne = "SELECT 1 AS one FROM dual"

func newLib() *nativetest.Library {
	return nativetest.New().
		On(selectOne, nativetest.Script{
			Kind:    native.StmtSelect,
			Columns: []nativetest.Column{{Name: "ONE", Type: native.TypeNUM, Size: 22}},
			Rows:    [][]any{{1}},
		}).
		On("UPDATE t SET x = 1", nativetest.Script{
			Kind:         native.StmtUpdate,
			RowsAffected: 3,
		})
}

func newEnv(t *testing.T, lib native.Library, opts ...Option) *Environment {
	t.Helper()
	env, err := NewEnvironment(lib, opts...)
	require.NoError(t, err)
	return env
}

func connect(t *testing.T, env *Environment) *Connection {
	t.Helper()
	conn, err := env.Connect(context.Background(), "db", "u", "p")
	require.NoError(t, err)
	return conn
}

// teardown closes conn and env and asserts nothing leaked.
func teardown(t *testing.T, lib *nativetest.Library, env *Environment, conn *Connection) {
	t.Helper()
	if conn != nil {
		_, err := conn.Close()
		require.NoError(t, err)
	}
	ok, err := env.Close()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, lib.LiveHandles(), "native handles leaked")
}

func TestScenario_SelectOneFromDual(t *testing.T) {
	ctx := context.Background()
	lib := newLib()
	env := newEnv(t, lib)
	conn := connect(t, env)

	res, err := conn.Execute(ctx, selectOne)
	require.NoError(t, err)
	require.NotNil(t, res.Cursor)
	assert.Equal(t, StatusSuccess, res.Status)

	row, status, err := res.Cursor.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, []any{uint64(1)}, row)

	row, _, err = res.Cursor.Fetch(ctx)
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.True(t, res.Cursor.Closed())

	teardown(t, lib, env, conn)
}

func TestConnection_NonQueryReturnsRowCount(t *testing.T) {
	ctx := context.Background()
	lib := newLib()
	env := newEnv(t, lib)
	conn := connect(t, env)

	res, err := conn.Execute(ctx, "UPDATE t SET x = 1")
	require.NoError(t, err)
	assert.Nil(t, res.Cursor)
	assert.Equal(t, int64(3), res.RowsAffected)
	assert.Equal(t, []native.ExecMode{native.ExecDefault}, lib.ExecModes())
	assert.Zero(t, lib.Commits())

	_, err = conn.SetAutoCommit(ctx, true)
	require.NoError(t, err)
	_, err = conn.Execute(ctx, "UPDATE t SET x = 1")
	require.NoError(t, err)
	assert.Equal(t, native.ExecCommitOnSuccess, lib.ExecModes()[1])
	assert.Equal(t, 1, lib.Commits())

	teardown(t, lib, env, conn)
}

func TestConnection_ExecuteErrorFreesStatement(t *testing.T) {
	ctx := context.Background()
	lib := newLib().On("DELETE FROM missing", nativetest.Script{
		Kind:       native.StmtDelete,
		ExecuteErr: &nativetest.Failure{Code: 942, Message: "ORA-00942: table or view does not exist"},
	})
	env := newEnv(t, lib)
	conn := connect(t, env)

	_, err := conn.Execute(ctx, "DELETE FROM missing")
	require.Error(t, err)
	assert.True(t, errs.IsDatabase(err))
	assert.Equal(t, 942, errs.CodeOf(err))
	assert.Contains(t, err.Error(), "ORA-00942")
	assert.Zero(t, lib.LiveStatements())

	_, err = conn.Execute(ctx, "not scripted")
	require.Error(t, err)
	assert.Equal(t, nativetest.ErrUnknownStatement.Code, errs.CodeOf(err))
	assert.Zero(t, lib.LiveStatements())

	assert.False(t, conn.Closed(), "errors must not change handle state")
	teardown(t, lib, env, conn)
}

func TestConnection_PendingExecuteResumes(t *testing.T) {
	ctx := context.Background()
	lib := newLib().On("UPDATE slow SET x = 1", nativetest.Script{
		Kind:         native.StmtUpdate,
		RowsAffected: 7,
		Pending:      2,
	})
	env := newEnv(t, lib)
	conn := connect(t, env)

	res, err := conn.Execute(ctx, "UPDATE slow SET x = 1")
	require.NoError(t, err)
	require.Equal(t, StatusStillExecuting, res.Status)
	require.NotNil(t, res.Pending)
	assert.Equal(t, "UPDATE slow SET x = 1", res.Pending.SQL())

	res, err = conn.Resume(ctx, res.Pending)
	require.NoError(t, err)
	require.Equal(t, StatusStillExecuting, res.Status)

	res, err = conn.Resume(ctx, res.Pending)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, int64(7), res.RowsAffected)

	_, err = conn.Resume(ctx, nil)
	assert.True(t, errs.IsArgument(err))

	teardown(t, lib, env, conn)
}

func TestConnection_CloseFreesUnresumedExecute(t *testing.T) {
	ctx := context.Background()
	lib := newLib().On("UPDATE slow SET x = 1", nativetest.Script{
		Kind:    native.StmtUpdate,
		Pending: 100,
	})
	env := newEnv(t, lib)
	conn := connect(t, env)

	res, err := conn.Execute(ctx, "UPDATE slow SET x = 1")
	require.NoError(t, err)
	require.Equal(t, StatusStillExecuting, res.Status)
	assert.Equal(t, 1, lib.LiveStatements())

	ok, err := conn.Close()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, lib.LiveStatements())

	_, err = conn.Resume(ctx, res.Pending)
	assert.True(t, errs.IsArgument(err))

	teardown(t, lib, env, nil)
}

func TestConnection_CloseBusyWhileCursorOpen(t *testing.T) {
	ctx := context.Background()
	lib := newLib()
	env := newEnv(t, lib)
	conn := connect(t, env)

	res, err := conn.Execute(ctx, selectOne)
	require.NoError(t, err)
	assert.Equal(t, 1, conn.Cursors())

	ok, err := conn.Close()
	assert.False(t, ok)
	assert.True(t, errs.IsResourceBusy(err))
	assert.False(t, conn.Closed())

	assert.True(t, res.Cursor.Close())
	ok, err = conn.Close()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = conn.Close()
	require.NoError(t, err)
	assert.False(t, ok)

	teardown(t, lib, env, nil)
}

func TestConnection_SetAutoCommitRollsBack(t *testing.T) {
	ctx := context.Background()
	lib := newLib()
	env := newEnv(t, lib)
	conn := connect(t, env)
	assert.False(t, conn.AutoCommit())

	status, err := conn.SetAutoCommit(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.True(t, conn.AutoCommit())
	assert.Equal(t, 1, lib.Rollbacks())
	assert.Zero(t, lib.Commits())

	_, err = conn.SetAutoCommit(ctx, false)
	require.NoError(t, err)
	assert.False(t, conn.AutoCommit())
	assert.Equal(t, 1, lib.Rollbacks(), "disabling must not touch the transaction")

	teardown(t, lib, env, conn)
}

func TestConnection_TransactionsAndInterrupts(t *testing.T) {
	ctx := context.Background()
	lib := newLib()
	env := newEnv(t, lib)
	conn := connect(t, env)

	status, err := conn.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	status, err = conn.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)

	require.NoError(t, conn.Abort())
	require.NoError(t, conn.Reset())
	assert.Equal(t, 1, lib.Commits())
	assert.Equal(t, 1, lib.Rollbacks())
	assert.Equal(t, 1, lib.Breaks())
	assert.Equal(t, 1, lib.Resets())

	teardown(t, lib, env, conn)
}

func TestClosedHandlesFailWithArgumentError(t *testing.T) {
	ctx := context.Background()
	lib := newLib()
	env := newEnv(t, lib)
	conn := connect(t, env)
	_, err := conn.Close()
	require.NoError(t, err)

	_, err = conn.Execute(ctx, selectOne)
	assert.True(t, errs.IsArgument(err))
	assert.Contains(t, err.Error(), "connection is closed")
	_, err = conn.Commit(ctx)
	assert.True(t, errs.IsArgument(err))
	_, err = conn.SetAutoCommit(ctx, true)
	assert.True(t, errs.IsArgument(err))
	assert.True(t, errs.IsArgument(conn.Abort()))

	_, err = env.Close()
	require.NoError(t, err)
	_, err = env.Connect(ctx, "db", "u", "p")
	assert.True(t, errs.IsArgument(err))
	assert.Contains(t, err.Error(), "environment is closed")

	ok, err := env.Close()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, lib.LiveHandles())
}

func TestEnvironment_CloseBusyWhileConnectionOpen(t *testing.T) {
	lib := newLib()
	env := newEnv(t, lib)
	conn := connect(t, env)
	assert.Equal(t, 1, env.Connections())

	ok, err := env.Close()
	assert.False(t, ok)
	assert.True(t, errs.IsResourceBusy(err))
	assert.Contains(t, err.Error(), "there are open connections")

	teardown(t, lib, env, conn)
	assert.Zero(t, env.Connections())
}

func TestEnvironment_ConnectFailure(t *testing.T) {
	lib := newLib()
	lib.FailLogon(&nativetest.Failure{Code: 1017, Message: "ORA-01017: invalid username/password; logon denied"})
	env := newEnv(t, lib)

	_, err := env.Connect(context.Background(), "db", "u", "bad")
	require.Error(t, err)
	assert.True(t, errs.IsDatabase(err))
	assert.Equal(t, 1017, errs.CodeOf(err))
	assert.Zero(t, env.Connections())

	teardown(t, lib, env, nil)
}

func TestNewEnvironment_AllocationFailure(t *testing.T) {
	lib := nativetest.New()
	lib.FailAlloc(nativetest.AllocEnv)

	_, err := NewEnvironment(lib)
	assert.True(t, errs.IsAllocation(err))

	_, err = NewEnvironment(nil)
	assert.True(t, errs.IsArgument(err))
}

func TestCheck_TruncatesMessage(t *testing.T) {
	lib := nativetest.New().On("BAD", nativetest.Script{
		Kind:       native.StmtUpdate,
		ExecuteErr: &nativetest.Failure{Code: 1, Message: strings.Repeat("x", 600)},
	})
	env := newEnv(t, lib)
	conn := connect(t, env)

	_, err := conn.Execute(context.Background(), "BAD")
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Len(t, e.Message, maxErrorMessage)

	teardown(t, lib, env, conn)
}

func TestCheck_NonErrorStatuses(t *testing.T) {
	lib := nativetest.New()
	assert.NoError(t, check(lib, native.SuccessWithInfo, 0))

	err := check(lib, native.InvalidHandle, 0)
	assert.True(t, errs.IsDatabase(err))
	assert.Contains(t, err.Error(), "OCI_INVALID_HANDLE")
}

func TestCredentialsAreBounded(t *testing.T) {
	c := newCredentials(strings.Repeat("s", 300), "u", strings.Repeat("p", 256))
	assert.Len(t, c.source, maxCredential)
	assert.Equal(t, "u", c.user)
	assert.Len(t, c.password, maxCredential)
}

func TestConstants(t *testing.T) {
	assert.Equal(t, map[string]int{
		"SUCCESS":           0,
		"SUCCESS_WITH_INFO": 1,
		"STILL_EXECUTING":   -3123,
	}, Constants())
}
