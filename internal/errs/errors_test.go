package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "database",
			err:  Database(942, "ORA-00942: table or view does not exist"),
			want: "ocisql: [database] ORA-00942: table or view does not exist",
		},
		{
			name: "busy",
			err:  Busy("there are open cursors"),
			want: "ocisql: [resource_busy] there are open cursors",
		},
		{
			name: "unsupported type",
			err:  UnsupportedType(113, 2),
			want: "ocisql: [unsupported_type] invalid type 113 #2",
		},
		{
			name: "wrapped",
			err:  Wrap(ErrKindAllocation, "no memory", errors.New("boom")),
			want: "ocisql: [allocation] no memory: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("executing: %w", Database(1, "x"))

	assert.True(t, IsDatabase(wrapped))
	assert.False(t, IsArgument(wrapped))
	assert.Equal(t, 1, CodeOf(wrapped))

	assert.True(t, IsArgument(Argument("cursor is closed")))
	assert.True(t, IsResourceBusy(Busy("there are open connections")))
	assert.True(t, IsAllocation(Allocation("couldn't create environment")))
	assert.True(t, IsUnsupportedType(UnsupportedType(113, 1)))

	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, 0, CodeOf(errors.New("plain")))
}

func TestUnsupportedType_Fields(t *testing.T) {
	e := UnsupportedType(113, 3)
	assert.Equal(t, 113, e.Tag)
	assert.Equal(t, 3, e.Column)
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("driver failure")
	e := Wrap(ErrKindDatabase, "execute failed", cause)
	assert.ErrorIs(t, e, cause)
}
