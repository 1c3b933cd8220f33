package database

import (
	"github.com/koustreak/ocisql/internal/errs"
	"github.com/koustreak/ocisql/internal/metrics"
	"github.com/koustreak/ocisql/internal/native"
)

// Status is the outcome of an operation that may be left pending on a
// non-blocking connection.
type Status = native.Status

// Status codes exposed to callers driving the pending protocols.
const (
	StatusSuccess         = native.Success
	StatusSuccessWithInfo = native.SuccessWithInfo
	StatusStillExecuting  = native.StillExecuting
)

// Constants returns the status constant table.
func Constants() map[string]int {
	return map[string]int{
		"SUCCESS":           int(native.Success),
		"SUCCESS_WITH_INFO": int(native.SuccessWithInfo),
		"STILL_EXECUTING":   int(native.StillExecuting),
	}
}

// maxErrorMessage is the size of the native error text buffer minus its terminator.
const maxErrorMessage = 511

// check converts a native status into an error. SUCCESS_WITH_INFO counts as
// success; its informational text is discarded.
func check(lib native.Library, status native.Status, errh native.ErrorHandle) error {
	if status.OK() {
		return nil
	}
	metrics.NativeStatus(status.String())

	if status != native.Error {
		// NEED_DATA, NO_DATA, INVALID_HANDLE, STILL_EXECUTING, CONTINUE or CODE=n
		return errs.Database(0, status.String())
	}
	code, msg := 0, ""
	if errh != 0 {
		code, msg = lib.ErrorGet(errh)
	}
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage]
	}
	return errs.Database(code, msg)
}

// alloc converts a failed handle allocation into an AllocationError.
func alloc(status native.Status, what string) error {
	if status.OK() {
		return nil
	}
	metrics.NativeStatus(status.String())
	return errs.Allocation("couldn't allocate " + what + ": " + status.String())
}
