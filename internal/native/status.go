package native

import "strconv"

// Status is the outcome code every Library call returns.
type Status int

const (
	Success         Status = 0
	SuccessWithInfo Status = 1
	NeedData        Status = 99
	NoData          Status = 100
	Error           Status = -1
	InvalidHandle   Status = -2
	StillExecuting  Status = -3123
	Continue        Status = -24200
)

func (s Status) String() string {
	switch s {
	case Success:
		return "OCI_SUCCESS"
	case SuccessWithInfo:
		return "OCI_SUCCESS_WITH_INFO"
	case NeedData:
		return "OCI_NEED_DATA"
	case NoData:
		return "OCI_NO_DATA"
	case Error:
		return "OCI_ERROR"
	case InvalidHandle:
		return "OCI_INVALID_HANDLE"
	case StillExecuting:
		return "OCI_STILL_EXECUTING"
	case Continue:
		return "OCI_CONTINUE"
	default:
		return "CODE=" + strconv.Itoa(int(s))
	}
}

// OK reports whether s is SUCCESS or SUCCESS_WITH_INFO.
func (s Status) OK() bool {
	return s == Success || s == SuccessWithInfo
}
