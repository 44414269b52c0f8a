package models

import "fmt"

// ResultCode is the judge verdict attached to a submission
type ResultCode int

const (
	ResultAccepted ResultCode = iota
	ResultWrongAnswer
	ResultTimeLimitExceeded
	ResultMemoryLimitExceeded
	ResultRuntimeError
	ResultCompileError
	ResultOutputLimitExceeded
	ResultPresentationError
	ResultSystemError
	ResultJudging // still running on a judge
	ResultWaiting // queued for a judge
)

var resultNames = map[ResultCode]string{
	ResultAccepted:            "Accepted",
	ResultWrongAnswer:         "Wrong Answer",
	ResultTimeLimitExceeded:   "Time Limit Exceeded",
	ResultMemoryLimitExceeded: "Memory Limit Exceeded",
	ResultRuntimeError:        "Runtime Error",
	ResultCompileError:        "Compile Error",
	ResultOutputLimitExceeded: "Output Limit Exceeded",
	ResultPresentationError:   "Presentation Error",
	ResultSystemError:         "System Error",
	ResultJudging:             "Judging",
	ResultWaiting:             "Waiting for Judging",
}

// IsTerminal returns false only for the two in-progress sentinels.
// Unknown codes are terminal.
func (r ResultCode) IsTerminal() bool {
	return r != ResultJudging && r != ResultWaiting
}

func (r ResultCode) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Result(%d)", int(r))
}
