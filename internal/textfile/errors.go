package textfile

import "fmt"

// Op identifies the step of a file operation that failed.
type Op int

// Failing steps.
const (
	OpRead Op = iota
	OpCreateDir
	OpChangePermission
	OpEncode
	OpWrite
)

// Message templates for write failures. Each takes the cause and the path.
const (
	writeFailure    = "write failure: %v (path: %s)"
	gbkWriteFailure = "gbk write failure: %v (path: %s)"
)

// Error is returned by Accessor operations. Every failure except OpEncode is an I/O failure.
type Error struct {
	Op    Op
	Path  string
	Cause error

	template string
}

func (e *Error) Error() string {
	switch e.Op {
	case OpRead:
		return fmt.Sprintf("read failure: %v", e.Cause)
	case OpCreateDir:
		return fmt.Sprintf("directory creation failed: %v", e.Cause)
	case OpChangePermission:
		return fmt.Sprintf("permission change failed: %v", e.Cause)
	case OpEncode:
		return fmt.Sprintf("encode failed: %v", e.Cause)
	default:
		tmpl := e.template
		if tmpl == "" {
			tmpl = writeFailure
		}
		return fmt.Sprintf(tmpl, e.Cause, e.Path)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IOError reports whether the failure came from the filesystem.
func (e *Error) IOError() bool {
	return e.Op != OpEncode
}
