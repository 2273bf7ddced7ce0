package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
)

// SyntaxKind classifies a syntax error.
type SyntaxKind int

const (
	MissingCommand SyntaxKind = iota + 1
	MissingCommandAfterPipe
	MissingRedirectTarget
	TooManyPipes
)

// SyntaxError is reported before any process is spawned.
type SyntaxError struct {
	Kind SyntaxKind
	Op   string // the operator involved, if any
}

// Sentinels for errors.Is.
var (
	ErrMissingCommand          = &SyntaxError{Kind: MissingCommand}
	ErrMissingCommandAfterPipe = &SyntaxError{Kind: MissingCommandAfterPipe}
	ErrMissingRedirectTarget   = &SyntaxError{Kind: MissingRedirectTarget}
	ErrTooManyPipes            = &SyntaxError{Kind: TooManyPipes}
)

func (e *SyntaxError) Error() string {
	switch e.Kind {
	case MissingCommand:
		return "syntax error: missing command"
	case MissingCommandAfterPipe:
		return "syntax error: missing command after pipe"
	case MissingRedirectTarget:
		if e.Op != "" {
			return fmt.Sprintf("syntax error: missing file for redirection after '%s'", e.Op)
		}
		return "syntax error: missing file for redirection"
	case TooManyPipes:
		return fmt.Sprintf("too many pipes (max %d)", MaxPipes)
	default:
		return "syntax error"
	}
}

// Is matches any SyntaxError of the same kind.
func (e *SyntaxError) Is(target error) bool {
	t, ok := target.(*SyntaxError)
	return ok && t.Kind == e.Kind
}

// IoKind classifies a redirection open failure.
type IoKind int

const (
	NotFound IoKind = iota + 1
	PermissionDenied
	OtherIo
)

// IoError is a failure to open a redirection target.
type IoError struct {
	Kind IoKind
	Path string
	Err  error
}

func newIoError(path string, err error) *IoError {
	kind := OtherIo
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = NotFound
	case errors.Is(err, fs.ErrPermission):
		kind = PermissionDenied
	}
	return &IoError{Kind: kind, Path: path, Err: err}
}

func (e *IoError) Error() string {
	switch e.Kind {
	case NotFound:
		return fmt.Sprintf("%s: No such file or directory", e.Path)
	case PermissionDenied:
		return fmt.Sprintf("%s: Permission denied", e.Path)
	}
	var pe *fs.PathError
	if errors.As(e.Err, &pe) {
		return fmt.Sprintf("%s: %v", e.Path, pe.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// ResourceError is a failure to create a pipe or a process. It aborts the
// pipeline in progress.
type ResourceError struct {
	Op  string // "pipe" or "fork"
	Err error
}

func (e *ResourceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *ResourceError) Unwrap() error { return e.Err }

// ExecError describes why a stage's program could not be started. It is
// only ever written as a diagnostic on that stage's stderr; the caller sees
// a failing ExitStatus.
type ExecError struct {
	Name string
	Err  error
}

func (e *ExecError) Error() string {
	if e.NotFound() {
		return "command not found: " + e.Name
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// NotFound reports whether the program could not be located at all.
func (e *ExecError) NotFound() bool {
	return errors.Is(e.Err, exec.ErrNotFound) || errors.Is(e.Err, fs.ErrNotExist)
}

// Code returns the exit status reported for the stage.
func (e *ExecError) Code() int {
	if e.NotFound() {
		return ExitNotFound
	}
	return ExitNotExecutable
}
