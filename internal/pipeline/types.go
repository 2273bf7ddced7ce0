package pipeline

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// Operators recognized by the tokenizer and parser.
const (
	OpPipe           = "|"  // pipe (stdout → stdin)
	OpRedirectIn     = "<"  // redirect stdin from file
	OpRedirectOut    = ">"  // redirect stdout to file, truncating
	OpRedirectAppend = ">>" // redirect stdout to file, appending
	OpRedirectErr    = "2>" // redirect stderr to file, truncating
)

// MaxPipes is the largest number of pipe operators accepted on one line.
const MaxPipes = 10

// Command is a single resolved unit of execution. It owns any file handles
// it holds until they are handed to a spawned process or released by Close.
type Command struct {
	Args   []string // Args[0] is the program name
	Stdin  *os.File // nil: inherit
	Stdout *os.File // nil: inherit
	Append bool     // Stdout was opened in append mode
	Stderr *os.File // nil: inherit
}

// Name returns the program name.
func (c *Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// Close releases every handle the command still holds. It is safe to call
// more than once.
func (c *Command) Close() error {
	var errs []error
	for _, f := range []**os.File{&c.Stdin, &c.Stdout, &c.Stderr} {
		if *f == nil {
			continue
		}
		if err := (*f).Close(); err != nil {
			errs = append(errs, err)
		}
		*f = nil
	}
	return errors.Join(errs...)
}

// Pipeline is an ordered sequence of commands, each stage's stdout feeding
// the next stage's stdin.
type Pipeline []*Command

// Close releases the handles of every command in the pipeline.
func (p Pipeline) Close() error {
	var errs []error
	for _, c := range p {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Exit codes reported for stages that never ran.
const (
	ExitNotFound      = 127
	ExitNotExecutable = 126
)

// ExitStatus is the observable outcome of one pipeline stage.
type ExitStatus struct {
	Pid    int            // 0 if no process was created
	Code   int            // exit code, or 128+signal when killed by a signal
	Signal syscall.Signal // non-zero when killed by a signal
}

// Success reports whether the stage exited with status zero.
func (s ExitStatus) Success() bool { return s.Code == 0 }

func (s ExitStatus) String() string {
	if s.Signal != 0 {
		return fmt.Sprintf("signal %s", s.Signal)
	}
	return fmt.Sprintf("exit %d", s.Code)
}

func statusFromState(pid int, ps *os.ProcessState) ExitStatus {
	st := ExitStatus{Pid: pid, Code: ps.ExitCode()}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		st.Signal = ws.Signal()
		st.Code = 128 + int(ws.Signal())
	}
	return st
}
