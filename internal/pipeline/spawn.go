package pipeline

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// start launches cmd with the given standard streams. A program that cannot
// be found or executed yields an ExecError and no process; a failure to
// create the process at all yields a ResourceError.
func start(cmd *Command, files [3]*os.File) (*os.Process, *ExecError, error) {
	name := cmd.Name()

	path, err := exec.LookPath(name)
	if errors.Is(err, exec.ErrDot) {
		err = nil
	}
	if err != nil {
		var lookErr *exec.Error
		if errors.As(err, &lookErr) {
			err = lookErr.Err
		}
		return nil, &ExecError{Name: name, Err: err}, nil
	}

	attr := &os.ProcAttr{Files: files[:]}
	proc, err := os.StartProcess(path, cmd.Args, attr)
	if errors.Is(err, unix.ENOEXEC) {
		// An executable file with no recognized header is a shell script.
		argv := append([]string{"sh", path}, cmd.Args[1:]...)
		proc, err = os.StartProcess(shellPath, argv, attr)
	}
	if err != nil {
		if isResourceExhausted(err) {
			return nil, nil, &ResourceError{Op: "fork", Err: err}
		}
		var pe *fs.PathError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		return nil, &ExecError{Name: name, Err: err}, nil
	}
	return proc, nil, nil
}

// shellPath runs executable files that carry no interpreter line.
const shellPath = "/bin/sh"

func isResourceExhausted(err error) bool {
	for _, errno := range []error{unix.EAGAIN, unix.ENOMEM, unix.EMFILE, unix.ENFILE} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
