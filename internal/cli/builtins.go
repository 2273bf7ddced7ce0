package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
)

// builtin runs in the shell process. It prints its own diagnostics; the
// returned error is for the audit log only.
type builtin func(s *Shell, args []string) (Outcome, error)

var builtins = map[string]builtin{
	"cd":   builtinCd,
	"exit": builtinExit,
}

func builtinCd(s *Shell, args []string) (Outcome, error) {
	if len(args) == 0 {
		err := errors.New(`expected argument to "cd"`)
		fmt.Fprintf(s.stderr(), "myshell: %v\n", err)
		return Outcome{Status: StatusError}, err
	}
	dir := args[0]
	if err := os.Chdir(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(s.stderr(), "cd: no such file or directory: %s\n", dir)
		} else {
			var pathErr *fs.PathError
			if errors.As(err, &pathErr) {
				err = pathErr.Err
			}
			fmt.Fprintf(s.stderr(), "cd: %s: %v\n", dir, err)
		}
		return Outcome{Status: StatusError}, err
	}
	s.logger().Debug("changed directory", "dir", dir)
	return Outcome{}, nil
}

func builtinExit(s *Shell, args []string) (Outcome, error) {
	if len(args) == 0 {
		return Outcome{Exit: true}, nil
	}
	code, err := strconv.Atoi(args[0])
	if err != nil {
		err = fmt.Errorf("exit: numeric argument required: %s", args[0])
		fmt.Fprintf(s.stderr(), "myshell: %v\n", err)
		return Outcome{Status: StatusSyntax, Exit: true}, err
	}
	return Outcome{Status: code & 0xff, Exit: true}, nil
}
