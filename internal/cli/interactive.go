package cli

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/marcelocantos/myshell/internal/config"
)

var errInterrupted = errors.New("interrupted")

type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

type terminalReader struct {
	rl *readline.Instance
}

func (r *terminalReader) ReadLine() (string, error) {
	line, err := r.rl.Readline()
	if err == readline.ErrInterrupt {
		return "", errInterrupted
	}
	return line, err
}

func (r *terminalReader) Close() error { return r.rl.Close() }

type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) ReadLine() (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *scanReader) Close() error { return nil }

// Prompt renders the configured prompt, colored when enabled.
func Prompt(cfg *config.Config) string {
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = config.DefaultPrompt
	}
	if !cfg.Color {
		return prompt
	}
	return color.New(color.FgGreen, color.Bold).Sprint(prompt)
}

func newLineReader(cfg *config.Config, in, out *os.File) (lineReader, error) {
	if !isatty.IsTerminal(in.Fd()) {
		return &scanReader{sc: bufio.NewScanner(in)}, nil
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          Prompt(cfg),
		Stdin:           in,
		Stdout:          out,
		Stderr:          out,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	return &terminalReader{rl: rl}, nil
}

// RunInteractive reads lines from in until end of input or exit, running
// each through sh. It returns the status of the last line run.
func RunInteractive(sh *Shell, cfg *config.Config, in, out *os.File) int {
	// Catch SIGINT rather than ignoring it so that children, which reset
	// caught signals on exec, still receive it.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer func() {
		signal.Stop(sigs)
		close(sigs)
	}()
	go func() {
		for range sigs {
			sh.logger().Debug("interrupt")
		}
	}()

	r, err := newLineReader(cfg, in, out)
	if err != nil {
		sh.report(err)
		return StatusError
	}
	defer r.Close()

	status := 0
	for {
		line, err := r.ReadLine()
		switch {
		case errors.Is(err, errInterrupted):
			continue
		case errors.Is(err, io.EOF):
			return status
		case err != nil:
			sh.report(err)
			return StatusError
		}

		res := sh.RunLine(line)
		status = res.Status
		if res.Exit {
			return status
		}
	}
}
