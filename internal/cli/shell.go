package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/marcelocantos/myshell/internal/audit"
	"github.com/marcelocantos/myshell/internal/pipeline"
)

// Line statuses for errors reported by the shell itself rather than by a
// child process.
const (
	StatusSyntax = 2
	StatusError  = 1
)

// Shell runs input lines: builtins in-process, everything else through the
// pipeline runner.
type Shell struct {
	Runner *pipeline.Runner
	Audit  *audit.Logger // nil disables audit logging
	Logger *slog.Logger
	Stderr io.Writer // shell diagnostics; defaults to os.Stderr
}

// Outcome is the result of one input line.
type Outcome struct {
	Status int
	Exit   bool // the line asked the shell to terminate
}

func (s *Shell) stderr() io.Writer {
	if s.Stderr != nil {
		return s.Stderr
	}
	return os.Stderr
}

func (s *Shell) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Shell) runner() *pipeline.Runner {
	if s.Runner == nil {
		s.Runner = &pipeline.Runner{Logger: s.Logger}
	}
	return s.Runner
}

// RunLine tokenizes and executes one input line. Blank lines do nothing and
// are not audited.
func (s *Shell) RunLine(line string) Outcome {
	tokens := pipeline.Tokenize(line)
	if len(tokens) == 0 {
		return Outcome{}
	}

	start := time.Now()
	if b, ok := builtins[tokens[0]]; ok {
		out, err := b(s, tokens[1:])
		s.logAudit(audit.Record{
			Line:      line,
			Commands:  tokens[:1],
			ExitCodes: []int{out.Status},
			Builtin:   true,
			Err:       err,
			Duration:  time.Since(start),
		})
		return out
	}

	p, err := pipeline.Parse(tokens)
	if err != nil {
		status := s.report(err)
		s.logAudit(audit.Record{Line: line, Err: err, Duration: time.Since(start)})
		return Outcome{Status: status}
	}

	names := make([]string, len(p))
	for i, cmd := range p {
		names[i] = cmd.Name()
	}

	var statuses []pipeline.ExitStatus
	if len(p) == 1 {
		var st pipeline.ExitStatus
		st, err = s.runner().RunSingle(p[0])
		if err == nil {
			statuses = []pipeline.ExitStatus{st}
		}
	} else {
		statuses, err = s.runner().RunPipeline(p)
	}

	codes := make([]int, len(statuses))
	for i, st := range statuses {
		codes[i] = st.Code
	}

	var status int
	switch {
	case err != nil:
		status = s.report(err)
	case len(statuses) > 0:
		status = statuses[len(statuses)-1].Code
	}

	s.logAudit(audit.Record{
		Line:      line,
		Commands:  names,
		ExitCodes: codes,
		Err:       err,
		Duration:  time.Since(start),
	})
	return Outcome{Status: status}
}

// report prints err as a shell diagnostic and returns the line status it
// maps to.
func (s *Shell) report(err error) int {
	fmt.Fprintf(s.stderr(), "myshell: %v\n", err)
	return errorStatus(err)
}

func errorStatus(err error) int {
	var syntaxErr *pipeline.SyntaxError
	if errors.As(err, &syntaxErr) {
		return StatusSyntax
	}
	return StatusError
}

func (s *Shell) logAudit(rec audit.Record) {
	if s.Audit == nil {
		return
	}
	rec.Cwd, _ = os.Getwd()
	// Best-effort: a failed audit write never fails the line.
	if err := s.Audit.Log(rec); err != nil {
		s.logger().Warn("audit write failed", "path", s.Audit.Path(), "error", err)
	}
}
