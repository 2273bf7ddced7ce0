package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/marcelocantos/myshell/internal/metrics"
)

// Runner spawns commands as child processes and waits for them. Nil
// streams fall back to the current process's standard streams.
type Runner struct {
	Stdin   *os.File
	Stdout  *os.File
	Stderr  *os.File
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (r *Runner) stdin() *os.File {
	if r.Stdin != nil {
		return r.Stdin
	}
	return os.Stdin
}

func (r *Runner) stdout() *os.File {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *Runner) stderr() *os.File {
	if r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// RunSingle runs one command and waits for it. The command's handles are
// released whatever the outcome.
func (r *Runner) RunSingle(cmd *Command) (ExitStatus, error) {
	statuses, err := r.run(Pipeline{cmd})
	if err != nil {
		return ExitStatus{}, err
	}
	return statuses[0], nil
}

// RunPipeline runs every command of p concurrently, connecting consecutive
// stages with pipes, and waits for all of them. The returned statuses are
// in stage order. On a ResourceError the statuses cover only the stages
// started before the failure, all of which have been waited for.
func (r *Runner) RunPipeline(p Pipeline) ([]ExitStatus, error) {
	return r.run(p)
}

// wire picks the three standard streams for stage i: pipes first, then the
// command's own redirections on top.
func (r *Runner) wire(i int, cmd *Command, pipes []pipeEnds) [3]*os.File {
	files := [3]*os.File{r.stdin(), r.stdout(), r.stderr()}
	if i > 0 {
		files[0] = pipes[i-1].r
	}
	if i < len(pipes) {
		files[1] = pipes[i].w
	}
	if cmd.Stdin != nil {
		files[0] = cmd.Stdin
	}
	if cmd.Stdout != nil {
		files[1] = cmd.Stdout
	}
	if cmd.Stderr != nil {
		files[2] = cmd.Stderr
	}
	return files
}

func (r *Runner) run(p Pipeline) ([]ExitStatus, error) {
	defer p.Close()

	if len(p) == 0 {
		return nil, &SyntaxError{Kind: MissingCommand}
	}

	pipes, err := makePipes(len(p) - 1)
	if err != nil {
		r.logger().Error("pipe creation failed", "error", err)
		r.Metrics.SpawnFailed(metrics.FailResource)
		return nil, err
	}

	began := time.Now()
	procs := make([]*os.Process, 0, len(p))
	statuses := make([]ExitStatus, 0, len(p))
	var spawnErr error

	for i, cmd := range p {
		files := r.wire(i, cmd, pipes)
		proc, execErr, err := start(cmd, files)
		if err != nil {
			r.logger().Error("spawn failed", "stage", i, "args", cmd.Args, "error", err)
			r.Metrics.SpawnFailed(metrics.FailResource)
			spawnErr = err
			break
		}
		if execErr != nil {
			fmt.Fprintf(files[2], "myshell: %v\n", execErr)
			kind := metrics.FailNotExecutable
			if execErr.NotFound() {
				kind = metrics.FailNotFound
			}
			r.Metrics.SpawnFailed(kind)
			_ = cmd.Close()
			procs = append(procs, nil)
			statuses = append(statuses, ExitStatus{Code: execErr.Code()})
			continue
		}

		// The child holds its own copies now.
		_ = cmd.Close()
		r.Metrics.Spawned()
		r.logger().Debug("spawned", "stage", i, "pid", proc.Pid, "args", cmd.Args)
		procs = append(procs, proc)
		statuses = append(statuses, ExitStatus{Pid: proc.Pid})
	}

	// Every child is running (or failed to start); drop the parent's pipe
	// ends so EOF can propagate, and anything a skipped stage still held.
	closePipes(pipes)
	_ = p.Close()

	for i, proc := range procs {
		if proc == nil {
			continue
		}
		statuses[i] = r.wait(proc)
	}
	r.Metrics.PipelineDone(time.Since(began))

	return statuses, spawnErr
}

func (r *Runner) wait(proc *os.Process) ExitStatus {
	pid := proc.Pid
	ps, err := proc.Wait()
	if err != nil {
		r.logger().Error("wait failed", "pid", pid, "error", err)
		return ExitStatus{Pid: pid, Code: 1}
	}
	st := statusFromState(pid, ps)
	r.Metrics.Exited(st.Code)
	r.logger().Debug("reaped", "pid", pid, "status", st.String())
	return st
}
