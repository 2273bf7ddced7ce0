package pipeline

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/marcelocantos/myshell/internal/metrics"
)

func requireReaped(t *testing.T, statuses []ExitStatus) {
	t.Helper()
	for _, st := range statuses {
		if st.Pid == 0 {
			continue
		}
		assert.ErrorIs(t, unix.Kill(st.Pid, 0), unix.ESRCH, "pid %d still present", st.Pid)
	}
}

func TestRunSingleRedirectOut(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, os.WriteFile(name, nil, 0644))
	}

	cmd, err := Build([]string{"ls", ">", "out.txt"})
	require.NoError(t, err)

	r := &Runner{}
	st, err := r.RunSingle(cmd)
	require.NoError(t, err)
	assert.True(t, st.Success(), st.String())
	requireReaped(t, []ExitStatus{st})

	want, err := exec.Command("ls").Output()
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestRunPipelineSortUniq(t *testing.T) {
	out := capture(t, "stdout")
	r := &Runner{Stdout: out}

	statuses, err := r.RunPipeline(mustParse(t, `printf 'b\na\nc\nb\n' | sort | uniq`))
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	for i, st := range statuses {
		assert.True(t, st.Success(), "stage %d: %s", i, st)
		assert.NotZero(t, st.Pid)
	}
	requireReaped(t, statuses)
	assert.Equal(t, "a\nb\nc\n", readAll(t, out))
}

func TestRunPipelineRedirectOverridesPipe(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(in, []byte("from file\n"), 0644))
	out := capture(t, "stdout")
	r := &Runner{Stdout: out}

	statuses, err := r.RunPipeline(mustParse(t, "echo from pipe | cat < "+in))
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[1].Success())
	assert.Equal(t, "from file\n", readAll(t, out))
}

func TestRunPipelineFirstInputLastOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(in, []byte("one\ntwo\nthree\n"), 0644))
	out := filepath.Join(dir, "out.txt")

	r := &Runner{}
	statuses, err := r.RunPipeline(mustParse(t, "cat < "+in+" | grep o | wc -l > "+out))
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "2", string(trimSpace(data)))
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && isSpace(b[0]) {
		b = b[1:]
	}
	for len(b) > 0 && isSpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

func TestRunAppendAndStderr(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	r := &Runner{}

	for _, line := range []string{
		"echo one > log.txt",
		"echo two >> log.txt",
		"sh -c 'echo oops 1>&2' 2> err.txt",
	} {
		p := mustParse(t, line)
		st, err := r.RunSingle(p[0])
		require.NoError(t, err, line)
		require.True(t, st.Success(), line)
	}

	data, err := os.ReadFile("log.txt")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))

	data, err = os.ReadFile("err.txt")
	require.NoError(t, err)
	assert.Equal(t, "oops\n", string(data))
}

func TestRunCommandNotFound(t *testing.T) {
	errOut := capture(t, "stderr")
	r := &Runner{Stderr: errOut}

	st, err := r.RunSingle(&Command{Args: []string{"myshell-no-such-command"}})
	require.NoError(t, err)
	assert.Equal(t, ExitNotFound, st.Code)
	assert.Zero(t, st.Pid)
	assert.Equal(t, "myshell: command not found: myshell-no-such-command\n", readAll(t, errOut))
}

func TestRunNotFoundUsesRedirectedStderr(t *testing.T) {
	errPath := filepath.Join(t.TempDir(), "err.txt")
	cmd, err := Build([]string{"myshell-no-such-command", "2>", errPath})
	require.NoError(t, err)

	r := &Runner{}
	st, err := r.RunSingle(cmd)
	require.NoError(t, err)
	assert.Equal(t, ExitNotFound, st.Code)

	data, err := os.ReadFile(errPath)
	require.NoError(t, err)
	assert.Equal(t, "myshell: command not found: myshell-no-such-command\n", string(data))
}

func TestRunNotFoundInPipeline(t *testing.T) {
	out := capture(t, "stdout")
	errOut := capture(t, "stderr")
	r := &Runner{Stdout: out, Stderr: errOut}

	statuses, err := r.RunPipeline(mustParse(t, "echo hi | myshell-no-such-command | cat"))
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.Equal(t, ExitNotFound, statuses[1].Code)
	assert.True(t, statuses[2].Success())
	assert.Empty(t, readAll(t, out))
	assert.Contains(t, readAll(t, errOut), "command not found: myshell-no-such-command")
	requireReaped(t, statuses)
}

func TestRunNotExecutable(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("script", []byte("#!/bin/sh\necho hi\n"), 0644))
	errOut := capture(t, "stderr")
	r := &Runner{Stderr: errOut}

	st, err := r.RunSingle(&Command{Args: []string{"./script"}})
	require.NoError(t, err)
	assert.Equal(t, ExitNotExecutable, st.Code)
	assert.Contains(t, readAll(t, errOut), "myshell: ./script: ")
}

func TestRunScriptWithoutInterpreterLine(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("script", []byte("echo \"hi $1\"\n"), 0755))
	out := capture(t, "stdout")
	r := &Runner{Stdout: out}

	st, err := r.RunSingle(mustParse(t, "./script there")[0])
	require.NoError(t, err)
	assert.True(t, st.Success(), st.String())
	assert.Equal(t, "hi there\n", readAll(t, out))
}

func TestRunExitCodeAndSignal(t *testing.T) {
	r := &Runner{}

	st, err := r.RunSingle(mustParse(t, "sh -c 'exit 3'")[0])
	require.NoError(t, err)
	assert.Equal(t, 3, st.Code)
	assert.False(t, st.Success())

	st, err = r.RunSingle(mustParse(t, "sh -c 'kill -TERM $$'")[0])
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGTERM, st.Signal)
	assert.Equal(t, 128+int(syscall.SIGTERM), st.Code)
}

func TestRunReleasesCommandHandles(t *testing.T) {
	dir := t.TempDir()
	r := &Runner{}

	p := mustParse(t, "echo hi > "+filepath.Join(dir, "a")+" | cat > "+filepath.Join(dir, "b"))
	_, err := r.RunPipeline(p)
	require.NoError(t, err)
	for _, cmd := range p {
		assert.Nil(t, cmd.Stdin)
		assert.Nil(t, cmd.Stdout)
		assert.Nil(t, cmd.Stderr)
	}
}

func TestRunPipelinesLeakNoDescriptors(t *testing.T) {
	out := capture(t, "stdout")
	r := &Runner{Stdout: out}
	run := func() {
		statuses, err := r.RunPipeline(mustParse(t, `printf 'x\ny\n' | sort -r | head -n 1`))
		require.NoError(t, err)
		requireReaped(t, statuses)
	}

	// The first run may initialize runtime state.
	run()
	before := openFDs(t)
	for range 5 {
		run()
		assert.Equal(t, before, openFDs(t))
	}
}

func TestRunEmptyPipeline(t *testing.T) {
	r := &Runner{}
	_, err := r.RunPipeline(nil)
	assert.ErrorIs(t, err, ErrMissingCommand)
}

func TestMetricsRecordsStages(t *testing.T) {
	m := metrics.New()
	out := capture(t, "stdout")
	errOut := capture(t, "stderr")
	r := &Runner{Stdout: out, Stderr: errOut, Metrics: m}

	_, err := r.RunPipeline(mustParse(t, "true | myshell-no-such-command | false"))
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(m.Registry(),
		"myshell_processes_spawned_total", "myshell_spawn_failures_total", "myshell_process_exits_total")
	require.NoError(t, err)
	assert.Positive(t, count)

	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["myshell_processes_spawned_total"])
	assert.Equal(t, 1.0, values["myshell_spawn_failures_total"])
	assert.Equal(t, 2.0, values["myshell_process_exits_total"])
}

func TestResourceErrorUnwraps(t *testing.T) {
	err := error(&ResourceError{Op: "fork", Err: unix.EAGAIN})
	assert.True(t, errors.Is(err, unix.EAGAIN))
	assert.True(t, isResourceExhausted(err))
	assert.EqualError(t, err, "fork: "+unix.EAGAIN.Error())
}

func TestMakePipesZero(t *testing.T) {
	pipes, err := makePipes(0)
	require.NoError(t, err)
	assert.Empty(t, pipes)
}

// withFDLimit runs fn with the soft descriptor limit lowered to limit.
func withFDLimit(t *testing.T, limit uint64, fn func()) {
	t.Helper()
	var saved unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_NOFILE, &saved))
	lowered := saved
	lowered.Cur = limit
	require.NoError(t, unix.Setrlimit(unix.RLIMIT_NOFILE, &lowered))
	defer func() {
		require.NoError(t, unix.Setrlimit(unix.RLIMIT_NOFILE, &saved))
	}()
	fn()
}

func TestRunPipelineDescriptorExhaustion(t *testing.T) {
	out := capture(t, "stdout")
	r := &Runner{Stdout: out}

	sawPipe := false
	for k := 0; k <= 6; k++ {
		p := mustParse(t, "echo a | cat | cat | cat")
		before := openFDs(t)

		var (
			statuses []ExitStatus
			err      error
		)
		withFDLimit(t, uint64(before+k), func() {
			statuses, err = r.RunPipeline(p)
		})

		assert.Equal(t, before, openFDs(t), "k=%d: descriptors leaked", k)
		requireReaped(t, statuses)
		if err == nil {
			continue
		}
		var resErr *ResourceError
		require.True(t, errors.As(err, &resErr), "k=%d: %v", k, err)
		assert.Contains(t, []string{"pipe", "fork"}, resErr.Op)
		assert.Less(t, len(statuses), 4, "k=%d", k)
		if resErr.Op == "pipe" {
			sawPipe = true
			assert.Empty(t, statuses)
		}
	}
	assert.True(t, sawPipe, "no pipe creation failure at the lowest limit")
}
