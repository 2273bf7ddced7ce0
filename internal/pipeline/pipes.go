package pipeline

import (
	"os"

	"golang.org/x/sys/unix"
)

// pipeEnds is one anonymous pipe. Both descriptors are close-on-exec, so a
// child only ever holds the ends explicitly wired to its standard streams.
type pipeEnds struct {
	r, w *os.File
}

func newPipe() (pipeEnds, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return pipeEnds{}, &ResourceError{Op: "pipe", Err: err}
	}
	return pipeEnds{
		r: os.NewFile(uintptr(fds[0]), "|0"),
		w: os.NewFile(uintptr(fds[1]), "|1"),
	}, nil
}

func (p *pipeEnds) close() {
	if p.r != nil {
		_ = p.r.Close()
		p.r = nil
	}
	if p.w != nil {
		_ = p.w.Close()
		p.w = nil
	}
}

// makePipes creates n pipes, or none: on failure the pipes already created
// are closed.
func makePipes(n int) ([]pipeEnds, error) {
	pipes := make([]pipeEnds, 0, n)
	for range n {
		p, err := newPipe()
		if err != nil {
			closePipes(pipes)
			return nil, err
		}
		pipes = append(pipes, p)
	}
	return pipes, nil
}

func closePipes(pipes []pipeEnds) {
	for i := range pipes {
		pipes[i].close()
	}
}
