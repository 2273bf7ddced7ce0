package pipeline

import (
	"os"
	"slices"
)

// Split partitions tokens into pipeline segments at each | token. Every
// returned segment is non-empty and free of | tokens.
func Split(tokens []string) ([][]string, error) {
	var segments [][]string
	start, pipes := 0, 0

	for i, tok := range tokens {
		if tok != OpPipe {
			continue
		}
		if i == start {
			return nil, &SyntaxError{Kind: MissingCommand, Op: OpPipe}
		}
		if i == len(tokens)-1 {
			return nil, &SyntaxError{Kind: MissingCommandAfterPipe, Op: OpPipe}
		}
		pipes++
		if pipes > MaxPipes {
			return nil, &SyntaxError{Kind: TooManyPipes, Op: OpPipe}
		}
		segments = append(segments, slices.Clone(tokens[start:i]))
		start = i + 1
	}

	if start >= len(tokens) {
		return nil, &SyntaxError{Kind: MissingCommand}
	}
	segments = append(segments, slices.Clone(tokens[start:]))
	return segments, nil
}

func isRedirect(tok string) bool {
	switch tok {
	case OpRedirectIn, OpRedirectOut, OpRedirectAppend, OpRedirectErr:
		return true
	}
	return false
}

// checkSegment validates the shape of a segment without touching the
// filesystem.
func checkSegment(segment []string) error {
	argc := 0
	for i := 0; i < len(segment); i++ {
		if isRedirect(segment[i]) {
			if i+1 >= len(segment) {
				return &SyntaxError{Kind: MissingRedirectTarget, Op: segment[i]}
			}
			i++
			continue
		}
		argc++
	}
	if argc == 0 {
		return &SyntaxError{Kind: MissingCommand}
	}
	return nil
}

func openTarget(op, path string) (*os.File, error) {
	var (
		f   *os.File
		err error
	)
	switch op {
	case OpRedirectIn:
		f, err = os.Open(path)
	case OpRedirectAppend:
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	default:
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	}
	if err != nil {
		return nil, newIoError(path, err)
	}
	return f, nil
}

// replace installs f in *slot, closing whatever it held before.
func replace(slot **os.File, f *os.File) {
	if *slot != nil {
		_ = (*slot).Close()
	}
	*slot = f
}

// Build resolves one segment into a Command, opening every redirection
// target. On failure no handle opened by this call remains open.
func Build(segment []string) (cmd *Command, err error) {
	if err := checkSegment(segment); err != nil {
		return nil, err
	}

	c := &Command{Args: make([]string, 0, len(segment))}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	for i := 0; i < len(segment); i++ {
		op := segment[i]
		if !isRedirect(op) {
			c.Args = append(c.Args, op)
			continue
		}
		i++
		f, err := openTarget(op, segment[i])
		if err != nil {
			return nil, err
		}
		switch op {
		case OpRedirectIn:
			replace(&c.Stdin, f)
		case OpRedirectOut, OpRedirectAppend:
			replace(&c.Stdout, f)
			c.Append = op == OpRedirectAppend
		case OpRedirectErr:
			replace(&c.Stderr, f)
		}
	}
	return c, nil
}

// Parse splits tokens into segments and builds a Command for each. If any
// segment fails to build, the commands already built are closed.
func Parse(tokens []string) (Pipeline, error) {
	segments, err := Split(tokens)
	if err != nil {
		return nil, err
	}

	p := make(Pipeline, 0, len(segments))
	for _, seg := range segments {
		cmd, err := Build(seg)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p = append(p, cmd)
	}
	return p, nil
}
