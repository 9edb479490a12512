package driver

import "github.com/lcox74/bfaotc/internal/ir"

// maxLoopDepth bounds the fixup stack. spec.md requires at least 64 entries
// of headroom before NestedTooDeep fires; 1024 gives real programs room to
// nest far deeper than any brainfuck source seen in practice while still
// catching a runaway/malicious bracket run.
const maxLoopDepth = 1024

// loopFrame is one deferred `[` fixup: the code-buffer offset pad_loop_open
// reserved, plus the source position for diagnostics.
type loopFrame struct {
	offset int
	line   int
	column int
}

// loopStack is the bounded LIFO of §3's "loop fixup stack": one frame per
// still-open `[`, pushed when pad_loop_open reserves its placeholder and
// popped when the matching `]` is reached.
type loopStack struct {
	frames []loopFrame
}

func newLoopStack() *loopStack {
	return &loopStack{frames: make([]loopFrame, 0, 64)}
}

func (s *loopStack) push(f loopFrame) *ir.CompileError {
	if len(s.frames) >= maxLoopDepth {
		return ir.NewError(ir.ErrNestedTooDeep, "loop nesting exceeds the %d-deep fixup stack", maxLoopDepth).
			WithPosition(f.line, f.column)
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *loopStack) pop() (loopFrame, bool) {
	if len(s.frames) == 0 {
		return loopFrame{}, false
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return top, true
}

func (s *loopStack) empty() bool { return len(s.frames) == 0 }
