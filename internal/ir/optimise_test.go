package ir

import (
	"testing"

	"github.com/lcox74/bfaotc/internal/lex"
)

func compile(t *testing.T, src string) []Op {
	t.Helper()
	ops, err := Lower(lex.Tokenize([]byte(src)))
	if err != nil {
		t.Fatalf("Lower(%q): %v", src, err)
	}
	return ops
}

func TestOptimiseClearLoop(t *testing.T) {
	ops := Optimise(compile(t, "[-]"))
	if len(ops) != 1 || ops[0].Kind != OpZero {
		t.Fatalf("got %s, want single ZERO", Dump(ops))
	}

	ops = Optimise(compile(t, "[+]"))
	if len(ops) != 1 || ops[0].Kind != OpZero {
		t.Fatalf("got %s, want single ZERO", Dump(ops))
	}
}

func TestOptimiseEmptyLoopIsComment(t *testing.T) {
	ops := Optimise(compile(t, "+[this is dropped]+"))
	if len(ops) != 1 || ops[0].Kind != OpAdd || ops[0].Arg != 2 {
		t.Fatalf("got %s, want single ADD 2", Dump(ops))
	}
}

func TestOptimiseNetZeroElided(t *testing.T) {
	ops := Optimise(compile(t, "+++---"))
	if len(ops) != 0 {
		t.Fatalf("got %s, want empty stream", Dump(ops))
	}
	ops = Optimise(compile(t, ">>><<<"))
	if len(ops) != 0 {
		t.Fatalf("got %s, want empty stream", Dump(ops))
	}
}

func TestOptimiseAddWrapsMod256(t *testing.T) {
	ops := compile(t, "+++")
	for i := 1; i < 100; i++ {
		ops = append(ops, Add(3))
	}
	ops = Optimise(ops)
	if len(ops) != 1 || ops[0].Arg != (3*100)%256 {
		t.Fatalf("got %s, want single ADD %d", Dump(ops), (3*100)%256)
	}
}

func TestOptimiseJumpsStayBalanced(t *testing.T) {
	ops := Optimise(compile(t, "+[>+<-]"))
	depth := 0
	for i, op := range ops {
		switch op.Kind {
		case OpJz:
			depth++
			if ops[op.Arg-1].Kind != OpJnz {
				t.Fatalf("JZ at %d targets %d which is not the instruction after a JNZ", i, op.Arg)
			}
		case OpJnz:
			depth--
			if ops[op.Arg].Kind != OpJz {
				t.Fatalf("JNZ at %d targets %d which is not a JZ", i, op.Arg)
			}
		}
	}
	if depth != 0 {
		t.Fatalf("unbalanced loop nesting: depth=%d", depth)
	}
}

func TestOptimiseIsIdempotent(t *testing.T) {
	ops := Optimise(compile(t, "++>>[-]<<[+]>.,"))
	again := Optimise(ops)
	if Dump(ops) != Dump(again) {
		t.Fatalf("optimise is not idempotent:\nfirst: %s\nsecond: %s", Dump(ops), Dump(again))
	}
}
