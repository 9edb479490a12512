package driver

import (
	"testing"

	"github.com/lcox74/bfaotc/internal/codegen"
	_ "github.com/lcox74/bfaotc/internal/codegen/x86_64"
	"github.com/lcox74/bfaotc/internal/ir"
	"github.com/lcox74/bfaotc/pkg/elf"
)

func x86() codegen.Backend {
	b, ok := codegen.Lookup("x86_64")
	if !ok {
		panic("x86_64 backend not registered")
	}
	return b
}

func TestCompileSourceEmptyProgram(t *testing.T) {
	out, err := CompileSource(nil, Options{Backend: x86(), TapeBlocks: 8})
	if err != nil {
		t.Fatalf("CompileSource: %v", err)
	}
	if out[0] != elf.ELFMAG0 {
		t.Fatalf("missing ELF magic in output")
	}
	if len(out) <= elf.HeadersSize {
		t.Fatalf("expected setup+exit code beyond the header region, got %d bytes total", len(out))
	}
}

func TestCompileSourceUnmatchedOpen(t *testing.T) {
	_, err := CompileSource([]byte("["), Options{Backend: x86(), TapeBlocks: 8})
	if err == nil || err.Kind != ir.ErrUnmatchedOpen {
		t.Fatalf("expected ErrUnmatchedOpen, got %v", err)
	}
}

func TestCompileSourceUnmatchedClose(t *testing.T) {
	_, err := CompileSource([]byte("]"), Options{Backend: x86(), TapeBlocks: 8})
	if err == nil || err.Kind != ir.ErrUnmatchedClose {
		t.Fatalf("expected ErrUnmatchedClose, got %v", err)
	}
}

func TestCompileSourceRejectsZeroTapeBlocks(t *testing.T) {
	_, err := CompileSource([]byte("+"), Options{Backend: x86(), TapeBlocks: 0})
	if err == nil || err.Kind != ir.ErrTapeSizeZero {
		t.Fatalf("expected ErrTapeSizeZero, got %v", err)
	}
}

func TestCompileSourceOptimizedAndUnoptimizedBothSucceed(t *testing.T) {
	src := []byte("++++++++[>++++++++<-]>+.")
	if _, err := CompileSource(src, Options{Backend: x86(), TapeBlocks: 8, Optimize: false}); err != nil {
		t.Fatalf("unoptimized compile: %v", err)
	}
	if _, err := CompileSource(src, Options{Backend: x86(), TapeBlocks: 8, Optimize: true}); err != nil {
		t.Fatalf("optimized compile: %v", err)
	}
}

func TestCompileSourceLoopProducesBalancedPatchedJump(t *testing.T) {
	// A single short loop: compiling it runs the driver's pad-then-back-patch
	// path for `[`/`]`.
	src := []byte("+[-]")
	out, err := CompileSource(src, Options{Backend: x86(), TapeBlocks: 8})
	if err != nil {
		t.Fatalf("CompileSource: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty artifact")
	}
}

func TestCompileRejectsNestedTooDeep(t *testing.T) {
	src := make([]byte, 0, 2*(maxLoopDepth+1))
	for i := 0; i < maxLoopDepth+1; i++ {
		src = append(src, '[')
	}
	for i := 0; i < maxLoopDepth+1; i++ {
		src = append(src, ']')
	}
	_, err := CompileSource(src, Options{Backend: x86(), TapeBlocks: 8})
	if err == nil || err.Kind != ir.ErrNestedTooDeep {
		t.Fatalf("expected ErrNestedTooDeep, got %v", err)
	}
}
