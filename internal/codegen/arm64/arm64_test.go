package arm64

import (
	"encoding/binary"
	"testing"

	"github.com/lcox74/bfaotc/internal/codegen"
	"github.com/lcox74/bfaotc/pkg/buffer"
)

func words(t *testing.T, buf *buffer.Buffer) []uint32 {
	t.Helper()
	raw := buf.Bytes()
	if len(raw)%4 != 0 {
		t.Fatalf("buffer length %d is not word-aligned", len(raw))
	}
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out
}

func TestSetRegSmallImmediate(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	if err := b.SetReg(buf, codegen.RegArg1, 5); err != nil {
		t.Fatalf("SetReg: %v", err)
	}
	got := words(t, buf)
	want := []uint32{movzWord(x0, 5, 0)}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %#x, want %#x", got, want)
	}
}

func TestSetRegWideImmediateChainsMovk(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	imm := uint64(0x1234_5678_9ABC_DEF0)
	if err := b.SetReg(buf, codegen.RegBFPtr, imm); err != nil {
		t.Fatalf("SetReg: %v", err)
	}
	got := words(t, buf)
	if len(got) != 4 {
		t.Fatalf("expected 4 instructions (MOVZ+3*MOVK) for %#x, got %d", imm, len(got))
	}
}

func TestPadLoopOpenMatchesJumpOpenLength(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	index := buf.Len()
	if err := b.PadLoopOpen(buf); err != nil {
		t.Fatalf("PadLoopOpen: %v", err)
	}
	if buf.Len()-index != b.LoopOpenSize() {
		t.Fatalf("PadLoopOpen wrote %d bytes, want %d", buf.Len()-index, b.LoopOpenSize())
	}

	lenBefore := buf.Len()
	if err := b.JumpOpen(buf, index, 256); err != nil {
		t.Fatalf("JumpOpen: %v", err)
	}
	if buf.Len() != lenBefore {
		t.Fatalf("JumpOpen changed buffer length: before=%d after=%d", lenBefore, buf.Len())
	}
}

func TestJumpTooLongDoesNotMutateBuffer(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	index := buf.Len()
	_ = b.PadLoopOpen(buf)
	before := append([]byte(nil), buf.Bytes()...)

	if err := b.JumpOpen(buf, index, 1<<23); err == nil {
		t.Fatal("expected JumpTooLong beyond the ±1MiB CBZ range")
	}
	if string(buf.Bytes()) != string(before) {
		t.Fatal("JumpOpen mutated the buffer despite returning an error")
	}
}

func TestZeroByteIsSingleStrb(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	if err := b.ZeroByte(buf); err != nil {
		t.Fatalf("ZeroByte: %v", err)
	}
	got := words(t, buf)
	if len(got) != 1 || got[0] != strb(xzr, x19) {
		t.Fatalf("got %#x, want single strb(xzr, x19)", got)
	}
}

func TestRegCopyIsOrrAlias(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	if err := b.RegCopy(buf, codegen.RegArg2, codegen.RegBFPtr); err != nil {
		t.Fatalf("RegCopy: %v", err)
	}
	got := words(t, buf)
	want := uint32(0xAA0003E0 | (x19 << 16) | x1)
	if len(got) != 1 || got[0] != want {
		t.Fatalf("got %#x, want %#x", got, want)
	}
}
