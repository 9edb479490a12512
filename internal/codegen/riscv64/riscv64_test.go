package riscv64

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

func TestSetRegSmallImmediateIsAddi(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	if err := b.SetReg(buf, codegen.RegArg1, 5); err != nil {
		t.Fatalf("SetReg: %v", err)
	}
	got := words(t, buf)
	if len(got) != 1 || got[0] != addi(a0, x0, 5) {
		t.Fatalf("got %#x, want single addi", got)
	}
}

func TestSetRegPageAlignedImmediateIsSingleLui(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	if err := b.SetReg(buf, codegen.RegBFPtr, 0x10000); err != nil {
		t.Fatalf("SetReg: %v", err)
	}
	got := words(t, buf)
	if len(got) != 1 || got[0] != lui(s1, 0x10) {
		t.Fatalf("got %#x, want single lui for an exactly-aligned page value", got)
	}
}

func TestSetRegRejectsImmediateAbove32Bits(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	if err := b.SetReg(buf, codegen.RegBFPtr, 1<<33); err == nil {
		t.Fatal("expected an error for a >32-bit immediate")
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

	if err := b.JumpOpen(buf, index, 1<<21); err == nil {
		t.Fatal("expected JumpTooLong beyond the ±1MiB JAL range")
	}
	if string(buf.Bytes()) != string(before) {
		t.Fatal("JumpOpen mutated the buffer despite returning an error")
	}
}

func TestZeroByteIsSingleSb(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	if err := b.ZeroByte(buf); err != nil {
		t.Fatalf("ZeroByte: %v", err)
	}
	got := words(t, buf)
	if len(got) != 1 || got[0] != sb(s1, x0) {
		t.Fatalf("got %#x, want single sb(s1, x0)", got)
	}
}

func TestRegCopyIsAddiZero(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	if err := b.RegCopy(buf, codegen.RegArg2, codegen.RegBFPtr); err != nil {
		t.Fatalf("RegCopy: %v", err)
	}
	got := words(t, buf)
	if len(got) != 1 || got[0] != addi(a1, s1, 0) {
		t.Fatalf("got %#x, want addi(a1, s1, 0)", got)
	}
}
