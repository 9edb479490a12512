package x86_64

import (
	"testing"

	"github.com/lcox74/bfaotc/internal/codegen"
	"github.com/lcox74/bfaotc/pkg/buffer"
)

func TestSetRegSmallImmediate(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	if err := b.SetReg(buf, codegen.RegArg1, 1); err != nil {
		t.Fatalf("SetReg: %v", err)
	}
	want := []byte{0x48, 0xC7, 0xC7, 0x01, 0x00, 0x00, 0x00}
	if string(buf.Bytes()) != string(want) {
		t.Fatalf("got % x, want % x", buf.Bytes(), want)
	}
}

func TestSetRegWideImmediateUsesMovabs(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	if err := b.SetReg(buf, codegen.RegBFPtr, 0x123456789); err != nil {
		t.Fatalf("SetReg: %v", err)
	}
	if buf.Len() != 10 {
		t.Fatalf("movabs encoding length = %d, want 10", buf.Len())
	}
	if buf.Bytes()[1] != 0xB8+(r12&7) {
		t.Fatalf("expected movabs opcode for r12, got %x", buf.Bytes()[1])
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
	if err := b.JumpOpen(buf, index, 64); err != nil {
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

	err := b.JumpOpen(buf, index, 1<<40)
	if err == nil {
		t.Fatal("expected JumpTooLong for an out-of-range offset")
	}
	if string(buf.Bytes()) != string(before) {
		t.Fatal("JumpOpen mutated the buffer despite returning an error")
	}

	lenBefore := buf.Len()
	err = b.JumpClose(buf, 1<<40)
	if err == nil {
		t.Fatal("expected JumpTooLong for an out-of-range offset")
	}
	if buf.Len() != lenBefore {
		t.Fatal("JumpClose appended bytes despite returning an error")
	}
}

func TestByteMemoryOpsAddressR12(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	if err := b.ZeroByte(buf); err != nil {
		t.Fatalf("ZeroByte: %v", err)
	}
	want := []byte{0x41, 0xC6, 0x44, 0x24, 0x00, 0x00}
	if string(buf.Bytes()) != string(want) {
		t.Fatalf("ZeroByte = % x, want % x", buf.Bytes(), want)
	}
}

func TestRegCopy(t *testing.T) {
	buf := buffer.New()
	b := Backend{}
	if err := b.RegCopy(buf, codegen.RegArg2, codegen.RegBFPtr); err != nil {
		t.Fatalf("RegCopy: %v", err)
	}
	// mov %r12, %rsi: REX.R (r12>=8) + opcode 0x89 + ModRM(11,r12&7,rsi)
	want := []byte{0x4C, 0x89, modrm(0b11, r12, rsi)}
	if string(buf.Bytes()) != string(want) {
		t.Fatalf("RegCopy = % x, want % x", buf.Bytes(), want)
	}
}
