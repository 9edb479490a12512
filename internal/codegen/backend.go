// Package codegen defines the backend contract every architecture
// implements (§4.3) and the registry that looks a backend up by name or
// alias (§6, -target-arch/-list-targets).
package codegen

import (
	"github.com/lcox74/bfaotc/internal/ir"
	"github.com/lcox74/bfaotc/pkg/buffer"
)

// Reg names a semantic register role. Every backend maps each role to one
// of its own physical registers; callers never see a physical register
// name, only the role they need.
type Reg int

const (
	// RegBFPtr holds the tape-pointer address throughout the compiled
	// program's lifetime.
	RegBFPtr Reg = iota
	// RegSyscallNum holds the syscall number immediately before a Syscall.
	RegSyscallNum
	// RegArg1, RegArg2, RegArg3 hold the first three syscall arguments;
	// read/write/exit never need a fourth.
	RegArg1
	RegArg2
	RegArg3
)

// SyscallNumbers are the three raw Linux syscall numbers a backend needs;
// every architecture backend has exactly these three because the core's
// syscall surface is read/write/exit (§4.6).
type SyscallNumbers struct {
	Read  uint64
	Write uint64
	Exit  uint64
}

// DataEncoding is the ELF EI_DATA value driving both instruction-word and
// ELF-header byte order (§4.7: "endian selection is driven entirely by the
// backend descriptor").
type DataEncoding byte

const (
	DataLSB DataEncoding = 1
	DataMSB DataEncoding = 2
)

// Backend is the per-architecture function table of §4.3: an immutable,
// stateless descriptor plus a set of pure emitters that append (or, for
// JumpOpen, patch in place) machine code bytes into a buffer.Buffer.
//
// Every emitter is free of side effects beyond the buffer it is given;
// nothing here keeps state across calls. The compile driver owns all
// sequencing.
type Backend interface {
	// Name is the canonical -target-arch name; Aliases lists additional
	// accepted spellings (e.g. x64, amd64 for the x86-64 backend).
	Name() string
	Aliases() []string

	// ELFMachine is the e_machine value for this ISA.
	ELFMachine() uint16
	// DataEncoding is this backend's fixed endianness.
	DataEncoding() DataEncoding
	// ELFFlags is the e_flags value this ISA's ABI expects; 0 when the ISA
	// has no meaningful flags for a syscall-only, floating-point-free
	// executable.
	ELFFlags() uint32

	// Syscalls returns this ISA's read/write/exit syscall numbers.
	Syscalls() SyscallNumbers

	// SetReg materialises imm into r using the shortest encoding the ISA
	// supports.
	SetReg(buf *buffer.Buffer, r Reg, imm uint64) *ir.CompileError
	// RegCopy emits dst = src.
	RegCopy(buf *buffer.Buffer, dst, src Reg) *ir.CompileError
	// Syscall emits the ISA's trap-to-kernel instruction.
	Syscall(buf *buffer.Buffer) *ir.CompileError

	// IncReg/DecReg emit r += 1 / r -= 1.
	IncReg(buf *buffer.Buffer, r Reg) *ir.CompileError
	DecReg(buf *buffer.Buffer, r Reg) *ir.CompileError
	// AddReg/SubReg emit r += imm / r -= imm, imm a signed pointer delta.
	AddReg(buf *buffer.Buffer, r Reg, imm int64) *ir.CompileError
	SubReg(buf *buffer.Buffer, r Reg, imm int64) *ir.CompileError

	// IncByte/DecByte emit *bf_ptr += 1 / *bf_ptr -= 1.
	IncByte(buf *buffer.Buffer) *ir.CompileError
	DecByte(buf *buffer.Buffer) *ir.CompileError
	// AddByte/SubByte emit *bf_ptr += imm / *bf_ptr -= imm, imm unsigned
	// 8-bit (the cell wraps mod 256 regardless of sign).
	AddByte(buf *buffer.Buffer, imm uint8) *ir.CompileError
	SubByte(buf *buffer.Buffer, imm uint8) *ir.CompileError
	// ZeroByte emits *bf_ptr = 0.
	ZeroByte(buf *buffer.Buffer) *ir.CompileError

	// LoopOpenSize is the exact, constant number of bytes PadLoopOpen
	// always emits and JumpOpen always patches, chosen up front to
	// accommodate the worst-case branch offset this backend supports
	// (§9, "back-patching without a second source pass").
	LoopOpenSize() int
	// PadLoopOpen appends LoopOpenSize() bytes of a trap/non-sensical
	// placeholder, so a loop left unpatched (should that ever happen) is
	// safely diagnosable rather than silently falling through.
	PadLoopOpen(buf *buffer.Buffer) *ir.CompileError
	// JumpOpen patches at buf[index:index+LoopOpenSize()] a "branch
	// forward by offset code bytes if *bf_ptr == 0". offset is the
	// distance, in bytes, from the first byte of this branch to its
	// target. Returns ErrJumpTooLong without mutating the buffer if
	// offset exceeds this backend's documented range.
	JumpOpen(buf *buffer.Buffer, index int, offset int64) *ir.CompileError
	// JumpClose appends a "branch backward by offset code bytes if
	// *bf_ptr != 0" (offset is positive; the backend encodes it as a
	// negative displacement). Returns ErrJumpTooLong without mutating the
	// buffer if offset exceeds this backend's documented range.
	JumpClose(buf *buffer.Buffer, offset int64) *ir.CompileError
}
