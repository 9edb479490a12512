// Package x86_64 implements codegen.Backend for x86-64/amd64 Linux,
// grounded on the teacher's pkg/amd64 instruction encoders and its
// internal/codegen/linux/x86_64.go generator, generalized from the
// teacher's fixed r12/r13 base+index split to a single tape-pointer
// register (r12), which x86-64's SIB-with-no-index addressing form makes
// just as cheap to encode.
package x86_64

import (
	"math"

	"github.com/lcox74/bfaotc/internal/codegen"
	"github.com/lcox74/bfaotc/internal/ir"
	"github.com/lcox74/bfaotc/pkg/buffer"
)

func init() {
	codegen.Register(&Backend{})
}

// Physical register numbers (0-15, the post-REX 4-bit encoding).
const (
	rax = 0
	rdx = 2
	rsi = 6
	rdi = 7
	r12 = 12 // bf_ptr
	r13 = 13 // scratch: wide-immediate materialization for AddReg/SubReg
)

// Backend implements codegen.Backend for x86-64.
type Backend struct{}

func (Backend) Name() string      { return "x86_64" }
func (Backend) Aliases() []string { return []string{"x64", "amd64"} }

func (Backend) ELFMachine() uint16            { return 0x3E } // EM_X86_64
func (Backend) DataEncoding() codegen.DataEncoding { return codegen.DataLSB }
func (Backend) ELFFlags() uint32              { return 0 }

func (Backend) Syscalls() codegen.SyscallNumbers {
	return codegen.SyscallNumbers{Read: 0, Write: 1, Exit: 60}
}

func physReg(r codegen.Reg) byte {
	switch r {
	case codegen.RegBFPtr:
		return r12
	case codegen.RegSyscallNum:
		return rax
	case codegen.RegArg1:
		return rdi
	case codegen.RegArg2:
		return rsi
	case codegen.RegArg3:
		return rdx
	default:
		panic("x86_64: unknown register role")
	}
}

func rex(w, r, x, b bool) byte {
	var v byte = 0x40
	if w {
		v |= 1 << 3
	}
	if r {
		v |= 1 << 2
	}
	if x {
		v |= 1 << 1
	}
	if b {
		v |= 1
	}
	return v
}

func modrm(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | (rm & 7)
}

func le32(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

func le64(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}

// fitsInt32 reports whether v sign-extends cleanly into an int32.
func fitsInt32(v uint64) bool {
	return v == uint64(int64(int32(v)))
}

// SetReg materialises imm into r, preferring "mov r/m64, imm32" (sign
// extended, 7 bytes with REX) when imm fits, falling back to a full
// "movabs r64, imm64" (10 bytes) otherwise.
func (Backend) SetReg(buf *buffer.Buffer, r codegen.Reg, imm uint64) *ir.CompileError {
	dst := physReg(r)
	var code []byte
	if fitsInt32(imm) {
		code = append(code, rex(true, false, false, dst >= 8), 0xC7, modrm(0b11, 0, dst))
		code = append(code, le32(int32(imm))...)
	} else {
		code = append(code, rex(true, false, false, dst >= 8), 0xB8+(dst&7))
		code = append(code, le64(imm)...)
	}
	return appendErr(buf, code)
}

// RegCopy emits "mov dst, src" (opcode 0x89: MOV r/m64, r64).
func (Backend) RegCopy(buf *buffer.Buffer, dst, src codegen.Reg) *ir.CompileError {
	d, s := physReg(dst), physReg(src)
	code := []byte{rex(true, s >= 8, false, d >= 8), 0x89, modrm(0b11, s, d)}
	return appendErr(buf, code)
}

// Syscall emits the "syscall" instruction.
func (Backend) Syscall(buf *buffer.Buffer) *ir.CompileError {
	return appendErr(buf, []byte{0x0F, 0x05})
}

func (Backend) IncReg(buf *buffer.Buffer, r codegen.Reg) *ir.CompileError {
	reg := physReg(r)
	return appendErr(buf, []byte{rex(true, false, false, reg >= 8), 0xFF, modrm(0b11, 0, reg)})
}

func (Backend) DecReg(buf *buffer.Buffer, r codegen.Reg) *ir.CompileError {
	reg := physReg(r)
	return appendErr(buf, []byte{rex(true, false, false, reg >= 8), 0xFF, modrm(0b11, 1, reg)})
}

func addSubRegImm(buf *buffer.Buffer, reg byte, imm int64, sub bool) *ir.CompileError {
	ext := byte(0)
	if sub {
		ext = 5
	}
	if imm >= math.MinInt32 && imm <= math.MaxInt32 {
		code := []byte{rex(true, false, false, reg >= 8), 0x81, modrm(0b11, ext, reg)}
		code = append(code, le32(int32(imm))...)
		return appendErr(buf, code)
	}
	// Wide immediate: materialise into the scratch register, then add/sub
	// reg,reg (opcode 0x01 ADD r/m64,r64 / 0x29 SUB r/m64,r64).
	var code []byte
	code = append(code, rex(true, false, false, r13 >= 8), 0xB8+(r13&7))
	code = append(code, le64(uint64(imm))...)
	op := byte(0x01)
	if sub {
		op = 0x29
	}
	code = append(code, rex(true, r13 >= 8, false, reg >= 8), op, modrm(0b11, r13, reg))
	return appendErr(buf, code)
}

func (Backend) AddReg(buf *buffer.Buffer, r codegen.Reg, imm int64) *ir.CompileError {
	return addSubRegImm(buf, physReg(r), imm, false)
}

func (Backend) SubReg(buf *buffer.Buffer, r codegen.Reg, imm int64) *ir.CompileError {
	return addSubRegImm(buf, physReg(r), imm, true)
}

// Byte operations address [r12+0] directly; x86-64 can add/sub/inc/dec/mov
// straight through a memory operand, so no load-scratch-store dance is
// needed here (unlike AArch64/s390x). r12's register number forces a SIB
// byte (its low 3 bits alias the "SIB follows" ModRM.rm encoding), and
// mod=01 pins a single explicit zero displacement byte.
func byteMemPrefix(opExt byte) []byte {
	return []byte{rex(false, false, false, true), 0, modrm(0b01, opExt, 0b100), 0x24, 0x00}
}

func (Backend) IncByte(buf *buffer.Buffer) *ir.CompileError {
	code := byteMemPrefix(0)
	code[1] = 0xFE
	return appendErr(buf, code)
}

func (Backend) DecByte(buf *buffer.Buffer) *ir.CompileError {
	code := byteMemPrefix(1)
	code[1] = 0xFE
	return appendErr(buf, code)
}

func (Backend) AddByte(buf *buffer.Buffer, imm uint8) *ir.CompileError {
	code := byteMemPrefix(0)
	code[1] = 0x80
	code = append(code, imm)
	return appendErr(buf, code)
}

func (Backend) SubByte(buf *buffer.Buffer, imm uint8) *ir.CompileError {
	code := byteMemPrefix(5)
	code[1] = 0x80
	code = append(code, imm)
	return appendErr(buf, code)
}

func (Backend) ZeroByte(buf *buffer.Buffer) *ir.CompileError {
	code := byteMemPrefix(0)
	code[1] = 0xC6
	code = append(code, 0x00)
	return appendErr(buf, code)
}

// loopOpenSize is the length of the shared loop-test shape: testb $0xff,(%r12)
// (6 bytes) followed by a near Jcc rel32 (6 bytes).
const loopOpenSize = 12

func testByte() []byte {
	code := byteMemPrefix(0)
	code[1] = 0xF6
	code = append(code, 0xFF)
	return code
}

func (Backend) LoopOpenSize() int { return loopOpenSize }

// PadLoopOpen fills the reserved span with UD2 (0F 0B), an instruction
// that always traps, so an unpatched loop open is diagnosable rather than
// silently executing whatever bytes happen to follow.
func (Backend) PadLoopOpen(buf *buffer.Buffer) *ir.CompileError {
	code := make([]byte, 0, loopOpenSize)
	for len(code) < loopOpenSize {
		code = append(code, 0x0F, 0x0B)
	}
	return appendErr(buf, code)
}

func (Backend) JumpOpen(buf *buffer.Buffer, index int, offset int64) *ir.CompileError {
	rel := offset - loopOpenSize
	if rel < math.MinInt32 || rel > math.MaxInt32 {
		return jumpTooLong(offset)
	}
	code := testByte()
	code = append(code, 0x0F, 0x84) // JZ rel32
	code = append(code, le32(int32(rel))...)
	buf.WriteAt(index, code)
	return nil
}

func (Backend) JumpClose(buf *buffer.Buffer, offset int64) *ir.CompileError {
	rel := -offset - loopOpenSize
	if rel < math.MinInt32 || rel > math.MaxInt32 {
		return jumpTooLong(offset)
	}
	code := testByte()
	code = append(code, 0x0F, 0x85) // JNZ rel32
	code = append(code, le32(int32(rel))...)
	return appendErr(buf, code)
}

func jumpTooLong(offset int64) *ir.CompileError {
	return ir.NewError(ir.ErrJumpTooLong, "x86-64 branch offset %d exceeds the rel32 range", offset)
}

func appendErr(buf *buffer.Buffer, code []byte) *ir.CompileError {
	if err := buf.Append(code); err != nil {
		return ir.NewError(ir.ErrBufferTooLarge, "%v", err)
	}
	return nil
}
