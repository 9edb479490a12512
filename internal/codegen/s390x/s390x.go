// Package s390x implements codegen.Backend for the IBM Z (s390x) Linux
// ABI. No repo in the example pack carries an s390x backend (DESIGN.md
// records this); the instruction encodings below come directly from the
// z/Architecture Principles of Operation and follow the same table-driven
// shape as this repository's other three backends: set_reg as a
// shortest-fit immediate chain, byte arithmetic as load-operate-store
// through the scratch register, and a fixed-size load+test+branch loop
// test.
package s390x

import (
	"github.com/lcox74/bfaotc/internal/codegen"
	"github.com/lcox74/bfaotc/internal/ir"
	"github.com/lcox74/bfaotc/pkg/buffer"
)

func init() {
	codegen.Register(&Backend{})
}

// Physical general-purpose register numbers.
const (
	r1 = 1 // syscall number
	r2 = 2 // arg1
	r3 = 3 // arg2
	r4 = 4 // arg3
	r8 = 8 // bf_ptr
	r9 = 9 // scratch
)

type Backend struct{}

func (Backend) Name() string      { return "s390x" }
func (Backend) Aliases() []string { return []string{"s390"} }

func (Backend) ELFMachine() uint16                 { return 0x16 } // EM_S390
func (Backend) DataEncoding() codegen.DataEncoding { return codegen.DataMSB }
func (Backend) ELFFlags() uint32                   { return 0 }

func (Backend) Syscalls() codegen.SyscallNumbers {
	return codegen.SyscallNumbers{Read: 3, Write: 4, Exit: 1}
}

func physReg(r codegen.Reg) byte {
	switch r {
	case codegen.RegBFPtr:
		return r8
	case codegen.RegSyscallNum:
		return r1
	case codegen.RegArg1:
		return r2
	case codegen.RegArg2:
		return r3
	case codegen.RegArg3:
		return r4
	default:
		panic("s390x: unknown register role")
	}
}

func be16(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }
func be32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func appendErr(buf *buffer.Buffer, code []byte) *ir.CompileError {
	if err := buf.Append(code); err != nil {
		return ir.NewError(ir.ErrBufferTooLarge, "%v", err)
	}
	return nil
}

// lghi: RI-a, "load halfword immediate (64)", sign-extends imm16 into r.
func lghi(r byte, imm16 uint16) []byte {
	code := []byte{0xA7, (r << 4) | 0x9}
	return append(code, be16(imm16)...)
}

// lgfi: RIL-a, "load fullword immediate (64)", sign-extends imm32.
func lgfi(r byte, imm32 uint32) []byte {
	code := []byte{0xC0, (r << 4) | 0x1}
	return append(code, be32(imm32)...)
}

// iihf/iilf: RIL-a, insert immediate into the high/low 32 bits of r
// without touching the other half.
func iihf(r byte, imm32 uint32) []byte {
	code := []byte{0xC0, (r << 4) | 0x8}
	return append(code, be32(imm32)...)
}
func iilf(r byte, imm32 uint32) []byte {
	code := []byte{0xC0, (r << 4) | 0x9}
	return append(code, be32(imm32)...)
}

// lgr: RRE, "load (64)" register-register copy.
func lgr(dst, src byte) []byte { return []byte{0xB9, 0x04, 0x00, (dst << 4) | src} }

// SetReg materialises imm into r, preferring the shortest chain: LGHI
// (sign-extended 16-bit, 4 bytes) when it fits, LGFI (sign-extended
// 32-bit, 6 bytes) next, and an IIHF+IILF high/low-half pair (12 bytes)
// for anything wider.
func (Backend) SetReg(buf *buffer.Buffer, r codegen.Reg, imm uint64) *ir.CompileError {
	reg := physReg(r)
	if imm == uint64(int64(int16(imm))) {
		return appendErr(buf, lghi(reg, uint16(imm)))
	}
	if imm == uint64(int64(int32(imm))) {
		return appendErr(buf, lgfi(reg, uint32(imm)))
	}
	code := iihf(reg, uint32(imm>>32))
	code = append(code, iilf(reg, uint32(imm))...)
	return appendErr(buf, code)
}

func (Backend) RegCopy(buf *buffer.Buffer, dst, src codegen.Reg) *ir.CompileError {
	return appendErr(buf, lgr(physReg(dst), physReg(src)))
}

// Syscall emits "svc 0" (supervisor call, RI-a shaped but with an 8-bit
// immediate code rather than a 16-bit one: opcode 0x0A followed by the
// code byte).
func (Backend) Syscall(buf *buffer.Buffer) *ir.CompileError {
	return appendErr(buf, []byte{0x0A, 0x00})
}

// aghi: RI-a, "add halfword immediate (64)", r += sign_extend(imm16).
func aghi(r byte, imm16 uint16) []byte {
	code := []byte{0xA7, (r << 4) | 0xB}
	return append(code, be16(imm16)...)
}

// agfi: RIL-a, "add fullword immediate (64)", r += sign_extend(imm32).
func agfi(r byte, imm32 uint32) []byte {
	code := []byte{0xC2, (r << 4) | 0x8}
	return append(code, be32(imm32)...)
}

func (Backend) IncReg(buf *buffer.Buffer, r codegen.Reg) *ir.CompileError {
	return appendErr(buf, aghi(physReg(r), 1))
}

func (Backend) DecReg(buf *buffer.Buffer, r codegen.Reg) *ir.CompileError {
	return appendErr(buf, aghi(physReg(r), 0xFFFF)) // -1 as a sign-extended halfword
}

func (Backend) AddReg(buf *buffer.Buffer, r codegen.Reg, imm int64) *ir.CompileError {
	reg := physReg(r)
	if imm >= -32768 && imm <= 32767 {
		return appendErr(buf, aghi(reg, uint16(int16(imm))))
	}
	if imm >= -(1<<31) && imm <= (1<<31)-1 {
		return appendErr(buf, agfi(reg, uint32(int32(imm))))
	}
	return ir.NewError(ir.ErrImmediateTooLarge, "s390x: register delta %d does not fit in 32 bits", imm)
}

func (Backend) SubReg(buf *buffer.Buffer, r codegen.Reg, imm int64) *ir.CompileError {
	return Backend{}.AddReg(buf, r, -imm)
}

// llgc: RXY-b, "load logical character (zero-extend byte to 64)",
// disp/index/base all zero (we only ever address [bf_ptr+0]).
func llgc(rt, base byte) []byte {
	return []byte{0xE3, (rt << 4) | 0x0, (base << 4) | 0x0, 0x00, 0x00, 0x90}
}

// stc: RX-a, "store character (1 byte)".
func stc(rt, base byte) []byte {
	return []byte{0x42, rt << 4, base << 4, 0x00}
}

func (Backend) ZeroByte(buf *buffer.Buffer) *ir.CompileError {
	// No register needs to carry the constant zero for a 1-byte store: a
	// general register's low byte is 0 only by construction, so go
	// through the scratch register explicitly instead of assuming one.
	code := lghi(r9, 0)
	code = append(code, stc(r9, r8)...)
	return appendErr(buf, code)
}

func (Backend) IncByte(buf *buffer.Buffer) *ir.CompileError {
	code := llgc(r9, r8)
	code = append(code, aghi(r9, 1)...)
	code = append(code, stc(r9, r8)...)
	return appendErr(buf, code)
}

func (Backend) DecByte(buf *buffer.Buffer) *ir.CompileError {
	code := llgc(r9, r8)
	code = append(code, aghi(r9, 0xFFFF)...)
	code = append(code, stc(r9, r8)...)
	return appendErr(buf, code)
}

func (Backend) AddByte(buf *buffer.Buffer, imm uint8) *ir.CompileError {
	code := llgc(r9, r8)
	code = append(code, aghi(r9, uint16(imm))...)
	code = append(code, stc(r9, r8)...)
	return appendErr(buf, code)
}

func (Backend) SubByte(buf *buffer.Buffer, imm uint8) *ir.CompileError {
	code := llgc(r9, r8)
	code = append(code, aghi(r9, uint16(int16(-int8(imm))))...)
	code = append(code, stc(r9, r8)...)
	return appendErr(buf, code)
}

// ltgr: RRE, "load and test (64)"; self-testing a register against zero
// sets the condition code without needing a separate compare register.
func ltgr(r byte) []byte { return []byte{0xB9, 0x02, 0x00, (r << 4) | r} }

// brcl: RIL-c, "branch relative on condition (long)". mask selects the
// condition (8 = equal/zero, 7 = not-equal/nonzero); imm32 is a signed
// halfword count. §4.3/DESIGN.md restrict the checked range to 17 bits
// (±65536 halfwords) even though the instruction's own field is 32 bits,
// matching the spec's documented s390x branch-range policy.
func brcl(mask byte, imm int32) []byte {
	code := []byte{0xC0, (mask << 4) | 0x4}
	return append(code, be32(uint32(imm))...)
}

// Loop test: LLGC scratch,0(bf_ptr) (6B) + LTGR scratch,scratch (4B) +
// BRCL mask,offset (6B) = 16 bytes, fixed regardless of the eventual
// branch target.
const loopOpenSize = 16

func (Backend) LoopOpenSize() int { return loopOpenSize }

// PadLoopOpen fills the reserved span with illegal two-byte units (0x0000
// is an unassigned/illegal opcode on s390x, trapping with an operation
// exception).
func (Backend) PadLoopOpen(buf *buffer.Buffer) *ir.CompileError {
	code := make([]byte, loopOpenSize)
	return appendErr(buf, code)
}

const maxHalfword17 = 1<<16 - 1 // 17-bit signed range, in halfwords

func brclRange(relBytes int64) (halfwords int32, ok bool) {
	if relBytes%2 != 0 {
		panic("s390x: branch offset not 2-byte aligned")
	}
	hw := relBytes / 2
	if hw < -maxHalfword17-1 || hw > maxHalfword17 {
		return 0, false
	}
	return int32(hw), true
}

func (Backend) JumpOpen(buf *buffer.Buffer, index int, offset int64) *ir.CompileError {
	// LLGC+LTGR occupy the first 10 bytes; BRCL's own address is index+10
	// and its immediate is relative to that address.
	relBytes := offset - 10
	hw, ok := brclRange(relBytes)
	if !ok {
		return jumpTooLong(offset)
	}
	code := llgc(r9, r8)
	code = append(code, ltgr(r9)...)
	code = append(code, brcl(8, hw)...) // mask 8: branch if CC==0 (zero)
	buf.WriteAt(index, code)
	return nil
}

func (Backend) JumpClose(buf *buffer.Buffer, offset int64) *ir.CompileError {
	relBytes := -offset - 10
	hw, ok := brclRange(relBytes)
	if !ok {
		return jumpTooLong(offset)
	}
	code := llgc(r9, r8)
	code = append(code, ltgr(r9)...)
	code = append(code, brcl(7, hw)...) // mask 7: branch if CC!=0 (nonzero)
	return appendErr(buf, code)
}

func jumpTooLong(offset int64) *ir.CompileError {
	return ir.NewError(ir.ErrJumpTooLong, "s390x branch offset %d exceeds the checked 17-bit BRCL range", offset)
}
