// Package arm64 implements codegen.Backend for AArch64 Linux, grounded on
// the register/immediate-materialization shapes in xyproto/flapc's
// arm64_instructions.go (MovImm64's MOVZ/MOVK lane chain, AddImm64/
// SubImm64's 12-bit+shifted-12-bit decomposition, the branch-immediate
// layouts), generalized here to the tape-byte LDRB/STRB forms that file
// doesn't itself need.
package arm64

import (
	"encoding/binary"
	"math"

	"github.com/lcox74/bfaotc/internal/codegen"
	"github.com/lcox74/bfaotc/internal/ir"
	"github.com/lcox74/bfaotc/pkg/buffer"
)

func init() {
	codegen.Register(&Backend{})
}

// Physical register numbers.
const (
	x0  = 0  // arg1
	x1  = 1  // arg2
	x2  = 2  // arg3
	x8  = 8  // syscall number
	x9  = 9  // scratch
	x19 = 19 // bf_ptr
	xzr = 31
)

type Backend struct{}

func (Backend) Name() string      { return "aarch64" }
func (Backend) Aliases() []string { return []string{"arm64"} }

func (Backend) ELFMachine() uint16                 { return 0xB7 } // EM_AARCH64
func (Backend) DataEncoding() codegen.DataEncoding { return codegen.DataLSB }
func (Backend) ELFFlags() uint32                   { return 0 }

func (Backend) Syscalls() codegen.SyscallNumbers {
	return codegen.SyscallNumbers{Read: 63, Write: 64, Exit: 93}
}

func physReg(r codegen.Reg) uint32 {
	switch r {
	case codegen.RegBFPtr:
		return x19
	case codegen.RegSyscallNum:
		return x8
	case codegen.RegArg1:
		return x0
	case codegen.RegArg2:
		return x1
	case codegen.RegArg3:
		return x2
	default:
		panic("arm64: unknown register role")
	}
}

func word(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func appendWords(buf *buffer.Buffer, words ...uint32) *ir.CompileError {
	code := make([]byte, 0, 4*len(words))
	for _, w := range words {
		code = append(code, word(w)...)
	}
	if err := buf.Append(code); err != nil {
		return ir.NewError(ir.ErrBufferTooLarge, "%v", err)
	}
	return nil
}

// movzWord/movkWord/movnWord build the lane-move instruction words for
// hw in {0,1,2,3} (shift = hw*16).
func movzWord(rd uint32, imm16 uint16, hw uint32) uint32 {
	return 0xD2800000 | (hw << 21) | (uint32(imm16) << 5) | rd
}
func movkWord(rd uint32, imm16 uint16, hw uint32) uint32 {
	return 0xF2800000 | (hw << 21) | (uint32(imm16) << 5) | rd
}
func movnWord(rd uint32, imm16 uint16, hw uint32) uint32 {
	return 0x92800000 | (hw << 21) | (uint32(imm16) << 5) | rd
}

// SetReg materialises imm into r via the MOVZ/MOVK/MOVN lane chain: a
// single MOVN when only the low 16 bits differ from all-ones, a single
// MOVZ when imm fits 16 bits, otherwise MOVZ on the low lane followed by a
// MOVK per nonzero remaining lane.
func (Backend) SetReg(buf *buffer.Buffer, r codegen.Reg, imm uint64) *ir.CompileError {
	rd := physReg(r)

	if imm <= 0xFFFF {
		return appendWords(buf, movzWord(rd, uint16(imm), 0))
	}
	if imm|0xFFFF == math.MaxUint64 {
		return appendWords(buf, movnWord(rd, uint16(^imm), 0))
	}

	words := []uint32{movzWord(rd, uint16(imm), 0)}
	for hw := uint32(1); hw <= 3; hw++ {
		lane := uint16(imm >> (hw * 16))
		if lane != 0 {
			words = append(words, movkWord(rd, lane, hw))
		}
	}
	return appendWords(buf, words...)
}

// RegCopy emits "mov dst, src", the canonical ORR Xd, XZR, Xn alias.
func (Backend) RegCopy(buf *buffer.Buffer, dst, src codegen.Reg) *ir.CompileError {
	d, s := physReg(dst), physReg(src)
	return appendWords(buf, 0xAA0003E0|(s<<16)|d)
}

// Syscall emits "svc #0".
func (Backend) Syscall(buf *buffer.Buffer) *ir.CompileError {
	return appendWords(buf, 0xD4000001)
}

func addImmWord(rd, rn uint32, imm12 uint32, shift12 bool) uint32 {
	w := uint32(0x91000000) | (imm12 << 10) | (rn << 5) | rd
	if shift12 {
		w |= 1 << 22
	}
	return w
}
func subImmWord(rd, rn uint32, imm12 uint32, shift12 bool) uint32 {
	w := uint32(0xD1000000) | (imm12 << 10) | (rn << 5) | rd
	if shift12 {
		w |= 1 << 22
	}
	return w
}

func (Backend) IncReg(buf *buffer.Buffer, r codegen.Reg) *ir.CompileError {
	reg := physReg(r)
	return appendWords(buf, addImmWord(reg, reg, 1, false))
}

func (Backend) DecReg(buf *buffer.Buffer, r codegen.Reg) *ir.CompileError {
	reg := physReg(r)
	return appendWords(buf, subImmWord(reg, reg, 1, false))
}

// addSubReg decomposes |imm| into a 12-bit immediate, a 12-bit<<12
// immediate, and - for anything wider than 24 bits - a scratch-register
// fallback, per §4.3's explicit AArch64 large-immediate rule.
func addSubReg(buf *buffer.Buffer, reg uint32, imm int64, sub bool) *ir.CompileError {
	if imm == math.MinInt64 {
		return ir.NewError(ir.ErrTooManyInstructions, "aarch64: immediate %d has no representable magnitude", imm)
	}
	neg := imm < 0
	mag := imm
	if neg {
		mag = -imm
	}
	// A negative delta is the mirror operation: -imm via ADD is the same
	// as +imm via SUB and vice versa.
	doSub := sub != neg

	if mag <= 0xFFF {
		if doSub {
			return appendWords(buf, subImmWord(reg, reg, uint32(mag), false))
		}
		return appendWords(buf, addImmWord(reg, reg, uint32(mag), false))
	}
	if mag < 1<<24 {
		hi := uint32(mag>>12) & 0xFFF
		lo := uint32(mag) & 0xFFF
		words := []uint32{}
		if doSub {
			words = append(words, subImmWord(reg, reg, hi, true))
			if lo != 0 {
				words = append(words, subImmWord(reg, reg, lo, false))
			}
		} else {
			words = append(words, addImmWord(reg, reg, hi, true))
			if lo != 0 {
				words = append(words, addImmWord(reg, reg, lo, false))
			}
		}
		return appendWords(buf, words...)
	}

	// Wider than 24 bits: materialise the magnitude into the scratch
	// register via the same MOVZ/MOVK lane chain SetReg uses, then
	// ADD/SUB (shifted register).
	words := []uint32{movzWord(x9, uint16(mag), 0)}
	for hw := uint32(1); hw <= 3; hw++ {
		lane := uint16(mag >> (hw * 16))
		if lane != 0 {
			words = append(words, movkWord(x9, lane, hw))
		}
	}
	if doSub {
		words = append(words, 0xCB000000|(x9<<16)|(reg<<5)|reg)
	} else {
		words = append(words, 0x8B000000|(x9<<16)|(reg<<5)|reg)
	}
	return appendWords(buf, words...)
}

func (Backend) AddReg(buf *buffer.Buffer, r codegen.Reg, imm int64) *ir.CompileError {
	return addSubReg(buf, physReg(r), imm, false)
}

func (Backend) SubReg(buf *buffer.Buffer, r codegen.Reg, imm int64) *ir.CompileError {
	return addSubReg(buf, physReg(r), imm, true)
}

func ldrb(rt, rn uint32) uint32 { return 0x39400000 | (rn << 5) | rt }
func strb(rt, rn uint32) uint32 { return 0x39000000 | (rn << 5) | rt }

func (Backend) ZeroByte(buf *buffer.Buffer) *ir.CompileError {
	return appendWords(buf, strb(xzr, x19))
}

func addSub32ImmWord(rd, rn uint32, imm12 uint32, sub bool) uint32 {
	base := uint32(0x11000000)
	if sub {
		base = 0x51000000
	}
	return base | (imm12 << 10) | (rn << 5) | rd
}

func (Backend) IncByte(buf *buffer.Buffer) *ir.CompileError {
	return appendWords(buf, ldrb(x9, x19), addSub32ImmWord(x9, x9, 1, false), strb(x9, x19))
}

func (Backend) DecByte(buf *buffer.Buffer) *ir.CompileError {
	return appendWords(buf, ldrb(x9, x19), addSub32ImmWord(x9, x9, 1, true), strb(x9, x19))
}

func (Backend) AddByte(buf *buffer.Buffer, imm uint8) *ir.CompileError {
	return appendWords(buf, ldrb(x9, x19), addSub32ImmWord(x9, x9, uint32(imm), false), strb(x9, x19))
}

func (Backend) SubByte(buf *buffer.Buffer, imm uint8) *ir.CompileError {
	return appendWords(buf, ldrb(x9, x19), addSub32ImmWord(x9, x9, uint32(imm), true), strb(x9, x19))
}

// Loop test: LDRB scratch,[bf_ptr] (4B) + CBZ/CBNZ Wt,offset (4B) = 8
// bytes, fixed regardless of the eventual branch target (§9).
const loopOpenSize = 8

func (Backend) LoopOpenSize() int { return loopOpenSize }

// PadLoopOpen fills the reserved span with two BRK #0 traps.
func (Backend) PadLoopOpen(buf *buffer.Buffer) *ir.CompileError {
	return appendWords(buf, 0xD4200000, 0xD4200000)
}

const (
	cbzBase  = 0x34000000
	cbnzBase = 0x35000000
)

func branchRange(relBytes int64) (imm19 uint32, ok bool) {
	if relBytes%4 != 0 {
		panic("arm64: branch offset not 4-byte aligned")
	}
	words := relBytes / 4
	if words < -(1<<18) || words > (1<<18)-1 {
		return 0, false
	}
	return uint32(words) & 0x7FFFF, true
}

func (Backend) JumpOpen(buf *buffer.Buffer, index int, offset int64) *ir.CompileError {
	relBytes := offset - 4 // CBZ sits 4 bytes into the reserved span
	imm19, ok := branchRange(relBytes)
	if !ok {
		return jumpTooLong(offset)
	}
	code := word(ldrb(x9, x19))
	code = append(code, word(cbzBase|(imm19<<5)|x9)...)
	buf.WriteAt(index, code)
	return nil
}

func (Backend) JumpClose(buf *buffer.Buffer, offset int64) *ir.CompileError {
	relBytes := -offset - 4
	imm19, ok := branchRange(relBytes)
	if !ok {
		return jumpTooLong(offset)
	}
	return appendWords(buf, ldrb(x9, x19), cbnzBase|(imm19<<5)|x9)
}

func jumpTooLong(offset int64) *ir.CompileError {
	return ir.NewError(ir.ErrJumpTooLong, "aarch64 branch offset %d exceeds the ±1MiB CBZ/CBNZ range", offset)
}
