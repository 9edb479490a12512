// Package driver implements the compile driver of §4.6: it owns the one
// code buffer for a single compilation, streams an IR opcode stream
// through a codegen.Backend in source order, resolves `[`/`]` branches via
// the bounded loop-fixup stack, and splices the finished ELF headers once
// the total output size is known.
package driver

import (
	"github.com/lcox74/bfaotc/internal/codegen"
	"github.com/lcox74/bfaotc/internal/ir"
	"github.com/lcox74/bfaotc/internal/lex"
	"github.com/lcox74/bfaotc/pkg/buffer"
	"github.com/lcox74/bfaotc/pkg/elf"
)

// TapeVAddr and CodeVAddr are the fixed virtual addresses of the compiled
// artifact's two segments (§3).
const (
	TapeVAddr = elf.TapeVAddr
	CodeVAddr = elf.CodeVAddr
)

// MaxTapeBlocks bounds tape-size so tapeBlocks*4096 still fits comfortably
// inside the 52-bit range spec.md's External Interfaces section requires
// (2^52 / 4096 = 2^40, far more than any real tape; this just rejects
// overtly bogus input before it reaches the ELF writer's memsz field).
const MaxTapeBlocks = 1 << 40

// ValidateTapeBlocks checks a -tape-size value against spec.md's
// TapeSizeZero/TapeTooLarge error ids. Both CompileSource and Compile run
// it before emitting anything.
func ValidateTapeBlocks(blocks int) *ir.CompileError {
	if blocks < 1 {
		return ir.NewError(ir.ErrTapeSizeZero, "tape-size must be at least 1 block")
	}
	if blocks > MaxTapeBlocks {
		return ir.NewError(ir.ErrTapeTooLarge, "tape-size %d exceeds the maximum of %d blocks", blocks, MaxTapeBlocks)
	}
	return nil
}

// Options configures one compilation.
type Options struct {
	Backend    codegen.Backend
	TapeBlocks int
	Optimize   bool
}

// CompileSource runs the full pipeline: lex, lower, optionally optimise,
// stream through opts.Backend, and splice ELF headers around the result.
// On a compile error the partial buffer (if any) is still returned
// alongside the error, so a caller honoring -keep-failed has something
// diagnosable to write out (§4.8, §9's rationale for pad_loop_open).
func CompileSource(src []byte, opts Options) ([]byte, *ir.CompileError) {
	if err := ValidateTapeBlocks(opts.TapeBlocks); err != nil {
		return nil, err
	}

	toks := lex.Tokenize(src)
	ops, err := ir.Lower(toks)
	if err != nil {
		return nil, err
	}
	if opts.Optimize {
		ops = ir.Optimise(ops)
	}

	return Compile(ops, opts.Backend, opts.TapeBlocks)
}

// Compile streams an already-lowered (and optionally optimised) IR stream
// through backend and returns the complete ELF artifact.
func Compile(ops []ir.Op, backend codegen.Backend, tapeBlocks int) ([]byte, *ir.CompileError) {
	if err := ValidateTapeBlocks(tapeBlocks); err != nil {
		return nil, err
	}

	buf := buffer.New()
	if _, err := reserve(buf, elf.HeadersSize); err != nil {
		return buf.Bytes(), err
	}

	if err := backend.SetReg(buf, codegen.RegBFPtr, TapeVAddr); err != nil {
		return buf.Bytes(), err
	}

	stack := newLoopStack()
	syscalls := backend.Syscalls()

	for i, op := range ops {
		pos := opPosition(op)
		var emitErr *ir.CompileError

		switch op.Kind {
		case ir.OpShift:
			emitErr = emitRegDelta(buf, backend, codegen.RegBFPtr, int64(op.Arg))
		case ir.OpAdd:
			emitErr = emitByteDelta(buf, backend, op.Arg)
		case ir.OpZero:
			emitErr = backend.ZeroByte(buf)
		case ir.OpIn:
			emitErr = emitIO(buf, backend, syscalls.Read, 0)
		case ir.OpOut:
			emitErr = emitIO(buf, backend, syscalls.Write, 1)
		case ir.OpJz:
			offset := buf.Len()
			if pushErr := stack.push(loopFrame{offset: offset, line: pos.line, column: pos.column}); pushErr != nil {
				return buf.Bytes(), pushErr
			}
			emitErr = backend.PadLoopOpen(buf)
		case ir.OpJnz:
			frame, ok := stack.pop()
			if !ok {
				return buf.Bytes(), ir.NewError(ir.ErrUnmatchedClose, "unmatched ']'").WithPosition(pos.line, pos.column)
			}
			distance := int64(buf.Len() - frame.offset)
			if emitErr = backend.JumpOpen(buf, frame.offset, distance); emitErr != nil {
				break
			}
			emitErr = backend.JumpClose(buf, distance)
		default:
			emitErr = ir.NewError(ir.ErrInternal, "driver: unhandled op kind %v at index %d", op.Kind, i)
		}

		if emitErr != nil {
			return buf.Bytes(), emitErr
		}
	}

	if !stack.empty() {
		frame, _ := stack.pop()
		return buf.Bytes(), ir.NewError(ir.ErrUnmatchedOpen, "unmatched '['").WithPosition(frame.line, frame.column)
	}

	if err := emitExit(buf, backend, syscalls.Exit); err != nil {
		return buf.Bytes(), err
	}

	artifact := elf.Build(elf.Config{
		Endianness: dataEncoding(backend.DataEncoding()),
		Machine:    backend.ELFMachine(),
		Flags:      backend.ELFFlags(),
		TapeBlocks: tapeBlocks,
		Code:       buf.Bytes(),
	})
	return artifact, nil
}

func reserve(buf *buffer.Buffer, n int) (int, *ir.CompileError) {
	offset, err := buf.Reserve(n)
	if err != nil {
		return 0, ir.NewError(ir.ErrBufferTooLarge, "%v", err)
	}
	return offset, nil
}

func dataEncoding(d codegen.DataEncoding) elf.Endianness {
	if d == codegen.DataMSB {
		return elf.BigEndian
	}
	return elf.LittleEndian
}

type srcPos struct {
	line, column int
}

func opPosition(op ir.Op) srcPos {
	if op.Pos == nil {
		return srcPos{}
	}
	return srcPos{line: op.Pos.Line, column: op.Pos.Column}
}

// emitRegDelta emits r += delta, preferring inc_reg/dec_reg for the ±1
// case a tight brainfuck loop overwhelmingly produces.
func emitRegDelta(buf *buffer.Buffer, backend codegen.Backend, r codegen.Reg, delta int64) *ir.CompileError {
	switch {
	case delta == 0:
		return nil
	case delta == 1:
		return backend.IncReg(buf, r)
	case delta == -1:
		return backend.DecReg(buf, r)
	case delta > 0:
		return backend.AddReg(buf, r, delta)
	default:
		return backend.SubReg(buf, r, -delta)
	}
}

// emitByteDelta emits *bf_ptr += delta, wrapping delta into the cell's
// unsigned mod-256 range first (per §4.5/§9's net-zero-elision resolution,
// an exact multiple of 256 is a true no-op, not a 256-count add). It then
// prefers whichever of AddByte/SubByte yields the smaller magnitude
// immediate.
func emitByteDelta(buf *buffer.Buffer, backend codegen.Backend, delta int) *ir.CompileError {
	mod := ((delta % 256) + 256) % 256
	switch {
	case mod == 0:
		return nil
	case mod == 1:
		return backend.IncByte(buf)
	case mod == 255:
		return backend.DecByte(buf)
	case mod <= 128:
		return backend.AddByte(buf, uint8(mod))
	default:
		return backend.SubByte(buf, uint8(256-mod))
	}
}

// emitIO emits the five-instruction syscall sequence §4.6 defines for `.`
// and `,`: syscall number, fd, buffer pointer (always bf_ptr, one byte),
// count (always 1), then the trap itself.
func emitIO(buf *buffer.Buffer, backend codegen.Backend, syscallNum uint64, fd uint64) *ir.CompileError {
	if err := backend.SetReg(buf, codegen.RegSyscallNum, syscallNum); err != nil {
		return err
	}
	if err := backend.SetReg(buf, codegen.RegArg1, fd); err != nil {
		return err
	}
	if err := backend.RegCopy(buf, codegen.RegArg2, codegen.RegBFPtr); err != nil {
		return err
	}
	if err := backend.SetReg(buf, codegen.RegArg3, 1); err != nil {
		return err
	}
	return backend.Syscall(buf)
}

func emitExit(buf *buffer.Buffer, backend codegen.Backend, exitNum uint64) *ir.CompileError {
	if err := backend.SetReg(buf, codegen.RegSyscallNum, exitNum); err != nil {
		return err
	}
	if err := backend.SetReg(buf, codegen.RegArg1, 0); err != nil {
		return err
	}
	return backend.Syscall(buf)
}
