// Package elf builds the minimal ELF64 executable this compiler emits: a
// file header, exactly two PT_LOAD program headers (no section headers),
// and the already-assembled code buffer. It is endianness-generic: callers
// pass the backend's DataEncoding and machine constant, and every field is
// serialized through pkg/binutil using that encoding.
package elf

import "github.com/lcox74/bfaotc/pkg/binutil"

// Class/identification constants (ELF64 only; this compiler never emits
// ELF32 per DESIGN.md's recorded Open Question resolution).
const (
	ELFMAG0       = 0x7f
	ELFMAG1       = 'E'
	ELFMAG2       = 'L'
	ELFMAG3       = 'F'
	ELFCLASS64    = 2
	ELFDATA2LSB   = 1
	ELFDATA2MSB   = 2
	EVCurrent     = 1
	ELFOSABINone  = 0
	ETExec        = 2
	PTNull        = 0
	PTLoad        = 1
	PFExecute     = 0x1
	PFWrite       = 0x2
	PFRead        = 0x4
	HeaderSize    = 64
	PhdrSize      = 56
	TapeVAddr     = 0x10000
	CodeVAddr     = 0x20000
	TapeBlockSize = 4096
	PhdrAlign     = 0x1000
	CodeAlign     = 1
)

// Endianness selects how multi-byte header fields are serialized.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

// Config describes the one ELF file this compiler ever produces: a
// read+write tape segment and a read+execute code segment that covers the
// whole file (headers included).
type Config struct {
	Endianness Endianness
	Machine    uint16
	Flags      uint32
	TapeBlocks int
	Code       []byte
}

func (e Endianness) data() byte {
	if e == BigEndian {
		return ELFDATA2MSB
	}
	return ELFDATA2LSB
}

func (e Endianness) put16(v uint16) []byte {
	dst := make([]byte, 2)
	if e == BigEndian {
		binutil.Serialize16BE(dst, v)
	} else {
		binutil.Serialize16LE(dst, v)
	}
	return dst
}
func (e Endianness) put32(v uint32) []byte {
	dst := make([]byte, 4)
	if e == BigEndian {
		binutil.Serialize32BE(dst, v)
	} else {
		binutil.Serialize32LE(dst, v)
	}
	return dst
}
func (e Endianness) put64(v uint64) []byte {
	dst := make([]byte, 8)
	if e == BigEndian {
		binutil.Serialize64BE(dst, v)
	} else {
		binutil.Serialize64LE(dst, v)
	}
	return dst
}

// HeadersSize is the fixed size of the ELF header plus its two program
// headers: 64 + 2*56 = 176 bytes, matching the space the driver reserves
// at the front of the code buffer before any instruction is emitted.
const HeadersSize = HeaderSize + 2*PhdrSize

// Build assembles the full ELF file: header, the tape and code program
// headers, followed verbatim by cfg.Code (which the driver has already
// built starting with HeadersSize bytes of reserved space at offset 0).
func Build(cfg Config) []byte {
	totalSize := uint64(len(cfg.Code))
	entry := uint64(CodeVAddr) + HeadersSize
	tapeMemSz := uint64(TapeBlockSize) * uint64(cfg.TapeBlocks)

	out := make([]byte, 0, len(cfg.Code))
	out = append(out, cfg.header(entry)...)
	out = append(out, cfg.phdr(PTLoad, PFRead|PFWrite, 0, 0, TapeVAddr, tapeMemSz, PhdrAlign)...)
	out = append(out, cfg.phdr(PTLoad, PFRead|PFExecute, 0, totalSize, CodeVAddr, totalSize, CodeAlign)...)
	out = append(out, cfg.Code[HeadersSize:]...)
	return out
}

func (cfg Config) header(entry uint64) []byte {
	e := cfg.Endianness
	ident := make([]byte, 16)
	ident[0], ident[1], ident[2], ident[3] = ELFMAG0, ELFMAG1, ELFMAG2, ELFMAG3
	ident[4] = ELFCLASS64
	ident[5] = e.data()
	ident[6] = EVCurrent
	ident[7] = ELFOSABINone

	out := append([]byte{}, ident...)
	out = append(out, e.put16(ETExec)...)
	out = append(out, e.put16(cfg.Machine)...)
	out = append(out, e.put32(EVCurrent)...)
	out = append(out, e.put64(entry)...)
	out = append(out, e.put64(HeaderSize)...) // e_phoff
	out = append(out, e.put64(0)...)          // e_shoff
	out = append(out, e.put32(cfg.Flags)...)
	out = append(out, e.put16(HeaderSize)...)
	out = append(out, e.put16(PhdrSize)...)
	out = append(out, e.put16(2)...) // e_phnum
	out = append(out, e.put16(0)...) // e_shentsize
	out = append(out, e.put16(0)...) // e_shnum
	out = append(out, e.put16(0)...) // e_shstrndx
	return out
}

func (cfg Config) phdr(typ, flags uint32, fileOff, fileSz, vaddr, memSz, align uint64) []byte {
	e := cfg.Endianness
	out := e.put32(typ)
	out = append(out, e.put32(flags)...)
	out = append(out, e.put64(fileOff)...)
	out = append(out, e.put64(vaddr)...) // p_vaddr
	out = append(out, e.put64(vaddr)...) // p_paddr
	out = append(out, e.put64(fileSz)...)
	out = append(out, e.put64(memSz)...)
	out = append(out, e.put64(align)...)
	return out
}
