// Package ir defines the backend-agnostic intermediate representation the
// optimizer produces and the compile driver streams into a codegen.Backend,
// along with the lowering pass from lex.Token to Op and the closed error
// record the core emits on bad input.
//
// IR instructions:
//
//	SHIFT k    ; move data pointer
//	ADD k      ; add to current cell (wraps mod 256)
//	ZERO       ; set current cell to 0
//	IN         ; read byte into cell
//	OUT        ; write byte from cell
//	JZ target  ; conditional jump if cell == 0
//	JNZ target ; conditional jump if cell != 0
package ir

import (
	"fmt"
	"strings"

	"github.com/lcox74/bfaotc/internal/lex"
)

// OpKind identifies the kind of IR operation.
type OpKind int

const (
	OpShift OpKind = iota // SHIFT k
	OpAdd                 // ADD k
	OpZero                // ZERO
	OpIn                  // IN
	OpOut                 // OUT
	OpJz                  // JZ target
	OpJnz                 // JNZ target
)

var opNames = [...]string{
	OpShift: "SHIFT",
	OpAdd:   "ADD",
	OpZero:  "ZERO",
	OpIn:    "IN",
	OpOut:   "OUT",
	OpJz:    "JZ",
	OpJnz:   "JNZ",
}

// String returns the op kind's debug name.
func (k OpKind) String() string { return opNames[k] }

// Op is one intermediate instruction.
type Op struct {
	Kind OpKind
	Arg  int           // used by SHIFT/ADD/JZ/JNZ
	Pos  *lex.Position // optional source metadata, may be relaxed by folding
}

func Shift(k int) Op    { return Op{Kind: OpShift, Arg: k} }
func Add(k int) Op      { return Op{Kind: OpAdd, Arg: k} }
func Zero() Op          { return Op{Kind: OpZero} }
func In() Op            { return Op{Kind: OpIn} }
func Out() Op           { return Op{Kind: OpOut} }
func Jz(target int) Op  { return Op{Kind: OpJz, Arg: target} }
func Jnz(target int) Op { return Op{Kind: OpJnz, Arg: target} }

// Dump renders the IR stream in a human-readable listing, useful for
// debugging and for test failure messages and comparisons.
func Dump(ops []Op) string {
	var out strings.Builder
	for i, op := range ops {
		switch op.Kind {
		case OpShift:
			fmt.Fprintf(&out, "%03d: SHIFT %+d\n", i, op.Arg)
		case OpAdd:
			fmt.Fprintf(&out, "%03d: ADD   %+d\n", i, op.Arg)
		case OpZero:
			fmt.Fprintf(&out, "%03d: ZERO\n", i)
		case OpIn:
			fmt.Fprintf(&out, "%03d: IN\n", i)
		case OpOut:
			fmt.Fprintf(&out, "%03d: OUT\n", i)
		case OpJz:
			fmt.Fprintf(&out, "%03d: JZ    %d\n", i, op.Arg)
		case OpJnz:
			fmt.Fprintf(&out, "%03d: JNZ   %d\n", i, op.Arg)
		}
	}
	return out.String()
}
