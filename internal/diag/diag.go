// Package diag renders []*ir.CompileError for the two output modes
// spec.md's External Interfaces section defines: a human-readable
// "file:line:col: message" line per error, or a JSON array on stdout.
// The core (internal/ir, internal/driver) only ever constructs error
// records; every byte sent to a terminal or consumed by tooling flows
// through here.
package diag

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lcox74/bfaotc/internal/ir"
)

// WriteHuman writes one "file:line:col: message" line per error to w,
// falling back to CompileError.Error's bare "message" shape when no file
// or position is attached.
func WriteHuman(w io.Writer, errs []*ir.CompileError) error {
	for _, e := range errs {
		if _, err := fmt.Fprintln(w, e.Error()); err != nil {
			return err
		}
	}
	return nil
}

// record is the JSON wire shape of one error. Fields absent from the
// source CompileError are omitted rather than emitted as null/zero; a line
// or column of 0 is omitted the same way as an absent position.
type record struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line,omitempty"`
	Column      int    `json:"column,omitempty"`
	Instruction *byte  `json:"instruction,omitempty"`
}

func toRecord(e *ir.CompileError) record {
	r := record{ID: e.Kind.String(), Message: e.Message, File: e.File}
	if e.HasPosition {
		r.Line, r.Column = e.Line, e.Column
	}
	if e.HasInstruction {
		b := e.Instruction
		r.Instruction = &b
	}
	return r
}

// WriteJSON writes errs as a JSON array to w. encoding/json's string
// encoder already escapes control bytes as \uXXXX and substitutes U+FFFD
// for invalid UTF-8, which is the exact escaping rule spec.md requires, so
// no custom escaper sits between here and json.Marshal.
func WriteJSON(w io.Writer, errs []*ir.CompileError) error {
	records := make([]record, len(errs))
	for i, e := range errs {
		records[i] = toRecord(e)
	}
	enc := json.NewEncoder(w)
	return enc.Encode(records)
}

// MarshalJSON is WriteJSON's byte-slice-returning form, convenient for
// tests and for any caller that wants the rendered bytes rather than a
// stream.
func MarshalJSON(errs []*ir.CompileError) ([]byte, error) {
	records := make([]record, len(errs))
	for i, e := range errs {
		records[i] = toRecord(e)
	}
	return json.Marshal(records)
}
