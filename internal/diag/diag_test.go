package diag

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/lcox74/bfaotc/internal/ir"
)

func TestWriteHumanWithPosition(t *testing.T) {
	err := ir.NewError(ir.ErrUnmatchedOpen, "unmatched '['").WithFile("prog.bf").WithPosition(3, 7)
	var buf bytes.Buffer
	if writeErr := WriteHuman(&buf, []*ir.CompileError{err}); writeErr != nil {
		t.Fatalf("WriteHuman: %v", writeErr)
	}
	got := strings.TrimSpace(buf.String())
	want := "prog.bf:3:7: unmatched '['"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWriteHumanWithoutPosition(t *testing.T) {
	err := ir.NewError(ir.ErrTapeSizeZero, "tape-size must be at least 1 block")
	var buf bytes.Buffer
	if writeErr := WriteHuman(&buf, []*ir.CompileError{err}); writeErr != nil {
		t.Fatalf("WriteHuman: %v", writeErr)
	}
	got := strings.TrimSpace(buf.String())
	if got != "tape-size must be at least 1 block" {
		t.Fatalf("got %q", got)
	}
}

func TestMarshalJSONRoundTrip(t *testing.T) {
	instr := byte('Q')
	err := (&ir.CompileError{Kind: ir.ErrJumpTooLong, Message: "offset too far"}).
		WithFile("prog.bf").WithPosition(1, 1)
	err = err.WithInstruction(instr)

	out, marshalErr := MarshalJSON([]*ir.CompileError{err})
	if marshalErr != nil {
		t.Fatalf("MarshalJSON: %v", marshalErr)
	}

	var decoded []map[string]any
	if unmarshalErr := json.Unmarshal(out, &decoded); unmarshalErr != nil {
		t.Fatalf("json.Unmarshal: %v", unmarshalErr)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 record, got %d", len(decoded))
	}
	rec := decoded[0]
	if rec["id"] != "JumpTooLong" {
		t.Fatalf("id = %v, want JumpTooLong", rec["id"])
	}
	if rec["file"] != "prog.bf" {
		t.Fatalf("file = %v, want prog.bf", rec["file"])
	}
	if rec["instruction"].(float64) != float64('Q') {
		t.Fatalf("instruction = %v, want %d", rec["instruction"], 'Q')
	}
}

func TestMarshalJSONEscapesControlBytes(t *testing.T) {
	err := ir.NewError(ir.ErrInternal, "bad byte: \x01\x02")
	out, marshalErr := MarshalJSON([]*ir.CompileError{err})
	if marshalErr != nil {
		t.Fatalf("MarshalJSON: %v", marshalErr)
	}
	s := string(out)
	if strings.ContainsRune(s, rune(0x01)) || strings.ContainsRune(s, rune(0x02)) {
		t.Fatalf("raw control bytes leaked into JSON output: %s", out)
	}
	lower := strings.ToLower(s)
	if !strings.Contains(lower, "u0001") || !strings.Contains(lower, "u0002") {
		t.Fatalf("expected u00XX escapes in output: %s", out)
	}
}

func TestMarshalJSONReplacesInvalidUTF8(t *testing.T) {
	err := ir.NewError(ir.ErrInternal, "bad path: \xff\xfe")
	out, marshalErr := MarshalJSON([]*ir.CompileError{err})
	if marshalErr != nil {
		t.Fatalf("MarshalJSON: %v", marshalErr)
	}
	if !strings.Contains(string(out), "�") {
		t.Fatalf("expected U+FFFD replacement in output: %s", out)
	}
}
