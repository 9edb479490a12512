package ir

import "github.com/lcox74/bfaotc/internal/lex"

// lowerRule describes how to lower a token kind to an IR op.
type lowerRule struct {
	op   OpKind
	sign int  // multiplier for foldable ops (+1 or -1)
	fold bool // true if consecutive tokens of this kind should be folded
}

var tokToRule = [...]lowerRule{
	lex.TokShiftRight: {OpShift, +1, true},
	lex.TokShiftLeft:  {OpShift, -1, true},
	lex.TokAdd:        {OpAdd, +1, true},
	lex.TokSub:        {OpAdd, -1, true},
	lex.TokOut:        {OpOut, 0, false},
	lex.TokIn:         {OpIn, 0, false},
}

// Lower converts a token stream into IR operations, folding consecutive
// arithmetic/motion tokens as it goes (this is the fold §4.5 describes as
// "run-length fold", performed once up front rather than as a separate
// optimizer pass; Optimise below performs the remaining, structural
// rewrites on top of this already-folded stream).
func Lower(toks []lex.Token) ([]Op, *CompileError) {
	ops := make([]Op, 0, len(toks))
	loopStack := make([]int, 0, 8)

	for i := 0; i < len(toks); {
		tok := toks[i]
		pos := &lex.Position{Offset: tok.Pos.Offset, Line: tok.Pos.Line, Column: tok.Pos.Column}

		switch tok.Kind {
		case lex.TokEOF:
			if len(loopStack) > 0 {
				open := toks[loopStack[0]].Pos
				return nil, NewError(ErrUnmatchedOpen, "unmatched '['").WithPosition(open.Line, open.Column)
			}
			return ops, nil

		case lex.TokLBracket:
			loopStack = append(loopStack, len(ops))
			ops = append(ops, Op{Kind: OpJz, Pos: pos})
			i++

		case lex.TokRBracket:
			if len(loopStack) == 0 {
				return nil, NewError(ErrUnmatchedClose, "unmatched ']'").WithPosition(tok.Pos.Line, tok.Pos.Column)
			}
			start := loopStack[len(loopStack)-1]
			loopStack = loopStack[:len(loopStack)-1]
			ops = append(ops, Op{Kind: OpJnz, Arg: start, Pos: pos})
			ops[start].Arg = len(ops)
			i++

		case lex.TokAdd, lex.TokSub, lex.TokShiftLeft, lex.TokShiftRight, lex.TokIn, lex.TokOut:
			rule := tokToRule[tok.Kind]
			if rule.fold {
				count := lex.FoldToken(toks, i, tok.Kind)
				ops = append(ops, Op{Kind: rule.op, Arg: rule.sign * count, Pos: pos})
				i += count
				continue
			}
			ops = append(ops, Op{Kind: rule.op, Pos: pos})
			i++

		default:
			return nil, NewError(ErrInternal, "unexpected token kind %v", tok.Kind).WithPosition(tok.Pos.Line, tok.Pos.Column)
		}
	}
	return ops, nil
}
