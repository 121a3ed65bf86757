package asm

import "fmt"

// SyntaxError reports a line that does not match the source grammar.
// Col is 1-based; Remainder holds the unconsumed input from Col onward.
type SyntaxError struct {
	Line      int
	Col       int
	Remainder string
	Reason    string
}

func (e *SyntaxError) Error() string {
	if e.Remainder == "" {
		return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Col, e.Reason)
	}
	return fmt.Sprintf("syntax error at %d:%d: %s near %q", e.Line, e.Col, e.Reason, e.Remainder)
}

// UnresolvedSymbolError reports a label usage with no matching declaration.
type UnresolvedSymbolError struct {
	Name string
	Line int
}

func (e *UnresolvedSymbolError) Error() string {
	return fmt.Sprintf("undefined label '%s' on line %d", e.Name, e.Line)
}

// DuplicateSymbolError reports a label declared more than once.
type DuplicateSymbolError struct {
	Name      string
	Line      int
	FirstLine int
}

func (e *DuplicateSymbolError) Error() string {
	return fmt.Sprintf("duplicate label '%s' on line %d (first declared on line %d)", e.Name, e.Line, e.FirstLine)
}

// OperandError reports operands that cannot be encoded into a record.
type OperandError struct {
	Line   int
	Name   string
	Reason string
}

func (e *OperandError) Error() string {
	return fmt.Sprintf("%s on line %d: %s", e.Name, e.Line, e.Reason)
}
