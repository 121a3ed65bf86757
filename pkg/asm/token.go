package asm

import (
	"fmt"

	"bumbam/pkg/vm"
)

// TokenKind tags the payload carried by a Token.
type TokenKind int

const (
	TokenOpcode TokenKind = iota
	TokenRegister
	TokenInteger
	TokenLabelDeclaration
	TokenLabelUsage
	TokenDirective
	TokenString
)

func (k TokenKind) String() string {
	switch k {
	case TokenOpcode:
		return "opcode"
	case TokenRegister:
		return "register"
	case TokenInteger:
		return "integer"
	case TokenLabelDeclaration:
		return "label declaration"
	case TokenLabelUsage:
		return "label usage"
	case TokenDirective:
		return "directive"
	case TokenString:
		return "string"
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is one lexed unit of source. Only the field matching Kind is
// meaningful: Op for opcodes, Reg for registers, Value for integers and
// Name for labels, directives and string literals.
type Token struct {
	Kind  TokenKind
	Op    vm.Opcode
	Reg   uint8
	Value int32
	Name  string
}

func (t Token) String() string {
	switch t.Kind {
	case TokenOpcode:
		return t.Op.Mnemonic()
	case TokenRegister:
		return fmt.Sprintf("$%d", t.Reg)
	case TokenInteger:
		return fmt.Sprintf("#%d", t.Value)
	case TokenLabelDeclaration:
		return t.Name + ":"
	case TokenLabelUsage:
		return "@" + t.Name
	case TokenDirective:
		return "." + t.Name
	case TokenString:
		return "'" + t.Name + "'"
	}
	return t.Kind.String()
}

// width is the number of record bytes an operand token occupies.
func (t Token) width() int {
	switch t.Kind {
	case TokenRegister:
		return 1
	case TokenInteger, TokenLabelUsage:
		return 2
	}
	return 0
}

// Instruction is one parsed source line. A record is either a directive
// (Directive != "") or an executable instruction; never both.
type Instruction struct {
	Line      int
	Label     string
	Directive string
	Opcode    vm.Opcode
	Mnemonic  string
	Operands  []Token
}

// IsDirective reports whether the record is an assembler directive.
func (in Instruction) IsDirective() bool {
	return in.Directive != ""
}

// Tokens returns the record as a flat token sequence in source order.
func (in Instruction) Tokens() []Token {
	var out []Token
	if in.Label != "" {
		out = append(out, Token{Kind: TokenLabelDeclaration, Name: in.Label})
	}
	if in.IsDirective() {
		out = append(out, Token{Kind: TokenDirective, Name: in.Directive})
	} else {
		out = append(out, Token{Kind: TokenOpcode, Op: in.Opcode})
	}
	return append(out, in.Operands...)
}
