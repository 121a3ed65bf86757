package asm

import (
	"strconv"
	"strings"
	"unicode"

	"bumbam/pkg/vm"
)

const (
	minInteger = -32768
	maxInteger = 65535
)

// lexer walks a single source line.
type lexer struct {
	src  []rune
	pos  int
	line int
}

func (l *lexer) eof() bool {
	return l.pos >= len(l.src)
}

func (l *lexer) ch() rune {
	return l.src[l.pos]
}

func (l *lexer) err(pos int, reason string) *SyntaxError {
	return &SyntaxError{
		Line:      l.line,
		Col:       pos + 1,
		Remainder: strings.TrimSpace(string(l.src[pos:])),
		Reason:    reason,
	}
}

func (l *lexer) skip(check func(r rune) bool) {
	for !l.eof() && check(l.ch()) {
		l.pos++
	}
}

func (l *lexer) find(check func(r rune) bool) string {
	start := l.pos
	l.skip(check)
	return string(l.src[start:l.pos])
}

// atEnd reports whether only whitespace or a comment remains.
func (l *lexer) atEnd() bool {
	l.skip(unicode.IsSpace)
	return l.eof() || l.ch() == ';'
}

// boundary reports whether the cursor sits between tokens.
func (l *lexer) boundary() bool {
	if l.eof() {
		return true
	}
	c := l.ch()
	return unicode.IsSpace(c) || c == ',' || c == ';'
}

func isIdent0(r rune) bool {
	return r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func isIdent(r rune) bool {
	return isIdent0(r) || isDigit(r)
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == ','
}

// ParseLine parses one line of source. Blank and comment-only lines yield
// (nil, nil).
func ParseLine(text string, line int) (*Instruction, error) {
	l := &lexer{src: []rune(strings.TrimRight(text, "\r")), line: line}
	if l.atEnd() {
		return nil, nil
	}

	in := &Instruction{Line: line}

	var word string
	wordPos := l.pos
	if isIdent0(l.ch()) {
		word = l.find(isIdent)
		end := l.pos
		l.skip(unicode.IsSpace)
		if !l.eof() && l.ch() == ':' {
			l.pos++
			in.Label = word
			word = ""
			if l.atEnd() {
				return nil, l.err(wordPos, "label must be followed by an instruction or directive")
			}
		} else {
			l.pos = end
		}
	}

	if word == "" {
		l.skip(unicode.IsSpace)
		wordPos = l.pos
		switch {
		case l.ch() == '.':
			l.pos++
			if l.eof() || !isIdent0(l.ch()) {
				return nil, l.err(wordPos, "expected directive name")
			}
			in.Directive = strings.ToLower(l.find(isIdent))
		case isIdent0(l.ch()):
			word = l.find(isIdent)
		default:
			return nil, l.err(wordPos, "expected mnemonic, directive or label")
		}
	}

	if word != "" {
		in.Mnemonic = word
		in.Opcode = vm.LookupMnemonic(word)
	}
	if !l.boundary() {
		return nil, l.err(l.pos, "unexpected character after "+strconv.Quote(string(l.src[wordPos:l.pos])))
	}

	for {
		l.skip(isSeparator)
		if l.eof() || l.ch() == ';' {
			break
		}
		if len(in.Operands) == 3 {
			return nil, l.err(l.pos, "too many operands")
		}
		tok, err := l.operand()
		if err != nil {
			return nil, err
		}
		in.Operands = append(in.Operands, tok)
	}
	return in, nil
}

func (l *lexer) operand() (Token, error) {
	start := l.pos
	c := l.ch()
	l.pos++

	switch c {
	case '$':
		digits := l.find(isDigit)
		if digits == "" || !l.boundary() {
			return Token{}, l.err(start, "malformed register")
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n >= vm.NumRegisters {
			return Token{}, l.err(start, "register out of range")
		}
		return Token{Kind: TokenRegister, Reg: uint8(n)}, nil

	case '#':
		neg := false
		if !l.eof() && l.ch() == '-' {
			neg = true
			l.pos++
		}
		digits := l.find(isDigit)
		if digits == "" || !l.boundary() {
			return Token{}, l.err(start, "malformed integer")
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if neg {
			n = -n
		}
		if err != nil || n < minInteger || n > maxInteger {
			return Token{}, l.err(start, "integer out of range")
		}
		return Token{Kind: TokenInteger, Value: int32(n)}, nil

	case '@':
		if l.eof() || !isIdent0(l.ch()) {
			return Token{}, l.err(start, "malformed label usage")
		}
		name := l.find(isIdent)
		if !l.boundary() {
			return Token{}, l.err(start, "malformed label usage")
		}
		return Token{Kind: TokenLabelUsage, Name: name}, nil

	case '\'':
		text := l.find(func(r rune) bool { return r != '\'' })
		if l.eof() {
			return Token{}, l.err(start, "unterminated string literal")
		}
		l.pos++
		if !l.boundary() {
			return Token{}, l.err(start, "unexpected character after string literal")
		}
		return Token{Kind: TokenString, Name: text}, nil
	}
	return Token{}, l.err(start, "unexpected character "+strconv.QuoteRune(c))
}

// Parse parses a whole program. It fails on the first line that does not
// match the grammar and never returns a partial program.
func Parse(src string) ([]Instruction, error) {
	var prog []Instruction
	for i, text := range strings.Split(src, "\n") {
		in, err := ParseLine(text, i+1)
		if err != nil {
			return nil, err
		}
		if in != nil {
			prog = append(prog, *in)
		}
	}
	if len(prog) == 0 {
		return nil, &SyntaxError{Line: 1, Col: 1, Reason: "program contains no instructions"}
	}
	return prog, nil
}
