package asm

// SymbolKind classifies a symbol. Labels are the only kind today.
type SymbolKind int

const (
	SymbolLabel SymbolKind = iota
)

func (k SymbolKind) String() string {
	if k == SymbolLabel {
		return "label"
	}
	return "unknown"
}

// Symbol binds a name to a byte offset from the start of the code section.
type Symbol struct {
	Name   string
	Offset uint32
	Kind   SymbolKind
	Line   int
}

// SymbolTable is an ordered name to offset mapping. It is filled during
// the first assembler pass and only read afterwards.
type SymbolTable struct {
	symbols []Symbol
	index   map[string]int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{index: make(map[string]int)}
}

// Add appends s. Redeclaring a name fails with *DuplicateSymbolError and
// leaves the first declaration in place.
func (t *SymbolTable) Add(s Symbol) error {
	if i, ok := t.index[s.Name]; ok {
		return &DuplicateSymbolError{Name: s.Name, Line: s.Line, FirstLine: t.symbols[i].Line}
	}
	t.index[s.Name] = len(t.symbols)
	t.symbols = append(t.symbols, s)
	return nil
}

// Lookup returns the offset bound to name.
func (t *SymbolTable) Lookup(name string) (uint32, bool) {
	s, ok := t.Symbol(name)
	return s.Offset, ok
}

func (t *SymbolTable) Symbol(name string) (Symbol, bool) {
	i, ok := t.index[name]
	if !ok {
		return Symbol{}, false
	}
	return t.symbols[i], true
}

// Symbols returns the symbols in declaration order.
func (t *SymbolTable) Symbols() []Symbol {
	return append([]Symbol(nil), t.symbols...)
}

func (t *SymbolTable) Len() int {
	return len(t.symbols)
}
