package main

import (
	"fmt"
	"io"
	"os"

	"bumbam/pkg/asm"
)

const testSource = `load $0 #100
load $1 #1
load $2 #0
test: inc $0
neq $0 $2
jmpe @test
hlt
`

func main() {
	src := testSource
	if len(os.Args) > 1 {
		data, err := os.ReadFile(os.Args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
	}
	if err := dump(os.Stdout, src); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dump prints every stage of assembly: the parsed records, the symbol
// table, the encoded records and a listing.
func dump(w io.Writer, src string) error {
	fmt.Fprintf(w, "Source:\n%s\n", src)

	prog, err := asm.Parse(src)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	fmt.Fprintf(w, "Records (%d)\n", len(prog))
	for _, in := range prog {
		fmt.Fprintf(w, "  %3d:", in.Line)
		for _, tok := range in.Tokens() {
			fmt.Fprintf(w, " %s<%s>", tok.Kind, tok)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	a := asm.NewAssembler()
	code, sourceMap, err := a.AssembleCode(src)
	if err != nil {
		return fmt.Errorf("assembly error: %w", err)
	}

	fmt.Fprintln(w, "Symbols")
	for _, sym := range a.Symbols().Symbols() {
		fmt.Fprintf(w, "  %-16s %-6s offset %4d  line %d\n", sym.Name, sym.Kind, sym.Offset, sym.Line)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Code")
	for off := 0; off+4 <= len(code); off += 4 {
		fmt.Fprintf(w, "  %04d  % x   ; line %d\n", off, code[off:off+4], sourceMap[uint32(off)])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Listing")
	fmt.Fprint(w, asm.Disassemble(code))
	return nil
}
