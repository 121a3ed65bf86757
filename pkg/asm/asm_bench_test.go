package asm

import (
	"fmt"
	"strings"
	"testing"
)

// loopProgram counts $0 up to 1000.
const loopProgram = `
    load $1 #1000
    load $2 @loop
loop:
    inc $0
    eq $0 $1
    jneq $2
    hlt
`

// largeProgram builds n labelled records that each jump forward.
func largeProgram(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "l%d: load $%d @l%d\n", i, i%32, (i+1)%n)
	}
	sb.WriteString("hlt\n")
	return sb.String()
}

func BenchmarkAssemble_Small(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := Assemble(loopProgram); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssemble_Large(b *testing.B) {
	src := largeProgram(2000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := Assemble(src); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParse(b *testing.B) {
	src := largeProgram(2000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(src); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDisassemble(b *testing.B) {
	code, _, err := AssembleCode(largeProgram(2000))
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Disassemble(code)
	}
}
