package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/jedib0t/go-pretty/v6/table"

	"bumbam/pkg/asm"
	"bumbam/pkg/store"
	"bumbam/pkg/utils"
	"bumbam/pkg/vm"
)

const helpText = `Commands:
  .quit                 leave the shell
  .history              list the lines entered so far
  .program              list the loaded program
  .registers            show registers and flags
  .symbols              show labels from the last assembled input
  .load_file <path>     append a source file or image to the program
  .clear_program        remove the program and reset the machine
  .run                  execute from the start of the program
  .step                 execute one instruction
  .hex <bytes>          append raw hex bytes (e.g. 01 00 03 E8) and execute them
  .dump                 dump raw machine state
  .save <name>          store the program in the image library
  .open <name>          replace the program with an image from the library
  .snapshot <path>      write machine state to a file
  .restore <path>       read machine state from a file
  .help                 show this text
Any other line is assembled, appended to the program and executed.
`

var dumper = spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}

// Shell is the interactive front end. It holds one machine for the whole
// session; each input line either runs a command or appends code.
type Shell struct {
	m       *vm.Machine
	out     io.Writer
	lib     *store.Store
	history []string
	symbols *asm.SymbolTable
}

// NewShell creates a shell writing to out. lib may be nil, which disables
// the .save and .open commands.
func NewShell(out io.Writer, lib *store.Store, maxSteps uint64) *Shell {
	m := vm.New()
	m.StepLimit = maxSteps
	return &Shell{m: m, out: out, lib: lib, symbols: asm.NewSymbolTable()}
}

// Machine exposes the session machine.
func (s *Shell) Machine() *vm.Machine {
	return s.m
}

// Execute handles one line of input and reports whether the shell should
// exit.
func (s *Shell) Execute(line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	defer func() { s.history = append(s.history, line) }()

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case ".quit":
		fmt.Fprintln(s.out, "Bye!")
		return true
	case ".history":
		for _, h := range s.history {
			fmt.Fprintln(s.out, h)
		}
	case ".program":
		fmt.Fprintln(s.out, "Listing instructions currently in the program:")
		fmt.Fprint(s.out, asm.Disassemble(s.m.Code()))
		fmt.Fprintln(s.out, "End of program listing")
	case ".registers":
		fmt.Fprintln(s.out, registerTable(s.m))
	case ".symbols":
		fmt.Fprintln(s.out, symbolTable(s.symbols))
	case ".load_file":
		s.report(s.loadFile(arg))
	case ".clear_program":
		s.m.Reset()
		s.symbols = asm.NewSymbolTable()
		fmt.Fprintln(s.out, "Program cleared.")
	case ".run":
		if err := s.m.Seek(0); err != nil {
			s.report(err)
			break
		}
		s.report(s.m.Continue())
		fmt.Fprintln(s.out, stateLine(s.m))
	case ".step":
		s.report(s.m.Step())
		fmt.Fprintln(s.out, stateLine(s.m))
	case ".hex":
		b, err := parseHex(arg)
		if err != nil {
			s.report(err)
			break
		}
		s.report(s.appendAndStep(b))
	case ".dump":
		dumper.Fdump(s.out, s.m)
	case ".save":
		s.report(s.save(arg))
	case ".open":
		s.report(s.open(arg))
	case ".snapshot":
		if arg == "" {
			s.report(errors.New("usage: .snapshot <path>"))
			break
		}
		s.report(s.m.SnapshotToFile(arg))
	case ".restore":
		if arg == "" {
			s.report(errors.New("usage: .restore <path>"))
			break
		}
		s.report(s.m.RestoreFromFile(arg))
	case ".help":
		fmt.Fprint(s.out, helpText)
	default:
		if strings.HasPrefix(cmd, ".") && !isDirective(cmd) {
			fmt.Fprintf(s.out, "unknown command %s, type .help for a list\n", cmd)
			break
		}
		a := asm.NewAssembler()
		code, _, err := a.AssembleCodeAt(line, uint32(len(s.m.Code())))
		if err != nil {
			fmt.Fprintf(s.out, "unable to parse input: %v\n", err)
			break
		}
		s.symbols = a.Symbols()
		s.report(s.appendAndStep(code))
	}
	return false
}

func isDirective(word string) bool {
	switch strings.ToLower(word) {
	case ".code", ".data", ".asciiz":
		return true
	}
	return false
}

// History returns the lines handled so far.
func (s *Shell) History() []string {
	return append([]string(nil), s.history...)
}

func (s *Shell) report(err error) {
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
}

// appendAndStep loads code after the current program and executes its
// first record.
func (s *Shell) appendAndStep(code []byte) error {
	start := len(s.m.Code())
	s.m.Load(code)
	if err := s.m.Seek(start); err != nil {
		return err
	}
	return s.m.Step()
}

func (s *Shell) loadFile(path string) error {
	if path == "" {
		return errors.New("usage: .load_file <path>")
	}
	fullPath, _, err := utils.GetPathInfo(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return err
	}

	base := len(s.m.Code())
	code, err := vm.CodeSection(data)
	if err == nil {
		// Jump targets in an image are fixed to offsets counted from its
		// own first record.
		if base != 0 {
			return fmt.Errorf("%s is an image and the program is not empty, use .clear_program or .open", fullPath)
		}
	} else {
		a := asm.NewAssembler()
		if code, _, err = a.AssembleCodeAt(string(data), uint32(base)); err != nil {
			return err
		}
		s.symbols = a.Symbols()
	}
	s.m.Load(code)
	fmt.Fprintf(s.out, "loaded %d bytes from %s\n", len(code), fullPath)
	return nil
}

func (s *Shell) save(name string) error {
	if s.lib == nil {
		return errors.New("no image library open")
	}
	meta, err := s.lib.Put(name, vm.NewImage(s.m.Code()))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "saved %s (%d bytes, %s)\n", meta.Name, meta.Size, meta.DigestString())
	return nil
}

func (s *Shell) open(name string) error {
	if s.lib == nil {
		return errors.New("no image library open")
	}
	image, err := s.lib.Get(name)
	if err != nil {
		return err
	}
	code, err := vm.CodeSection(image)
	if err != nil {
		return err
	}
	s.m.Reset()
	s.m.Load(code)
	s.symbols = asm.NewSymbolTable()
	fmt.Fprintf(s.out, "opened %s (%d bytes of code)\n", name, len(code))
	return nil
}

// parseHex decodes space separated hex bytes without a 0x prefix.
func parseHex(s string) ([]byte, error) {
	var out []byte
	for _, field := range strings.Fields(s) {
		b, err := strconv.ParseUint(field, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q", field)
		}
		out = append(out, byte(b))
	}
	if len(out) == 0 {
		return nil, errors.New("usage: .hex <bytes>")
	}
	return out, nil
}

func stateLine(m *vm.Machine) string {
	return fmt.Sprintf("state=%s pc=%d steps=%d", m.State(), m.PC(), m.Steps())
}

func registerTable(m *vm.Machine) string {
	t := table.NewWriter()
	t.SetTitle("Registers")
	t.AppendHeader(table.Row{"", "+0", "+1", "+2", "+3", "+4", "+5", "+6", "+7"})
	regs := m.Registers()
	for row := 0; row < vm.NumRegisters/8; row++ {
		r := table.Row{fmt.Sprintf("$%d", row*8)}
		for col := 0; col < 8; col++ {
			r = append(r, regs[row*8+col])
		}
		t.AppendRow(r)
	}
	t.AppendFooter(table.Row{"pc", m.PC(), "rem", m.Remainder(), "eq", m.EqualFlag(), "heap", m.HeapLen(), m.State()})
	return t.Render()
}

func symbolTable(st *asm.SymbolTable) string {
	t := table.NewWriter()
	t.SetTitle("Symbols")
	t.AppendHeader(table.Row{"Name", "Offset", "Kind", "Line"})
	for _, sym := range st.Symbols() {
		t.AppendRow(table.Row{sym.Name, sym.Offset, sym.Kind, sym.Line})
	}
	return t.Render()
}
