//go:build !js

package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/tebeka/atexit"

	"bumbam/pkg/asm"
	"bumbam/pkg/store"
	"bumbam/pkg/utils"
	"bumbam/pkg/vm"
)

func main() {
	inPath := flag.String("in", "", "input assembly file path")
	outPath := flag.String("out", "", "output binary file path (default: input with .bin extension)")
	runProgram := flag.Bool("run", false, "run the generated binary file on the virtual machine")
	runBinPath := flag.String("run-bin", "", "run an existing binary file on the virtual machine")
	storePath := flag.String("store", "", "image library path (default: user config dir)")
	name := flag.String("name", "", "store the assembled image under this name, or run the named image with -run")
	maxSteps := flag.Uint64("max-steps", 1_000_000, "stop execution after this many instructions (0 = unlimited)")
	list := flag.Bool("list", false, "list the images in the library")
	verbose := flag.Bool("v", false, "trace every executed instruction")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = vm.LevelTrace
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *runProgram && *runBinPath != "" {
		fmt.Fprintln(os.Stderr, "use either -run or -run-bin, not both")
		atexit.Exit(2)
	}

	var lib *store.Store
	openStore := func() *store.Store {
		if lib != nil {
			return lib
		}
		path := *storePath
		if path == "" {
			path = utils.DefaultStorePath()
		}
		s, err := store.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open image library %q: %v\n", path, err)
			atexit.Exit(1)
		}
		atexit.Register(func() { s.Close() })
		lib = s
		return lib
	}

	if *list {
		if err := listImages(os.Stdout, openStore()); err != nil {
			fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
			atexit.Exit(1)
		}
	}

	var assembled []byte
	assembledOutput := ""
	if *inPath != "" {
		source, err := os.ReadFile(*inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read input file %q: %v\n", *inPath, err)
			atexit.Exit(1)
		}

		image, _, err := asm.Assemble(string(source))
		if err != nil {
			fmt.Fprintf(os.Stderr, "assembly failed: %v\n", err)
			atexit.Exit(1)
		}

		output := *outPath
		if output == "" {
			output = utils.DefaultOutputPath(*inPath)
		}

		if err := writeBinary(output, image); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write binary file %q: %v\n", output, err)
			atexit.Exit(1)
		}

		fmt.Printf("assembled %d bytes -> %s\n", len(image), output)
		assembled = image
		assembledOutput = output

		if *name != "" {
			meta, err := openStore().Put(*name, image)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to store image %q: %v\n", *name, err)
				atexit.Exit(1)
			}
			fmt.Printf("stored %s (%s)\n", meta.Name, meta.DigestString())
		}
	}

	if *inPath == "" && *runBinPath == "" && !*runProgram && !*list {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in to assemble, -run to run assembled output, -run-bin <file> to run an existing binary, or -list")
		flag.Usage()
		atexit.Exit(2)
	}

	var (
		image     []byte
		runTarget string
	)
	switch {
	case *runBinPath != "":
		b, err := readBinary(*runBinPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read binary file %q: %v\n", *runBinPath, err)
			atexit.Exit(1)
		}
		image, runTarget = b, *runBinPath
	case *runProgram && assembledOutput != "":
		image, runTarget = assembled, assembledOutput
	case *runProgram && *name != "":
		b, err := openStore().Get(*name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load image %q: %v\n", *name, err)
			atexit.Exit(1)
		}
		image, runTarget = b, *name
	case *runProgram:
		fmt.Fprintln(os.Stderr, "-run requires -in or -name, or use -run-bin <file>")
		atexit.Exit(2)
	default:
		atexit.Exit(0)
	}

	m, err := runImage(image, *maxSteps)
	fmt.Print(formatState(runTarget, m))
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed for %q: %v\n", runTarget, err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func writeBinary(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func readBinary(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// runImage executes image to a terminal state. The machine is returned
// even when execution fails so its state can be reported.
func runImage(image []byte, maxSteps uint64) (*vm.Machine, error) {
	m := vm.New()
	m.StepLimit = maxSteps
	m.Load(image)
	return m, m.Run()
}

func formatState(target string, m *vm.Machine) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run complete (%s): state=%s pc=%d steps=%d heap=%d rem=%d eq=%t\n",
		target, m.State(), m.PC(), m.Steps(), m.HeapLen(), m.Remainder(), m.EqualFlag())

	var regs []string
	for i, v := range m.Registers() {
		if v != 0 {
			regs = append(regs, fmt.Sprintf("$%d=%d", i, v))
		}
	}
	if len(regs) > 0 {
		fmt.Fprintf(&sb, "registers: %s\n", strings.Join(regs, " "))
	}
	return sb.String()
}

func listImages(w io.Writer, s *store.Store) error {
	images, err := s.List()
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Images (" + s.Path() + ")")
	t.AppendHeader(table.Row{"Name", "Size", "Modified", "Digest"})
	for _, m := range images {
		t.AppendRow(table.Row{m.Name, m.Size, m.Modified.Format("2006-01-02 15:04:05"), m.DigestString()})
	}
	t.Render()
	return nil
}
