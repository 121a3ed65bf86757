package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"

	"bumbam/pkg/asm"
	"bumbam/pkg/utils"
	"bumbam/pkg/vm"
)

const (
	screenWidth  = 640
	screenHeight = 480
	lineHeight   = 16
	// stepsPerFrame caps how much a running program advances per Update.
	stepsPerFrame = 10000
)

var face = text.NewGoXFace(basicfont.Face7x13)

// Game steps a single program and renders its state every frame.
type Game struct {
	m         *vm.Machine
	code      []byte
	source    []string
	sourceMap map[uint32]int
	maxSteps  uint64
	running   bool
}

func newGame(src string, maxSteps uint64) (*Game, error) {
	image, sourceMap, err := asm.Assemble(src)
	if err != nil {
		return nil, err
	}
	code, err := vm.CodeSection(image)
	if err != nil {
		return nil, err
	}
	g := &Game{
		code:      code,
		source:    strings.Split(src, "\n"),
		sourceMap: sourceMap,
		maxSteps:  maxSteps,
	}
	g.reset()
	return g, nil
}

func (g *Game) reset() {
	g.m = vm.New()
	g.m.StepLimit = g.maxSteps
	g.m.Load(g.code)
	g.running = false
}

// advance executes up to n instructions, stopping at a terminal state.
func (g *Game) advance(n int) {
	for i := 0; i < n && !g.m.State().Terminal(); i++ {
		if err := g.m.Step(); err != nil {
			break
		}
	}
	if g.m.State().Terminal() {
		g.running = false
	}
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		g.reset()
		return nil
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.running = !g.running
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.running = false
		g.advance(1)
	}
	if g.running {
		g.advance(stepsPerFrame)
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	for i, line := range statusLines(g.m, g.source, g.sourceMap) {
		op := &text.DrawOptions{}
		op.GeoM.Translate(8, float64(8+i*lineHeight))
		text.Draw(screen, line, face, op)
	}
	ebitenutil.DebugPrintAt(screen, "SPACE step   R run/pause   BACKSPACE reset", 8, screenHeight-20)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

// statusLines renders the machine state: flags, the register file in four
// rows and the source line of the next record.
func statusLines(m *vm.Machine, source []string, sourceMap map[uint32]int) []string {
	lines := []string{
		fmt.Sprintf("state %-14s pc %-6d steps %d", m.State(), m.PC(), m.Steps()),
		fmt.Sprintf("eq %-5t rem %-8d heap %d bytes", m.EqualFlag(), m.Remainder(), m.HeapLen()),
		"",
	}
	regs := m.Registers()
	for row := 0; row < vm.NumRegisters/8; row++ {
		var sb strings.Builder
		for col := 0; col < 8; col++ {
			i := row*8 + col
			fmt.Fprintf(&sb, "$%-2d %-11d", i, regs[i])
		}
		lines = append(lines, strings.TrimRight(sb.String(), " "))
	}
	lines = append(lines, "")

	next := "(end of program)"
	if ln, ok := sourceMap[uint32(m.PC())]; ok && ln >= 1 && ln <= len(source) {
		next = fmt.Sprintf("%4d: %s", ln, strings.TrimSpace(source[ln-1]))
	}
	lines = append(lines, "next "+next)
	if err := m.Err(); err != nil {
		lines = append(lines, "error: "+err.Error())
	}
	return lines
}

func main() {
	maxSteps := flag.Uint64("max-steps", 1_000_000, "stop execution after this many instructions (0 = unlimited)")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatalf("usage: desktop [-max-steps n] <file.asm>")
	}

	src, fullPath, err := utils.ReadSource(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to read source file: %v", err)
	}
	game, err := newGame(src, *maxSteps)
	if err != nil {
		log.Fatalf("Assembly failed: %v", err)
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("bumbam stepper - " + fullPath)

	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
