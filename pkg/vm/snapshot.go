package vm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// snapshotState is the JSON-serializable control state of a Machine.
type snapshotState struct {
	Registers  [NumRegisters]int32 `json:"registers"`
	PC         int                 `json:"pc"`
	CodeStart  int                 `json:"code_start"`
	Remainder  int32               `json:"remainder"`
	EqualFlag  bool                `json:"equal_flag"`
	State      string              `json:"state"`
	Steps      uint64              `json:"steps"`
	StepLimit  uint64              `json:"step_limit"`
	FaultPC    int                 `json:"fault_pc,omitempty"`
	FaultByte  byte                `json:"fault_byte,omitempty"`
	FaultCause string              `json:"fault_cause,omitempty"`
}

const (
	entryState   = "machine_state.json"
	entryProgram = "program.bin"
	entryHeap    = "heap.bin"
)

// SnapshotToBytes serialises the complete machine state into an in-memory
// zip archive whose entries are zstd compressed.
func (m *Machine) SnapshotToBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())

	state := snapshotState{
		Registers: m.registers,
		PC:        m.pc,
		CodeStart: m.codeStart,
		Remainder: m.remainder,
		EqualFlag: m.equalFlag,
		State:     m.state.String(),
		Steps:     m.steps,
		StepLimit: m.StepLimit,
	}
	if f, ok := m.err.(*Fault); ok {
		state.FaultPC = f.PC
		state.FaultByte = f.Byte
		state.FaultCause = f.Err.Error()
	}

	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal machine_state: %w", err)
	}
	if err := writeZipEntry(zw, entryState, jsonData); err != nil {
		return nil, err
	}
	if err := writeZipEntry(zw, entryProgram, m.program); err != nil {
		return nil, err
	}
	if err := writeZipEntry(zw, entryHeap, m.heap); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// RestoreFromBytes applies an archive produced by SnapshotToBytes.
// Logger is left untouched.
func (m *Machine) RestoreFromBytes(data []byte) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	r.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	fileMap := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileMap[f.Name] = f
	}

	jsonData, err := readZipEntry(fileMap, entryState)
	if err != nil {
		return err
	}
	var state snapshotState
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return fmt.Errorf("unmarshal machine_state: %w", err)
	}
	st, err := ParseState(state.State)
	if err != nil {
		return err
	}
	program, err := readZipEntry(fileMap, entryProgram)
	if err != nil {
		return err
	}
	heap, err := readZipEntry(fileMap, entryHeap)
	if err != nil {
		return err
	}
	if state.CodeStart < 0 || state.CodeStart > len(program) {
		return fmt.Errorf("snapshot code start %d outside program of %d bytes", state.CodeStart, len(program))
	}
	// A pc past the end of code is a legal halted position; a negative one
	// is not reachable by execution.
	if len(heap) > MaxHeapBytes {
		return fmt.Errorf("snapshot heap of %d bytes: %w", len(heap), ErrInvalidAllocation)
	}
	if state.PC < 0 {
		return fmt.Errorf("snapshot pc %d: %w", state.PC, ErrInvalidJump)
	}

	m.registers = state.Registers
	m.pc = state.PC
	m.codeStart = state.CodeStart
	m.remainder = state.Remainder
	m.equalFlag = state.EqualFlag
	m.state = st
	m.steps = state.Steps
	m.StepLimit = state.StepLimit
	m.program = program
	m.heap = heap
	m.err = nil
	if state.FaultCause != "" {
		m.err = &Fault{PC: state.FaultPC, Byte: state.FaultByte, Err: causeFromText(state.FaultCause)}
	}
	return nil
}

// SnapshotToFile writes the snapshot archive to path.
func (m *Machine) SnapshotToFile(path string) error {
	data, err := m.SnapshotToBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RestoreFromFile reads a snapshot archive from path and restores it.
func (m *Machine) RestoreFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.RestoreFromBytes(data)
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zstd.ZipMethodWinZip})
	if err != nil {
		return fmt.Errorf("create zip entry %q: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, fmt.Errorf("zip entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %q: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
