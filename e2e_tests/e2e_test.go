package main

import (
	"io"
	"log/slog"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"bumbam/pkg/asm"
	"bumbam/pkg/store"
	"bumbam/pkg/vm"
)

const countProgram = "load $0 #100\nload $1 #1\nload $2 #0\ntest: inc $0\nneq $0 $2\njmpe @test\nhlt"

func newMachine(image []byte) *vm.Machine {
	m := vm.New()
	m.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	m.StepLimit = 100000
	m.Load(image)
	return m
}

func assembleAndRun(src string) *vm.Machine {
	image, _, err := asm.Assemble(src)
	Expect(err).NotTo(HaveOccurred())
	m := newMachine(image)
	_ = m.Run()
	return m
}

var _ = Describe("Assembler and VM", func() {
	It("should assemble the counting program into 28 bytes of code", func() {
		image, _, err := asm.Assemble(countProgram)
		Expect(err).NotTo(HaveOccurred())
		Expect(image).To(HaveLen(vm.HeaderLength + 28))

		m := newMachine(image)
		Expect(m.Run()).To(Succeed())
		Expect(m.Register(0)).To(BeNumerically(">=", 1))
		Expect(m.State()).To(Equal(vm.Halted))

		By("running off the end of the code rather than reaching hlt")
		Expect(m.PC()).To(BeNumerically(">", 28))
		Expect(m.Register(0)).To(Equal(int32(101)))
		Expect(m.Steps()).To(Equal(uint64(6)))
	})

	It("should land a jump exactly on a label", func() {
		src := "load $0 @here\njmp $0\ninc $1\ninc $1\nhere: inc $2\nhlt"
		a := asm.NewAssembler()
		code, _, err := a.AssembleCode(src)
		Expect(err).NotTo(HaveOccurred())

		off, ok := a.Symbols().Lookup("here")
		Expect(ok).To(BeTrue())

		m := newMachine(code)
		Expect(m.Step()).To(Succeed())
		Expect(m.Step()).To(Succeed())
		Expect(m.PC()).To(Equal(int(off)))

		Expect(m.Continue()).To(Succeed())
		Expect(m.Register(1)).To(BeZero())
		Expect(m.Register(2)).To(Equal(int32(1)))
	})

	It("should resolve forward and backward references", func() {
		m := assembleAndRun(`
			load $5 @done
			load $6 #3
			load $7 @loop
		loop:
			dec $6
			load $8 #0
			gt $6 $8
			jeq $7
			jmp $5
			inc $9
		done: hlt
		`)
		Expect(m.Register(6)).To(BeZero())
		Expect(m.Register(9)).To(BeZero())
		Expect(m.State()).To(Equal(vm.Halted))
	})

	It("should zero-extend LOAD immediates", func() {
		m := assembleAndRun("load $0 #500\nload $1 #65535")
		Expect(m.Register(0)).To(Equal(int32(500)))
		Expect(m.Register(1)).To(Equal(int32(65535)))
	})

	It("should resize the heap with ALOC", func() {
		m := assembleAndRun("load $0 #1024\naloc $0\nhlt")
		Expect(m.HeapLen()).To(Equal(1024))
		Expect(m.Heap()).To(Equal(make([]byte, 1024)))
	})

	It("should set quotient and remainder on DIV", func() {
		m := assembleAndRun("load $0 #24\nload $1 #5\ndiv $0 $1 $2\nhlt")
		Expect(m.Register(2)).To(Equal(int32(4)))
		Expect(m.Remainder()).To(Equal(int32(4)))
	})

	It("should refuse an image with a corrupted header", func() {
		image, _, err := asm.Assemble("load $0 #9\nhlt")
		Expect(err).NotTo(HaveOccurred())
		image[0]++

		m := newMachine(image)
		err = m.Run()
		var hdr *vm.InvalidHeaderError
		Expect(err).To(BeAssignableToTypeOf(hdr))
		Expect(m.Steps()).To(BeZero())
		Expect(m.Register(0)).To(BeZero())
	})

	It("should halt after an unrecognized opcode with registers intact", func() {
		image, _, err := asm.Assemble("load $0 #7\nload $1 #8\nfrob\ninc $0")
		Expect(err).NotTo(HaveOccurred())

		m := newMachine(image)
		err = m.Run()
		Expect(err).To(MatchError(vm.ErrIllegalOpcode))
		Expect(m.State()).To(Equal(vm.IllegalOpcode))
		Expect(m.PC()).To(Equal(9))
		Expect(m.Register(0)).To(Equal(int32(7)))
		Expect(m.Register(1)).To(Equal(int32(8)))
	})

	It("should fault on division by zero and overflow", func() {
		m := assembleAndRun("load $0 #1\ndiv $0 $1 $2")
		Expect(m.State()).To(Equal(vm.Faulted))
		Expect(m.Err()).To(MatchError(vm.ErrDivisionByZero))

		m = assembleAndRun("load $0 #65535\nmul $0 $0 $1\nmul $1 $1 $1")
		Expect(m.State()).To(Equal(vm.Faulted))
		Expect(m.Err()).To(MatchError(vm.ErrOverflow))
	})

	It("should stop runaway programs at the step limit", func() {
		m := assembleAndRun("top: load $0 @top\njmp $0")
		Expect(m.Err()).To(MatchError(vm.ErrStepLimitExceeded))
		Expect(m.Steps()).To(Equal(uint64(100000)))
	})

	It("should abort assembly on unresolved labels", func() {
		image, _, err := asm.Assemble("jmpe @nowhere")
		var ue *asm.UnresolvedSymbolError
		Expect(err).To(BeAssignableToTypeOf(ue))
		Expect(image).To(BeNil())
	})

	DescribeTable("should keep instruction meaning through disassembly",
		func(src string) {
			code, _, err := asm.AssembleCode(src)
			Expect(err).NotTo(HaveOccurred())
			again, _, err := asm.AssembleCode(asm.Disassemble(code))
			Expect(err).NotTo(HaveOccurred())

			prelude := "load $0 #40\nload $1 #6\nload $3 #12\n"
			pre, _, err := asm.AssembleCode(prelude)
			Expect(err).NotTo(HaveOccurred())

			m1 := newMachine(vm.NewImage(append(append([]byte{}, pre...), code...)))
			m2 := newMachine(vm.NewImage(append(append([]byte{}, pre...), again...)))
			_ = m1.Run()
			_ = m2.Run()
			Expect(m2.Registers()).To(Equal(m1.Registers()))
			Expect(m2.State()).To(Equal(m1.State()))
			Expect(m2.PC()).To(Equal(m1.PC()))
			Expect(m2.EqualFlag()).To(Equal(m1.EqualFlag()))
			Expect(m2.Remainder()).To(Equal(m1.Remainder()))
			Expect(m2.HeapLen()).To(Equal(m1.HeapLen()))
		},
		Entry("hlt", "hlt"),
		Entry("load", "load $4 #1234"),
		Entry("add", "add $0 $1 $2"),
		Entry("sub", "sub $0 $1 $2"),
		Entry("mul", "mul $0 $1 $2"),
		Entry("div", "div $0 $1 $2"),
		Entry("jmp", "jmp $3"),
		Entry("jmpf", "jmpf $1"),
		Entry("jmpb", "jmpb $3"),
		Entry("eq", "eq $0 $1"),
		Entry("neq", "neq $0 $1"),
		Entry("gt", "gt $0 $1"),
		Entry("lt", "lt $0 $1"),
		Entry("gtq", "gtq $0 $1"),
		Entry("ltq", "ltq $0 $1"),
		Entry("jeq", "eq $0 $0\njeq $3"),
		Entry("jneq", "jneq $3"),
		Entry("aloc", "aloc $1"),
		Entry("inc", "inc $0"),
		Entry("dec", "dec $1"),
		Entry("label usage", "x: load $2 @x"),
		Entry("directive", ".asciiz 'data'"),
	)
})

var _ = Describe("Image library and snapshots", func() {
	var lib *store.Store

	BeforeEach(func() {
		var err error
		lib, err = store.Open(filepath.Join(GinkgoT().TempDir(), "images.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(lib.Close()).To(Succeed())
	})

	It("should run an image loaded back from the library", func() {
		image, _, err := asm.Assemble(countProgram)
		Expect(err).NotTo(HaveOccurred())
		meta, err := lib.Put("count", image)
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.DigestString()).To(Equal(store.Digest(image)))

		loaded, err := lib.Get("count")
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(image))

		m := newMachine(loaded)
		Expect(m.Run()).To(Succeed())
		Expect(m.Register(0)).To(Equal(int32(101)))
	})

	It("should resume a snapshotted machine", func() {
		image, _, err := asm.Assemble("load $0 #3\ntop: dec $0\nload $1 #0\nneq $0 $1\nload $2 @top\njeq $2\nhlt")
		Expect(err).NotTo(HaveOccurred())

		m := newMachine(image)
		Expect(vm.VerifyHeader(image)).To(Succeed())
		Expect(m.Run()).To(Succeed())
		want := m.Registers()

		partial := newMachine(image)
		code, err := vm.CodeSection(image)
		Expect(err).NotTo(HaveOccurred())
		partial.Reset()
		partial.Load(code)
		for i := 0; i < 4; i++ {
			Expect(partial.Step()).To(Succeed())
		}
		data, err := partial.SnapshotToBytes()
		Expect(err).NotTo(HaveOccurred())

		resumed := vm.New()
		resumed.Logger = partial.Logger
		Expect(resumed.RestoreFromBytes(data)).To(Succeed())
		Expect(resumed.Continue()).To(Succeed())
		Expect(resumed.Registers()).To(Equal(want))
		Expect(resumed.State()).To(Equal(vm.Halted))
	})
})
