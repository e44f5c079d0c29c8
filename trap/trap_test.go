package trap

import (
	"strings"
	"testing"

	"vesper/defs"
	"vesper/frame"
	"vesper/thread"
	"vesper/vmarea"
)

func TestTimerIRQIncrementsTicksAndSuspendsUserThread(t *testing.T) {
	before := Ticks()
	th := thread.New(defs.RootTid)
	f := &Frame_t{Num: TimerIRQ, FromUser: true}
	Handle(th, f)
	if Ticks() != before+1 {
		t.Fatalf("Ticks() = %d, want %d", Ticks(), before+1)
	}
	if th.GetState() != thread.Suspended {
		t.Fatal("a user-mode timer IRQ must suspend the current thread")
	}
}

func TestTimerIRQFromKernelDoesNotSuspend(t *testing.T) {
	th := thread.New(defs.RootTid)
	f := &Frame_t{Num: TimerIRQ, FromUser: false}
	Handle(th, f)
	if th.GetState() != thread.Runnable {
		t.Fatal("a kernel-mode timer IRQ must not touch thread state")
	}
}

func TestSyscallVectorDispatchesToInstalledHandler(t *testing.T) {
	called := false
	SetSyscallHandler(func(t *thread.Thread_t, f *Frame_t) { called = true })
	defer SetSyscallHandler(nil)

	th := thread.New(defs.RootTid)
	Handle(th, &Frame_t{Num: SyscallVec})
	if !called {
		t.Fatal("syscall vector must invoke the installed handler")
	}
}

func TestPageFaultIsFatal(t *testing.T) {
	var msg string
	old := PanicFn
	PanicFn = func(m string) { msg = m }
	defer func() { PanicFn = old }()

	th := thread.New(defs.RootTid)
	Handle(th, &Frame_t{Num: PageFault, Ctx: thread.UserCtx_t{Rip: 0x1000}})
	if !strings.Contains(msg, "page fault") {
		t.Fatalf("message = %q, want it to mention a page fault", msg)
	}
}

func TestPageFaultDisassemblesCodeFromFrame(t *testing.T) {
	frame.Physmem = &frame.Physmem_t{}
	alloc := frame.Phys_init(4)
	as, err := vmarea.NewAddressSpace(alloc)
	if err != 0 {
		t.Fatalf("NewAddressSpace: %d", err)
	}
	area := vmarea.NewMemoryArea(0x1000, frame.PGSIZE, frame.PTE_U, vmarea.ElfSegment, alloc)
	as.Insert(area)
	// 0x90 is NOP in every x86 mode.
	if werr := area.WriteData(0, []byte{0x90}); werr != 0 {
		t.Fatalf("WriteData: %d", werr)
	}
	code := as.ReadAt(0x1000, 1)

	var msg string
	old := PanicFn
	PanicFn = func(m string) { msg = m }
	defer func() { PanicFn = old }()

	th := thread.New(defs.RootTid)
	Handle(th, &Frame_t{Num: PageFault, Ctx: thread.UserCtx_t{Rip: 0x1000}, Code: code})
	if !strings.Contains(msg, "nop") {
		t.Fatalf("message = %q, want the decoded nop mnemonic", msg)
	}
}

func TestInstallGateRejectsSyscallVector(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("InstallGate(SyscallVec, ...) must panic")
		}
	}()
	InstallGate(SyscallVec, 0, func(*Frame_t) {})
}

func TestInstallGateMarksPresent(t *testing.T) {
	InstallGate(PageFault, 1, func(*Frame_t) {})
	if !GateInstalled(PageFault) {
		t.Fatal("InstallGate must mark the vector present")
	}
}

func TestDisassembleDecodesSimpleInstruction(t *testing.T) {
	// 0x90 is NOP in every x86 mode.
	s, err := Disassemble([]byte{0x90})
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	if s == "" {
		t.Fatal("Disassemble must produce a non-empty mnemonic")
	}
}
