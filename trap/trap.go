// Package trap implements the entry/dispatch side of spec §4.5: the
// syscall fast-path contract (trap number 0x100 denotes a syscall), the
// fatal-page-fault and timer-IRQ paths, and the IDT gate table a real
// trampoline would install. Grounded on
// gopher-os-gopher-os/src/gopheros/kernel/gate/gate_amd64.go's
// Registers/InterruptNumber/HandleInterrupt shape (the retrieved
// `Oichkatzelesfrettschen-biscuit` teacher tree contains no trap/IDT layer
// of its own — only its modified Go runtime handles traps, which this
// spec explicitly replaces), generalized from gate's exception-only gate
// table to also recognize the spec's 0x100 syscall vector and to carry a
// register layout matching thread.UserCtx_t instead of gate's own
// Registers. Page-fault diagnostics disassemble the faulting instruction
// with golang.org/x/arch/x86/x86asm when Frame_t carries the faulting
// bytes: a caller that knows the faulting thread's address space (e.g.
// vmarea.AddressSpace.ReadAt at Ctx.Rip) fills in Frame_t.Code before
// calling Handle, the same way real syscall traps are only ever exercised
// by each package's own tests rather than a simulated CPU firing one.
package trap

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"vesper/thread"
)

// InterruptNumber mirrors gate_amd64.go's InterruptNumber vocabulary,
// trimmed to the vectors this core's dispatch path actually distinguishes.
type InterruptNumber uint64

const (
	PageFault  InterruptNumber = 14
	TimerIRQ   InterruptNumber = 32
	SyscallVec InterruptNumber = 0x100
)

// Frame_t is the trap frame the trampoline materializes at the top of the
// kernel stack before handing off to handle_trap (spec §6's SyscallFrame):
// the full user register snapshot plus which vector fired.
type Frame_t struct {
	Ctx      thread.UserCtx_t
	Num      InterruptNumber
	FromUser bool

	// Code is a best-effort window of raw bytes starting at Ctx.Rip, for
	// faultMessage to disassemble. Left nil unless the caller constructing
	// the frame could read the faulting thread's memory; a nil or
	// undecodable Code just drops the disassembly line from the message.
	Code []byte
}

// PanicFn is installed by the boot sequence to actually halt/report; tests
// install a non-halting stand-in.
var PanicFn = func(msg string) { panic(msg) }

// HandlerFn processes a syscall vector: given the current thread's user
// context (already captured into Frame_t.Ctx), it performs the syscall and
// writes the two return words back — syscall.Dispatch, wired in by the
// boot sequence.
type HandlerFn func(t *thread.Thread_t, f *Frame_t)

var syscallHandler HandlerFn

// SetSyscallHandler installs the syscall dispatcher the syscall package
// provides; kept as a setter (rather than an import) so trap has no
// compile-time dependency on syscall, avoiding a trap<->syscall import
// tangle symmetric with ksync's Blocker_i pattern.
func SetSyscallHandler(h HandlerFn) { syscallHandler = h }

// tickCount is the timer-IRQ counter spec §4.5 says to increment on every
// tick.
var tickCount uint64

// Ticks reports the number of timer IRQs serviced since boot.
func Ticks() uint64 { return tickCount }

// Handle implements handle_trap (spec §4.5): a syscall vector dispatches
// to the installed HandlerFn, a timer IRQ ACKs/increments/suspends, a page
// fault is fatal, and anything else is an unknown-trap fatal condition.
func Handle(t *thread.Thread_t, f *Frame_t) {
	switch f.Num {
	case SyscallVec:
		if syscallHandler == nil {
			PanicFn("syscall vector fired with no handler installed")
			return
		}
		syscallHandler(t, f)
	case TimerIRQ:
		tickCount++
		if f.FromUser {
			t.SetState(thread.Suspended)
		}
	case PageFault:
		PanicFn(faultMessage(f))
	default:
		PanicFn(fmt.Sprintf("unknown trap number %#x", uint64(f.Num)))
	}
}

// faultMessage formats a fatal page-fault diagnostic, including a
// best-effort disassembly of the faulting instruction when its bytes are
// available (spec §7: "page fault in kernel context" is a fatal core
// invariant violation, not a recoverable condition; this core does no
// demand paging).
func faultMessage(f *Frame_t) string {
	msg := fmt.Sprintf("page fault at rip=%#x rsp=%#x", f.Ctx.Rip, f.Ctx.Rsp)
	if len(f.Code) == 0 {
		return msg
	}
	inst, err := Disassemble(f.Code)
	if err != nil {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, inst)
}

// Disassemble decodes the single x86-64 instruction at the start of code,
// for inclusion in a fault diagnostic.
func Disassemble(code []byte) (string, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return "", err
	}
	return x86asm.GNUSyntax(inst, 0, nil), nil
}

// GateEntry_t is one IDT slot: present/absent plus which interrupt-stack-
// table offset to switch to, matching gate_amd64.go's
// HandleInterrupt(intNumber, istOffset, handler) shape. This core has no
// real lidt instruction to issue, so the "table" is just the slice used to
// validate which vectors are wired before boot.
type GateEntry_t struct {
	Present  bool
	IST      uint8
	Handler  func(*Frame_t)
}

var idt [256]GateEntry_t

// InstallGate registers handler for vector num at the given IST offset,
// the dispatch-table equivalent of gate_amd64.go's HandleInterrupt. The
// syscall vector (0x100) is a fast-syscall entry, not a real IDT gate, and
// panics if passed here — install it via SetSyscallHandler instead.
func InstallGate(num InterruptNumber, ist uint8, handler func(*Frame_t)) {
	if num == SyscallVec {
		panic("the syscall vector is not an IDT gate; use SetSyscallHandler")
	}
	idt[num] = GateEntry_t{Present: true, IST: ist, Handler: handler}
}

// GateInstalled reports whether vector num has a registered handler, for
// boot-sequence self-checks.
func GateInstalled(num InterruptNumber) bool {
	if num == SyscallVec {
		return syscallHandler != nil
	}
	return idt[num].Present
}
