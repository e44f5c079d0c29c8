// Package ktask implements kernel service threads (spec §4.9): the
// Root/Executor/FsServer/BlkServer roles, each thread's KernelContext
// (callee-saved registers plus rip, switched by a hand-written assembly
// routine this core models as a plain struct since there is no real CPU
// context switch to perform), its reqproto.Server_t request queue, and the
// panic-reboot path that converts a service-thread panic into a single
// dropped request instead of a kernel panic. Fresh code — no teacher
// package models a kernel-thread abstraction distinct from a goroutine —
// grounded on caller.RebootTrace for the recovered-panic diagnostic and on
// stats.Counter_t for the per-thread poll/reboot counters the D_PROF device
// surfaces.
package ktask

import (
	"fmt"

	"vesper/caller"
	"vesper/reqproto"
	"vesper/stats"
)

// Role_t identifies what a kernel service thread is for; only FsServer and
// BlkServer are "recoverable" under the panic-reboot path (spec §4.9,
// §7: "Root and executor threads are not recoverable").
type Role_t int

const (
	RoleRoot Role_t = iota
	RoleExecutor
	RoleFsServer
	RoleBlkServer
)

func (r Role_t) Recoverable() bool {
	return r == RoleFsServer || r == RoleBlkServer
}

const (
	kernelStackBase = uintptr(0xffffff0000000000)
	kernelStackSize = 8 << 20 // 8 MiB per spec §6
)

// KernelContext_t is a kernel service thread's resumption state: no user
// context exists for these threads (spec §4.4), only the handful of
// callee-saved registers and the instruction pointer a context switch
// restores.
type KernelContext_t struct {
	Callee [6]uint64
	Rip    uintptr
	Rsp    uintptr
}

// ProcessFn is a service thread's per-request handler: process_request in
// spec §4.9's terms. It runs with the client's page table activated by the
// caller, per spec §5's "Shared-resource policy".
type ProcessFn func(req *reqproto.Request_t)

// KThread_t is one kernel service thread.
type KThread_t struct {
	Ktid    int
	Role    Role_t
	Ctx     KernelContext_t
	Server  *reqproto.Server_t // nil for RoleRoot/RoleExecutor
	process ProcessFn
	entry   uintptr // processor_entry, reinstalled by Reboot

	Polls   stats.Counter_t
	Reboots stats.Counter_t

	currentReqID uint64
	hasCurrent   bool

	// rebootSites suppresses repeat reboot-trace logging for a panic
	// recurring from the same call chain, so a service thread wedged in a
	// reboot loop doesn't flood the log with identical traces.
	rebootSites caller.Distinct_caller_t
}

// stackFor returns the [base, base+size) stack window for ktid, per spec
// §6's KERNEL_STACK_BASE + ktid*2*KERNEL_STACK_SIZE layout (the doubling
// leaves a guard gap between threads).
func stackFor(ktid int) (base, top uintptr) {
	base = kernelStackBase + uintptr(ktid)*2*kernelStackSize
	return base, base + kernelStackSize
}

// NewServer constructs a FsServer/BlkServer-role thread: entry is the
// reboot path's reinstall target (processor_entry in spec terms) and
// process is the per-request handler its loop body calls.
func NewServer(ktid int, role Role_t, entry uintptr, process ProcessFn) *KThread_t {
	_, top := stackFor(ktid)
	kt := &KThread_t{
		Ktid:    ktid,
		Role:    role,
		Server:  reqproto.NewServer(),
		process: process,
		entry:   entry,
	}
	kt.Ctx.Rip = entry
	kt.Ctx.Rsp = top
	kt.rebootSites.Enabled = true
	return kt
}

// NewBare constructs a Root/Executor-role thread, which has no request
// queue of its own.
func NewBare(ktid int, role Role_t, entry uintptr) *KThread_t {
	_, top := stackFor(ktid)
	kt := &KThread_t{Ktid: ktid, Role: role, entry: entry}
	kt.Ctx.Rip = entry
	kt.Ctx.Rsp = top
	return kt
}

// NeedSchedule implements the per-role predicate the scheduler's
// need_schedule check uses (spec §4.6): Root is always eligible (the
// scheduler itself is responsible for not picking the caller), a server
// needs scheduling iff its queue is non-empty.
func (kt *KThread_t) NeedSchedule() bool {
	switch kt.Role {
	case RoleRoot:
		return true
	default:
		return kt.Server != nil && kt.Server.NeedSchedule()
	}
}

// RunOnce pops the front request (if any) and processes it, recovering
// from a panic via the reboot path instead of letting it propagate —
// spec §4.9's "pop the front request from its queue; if none, set state
// to Idle and yield; otherwise ... process_request ... wake_request".
// Returns false when the queue was empty (the caller should yield).
func (kt *KThread_t) RunOnce() (ran bool) {
	if kt.Server == nil {
		panic("RunOnce called on a non-server kernel thread")
	}
	req := kt.Server.PopRequest()
	if req == nil {
		return false
	}

	kt.currentReqID = req.Id
	kt.hasCurrent = true
	kt.Polls.Inc()

	func() {
		defer func() {
			if r := recover(); r != nil {
				kt.reboot(r)
			}
		}()
		kt.process(req)
	}()

	kt.hasCurrent = false
	kt.Server.WakeRequest(req.Id)
	return true
}

// reboot implements spec §4.9's recoverable-server-fault path: rewrite
// this thread's context back to its entry point, and wake the request
// that was in flight so its client unblocks with a failure result instead
// of hanging forever. Root/Executor threads never reach here since they
// have no Server to call RunOnce on.
//
// Logging the reboot trace is gated on rebootSites.Distinct: a service
// thread stuck rebooting on the same bad request over and over would
// otherwise reprint an identical trace on every single poll.
func (kt *KThread_t) reboot(recovered interface{}) {
	if !kt.Role.Recoverable() {
		panic(recovered)
	}
	kt.Reboots.Inc()
	_, top := stackFor(kt.Ktid)
	kt.Ctx = KernelContext_t{Rip: kt.entry, Rsp: top}
	if distinct, _ := kt.rebootSites.Distinct(); distinct {
		fmt.Print(caller.RebootTrace(recovered, 2))
	}
	if kt.hasCurrent {
		kt.hasCurrent = false
		kt.Server.WakeRequest(kt.currentReqID)
	}
}
