// Package process implements Process_t: a process's address space, open
// file table, thread table, and the fork/exec/exit algorithms of spec
// §4.4. Grounded on accnt.Accnt_t's embedded-mutex accounting idiom for
// Process_t.Rusage and limits.Syslimit.Sysprocs for the live-process cap
// (no teacher package owns fork/exec/exit directly — biscuit's proc.go and
// this kernel's process model diverge too far for line-level grounding, so
// the algorithms themselves are ported straight from spec §4.4's five-step
// fork/exec and exit descriptions).
//
// Thread_t carries no back-pointer to its owning Process_t (see
// thread.Thread_t's doc comment): the tid-0-exit-cascades-to-process-exit
// rule named by spec §4.4's Thread::exit lives here instead, in
// ThreadExit, which already has both the thread table and the process at
// hand.
package process

import (
	"sync"

	"vesper/accnt"
	"vesper/defs"
	"vesper/executor"
	"vesper/frame"
	"vesper/ksync"
	"vesper/limits"
	"vesper/thread"
	"vesper/util"
	"vesper/vfs"
	"vesper/vmarea"
)

const (
	userStackBase = uintptr(0x00007f0000000000)
	userStackSize = 8 * frame.PGSIZE

	// loadBase is where ProcCreate maps a freshly loaded process image.
	// This core has no ELF parser (see DESIGN.md's Open Question decision
	// for the syscall package's ProcCreate): a process image is whatever
	// bytes the named on-disk file holds, mapped as a single executable
	// ElfSegment area starting here.
	loadBase = uintptr(0x0000000000400000)
)

// Process_t is one process: its address space, file table, accounting,
// and the table of threads currently running within it.
type Process_t struct {
	sync.Mutex
	Pid      defs.Pid_t
	AS       *vmarea.AddressSpace
	Cwd      *vfs.Cwd_t
	Files    *vfs.FileTable_t
	Rusage   accnt.Accnt_t
	Executor *executor.Executor_t
	alloc    frame.Page_i
	threads  map[defs.Tid_t]*thread.Thread_t
	nextTid  defs.Tid_t

	// Mutexes/Sems/Condvars back the MutexCreate/SemCreate/CondvarCreate
	// syscall family (spec §4.5): each process owns the primitives it
	// created, keyed by an opaque handle syscall hands back to user
	// space in place of a pointer.
	Mutexes    map[int]*ksync.MutexBlocking_t
	Sems       map[int]*ksync.Sem_t
	Condvars   map[int]*ksync.Condvar_t
	nextHandle int

	parent   *Process_t
	children map[defs.Pid_t]*Process_t

	exited   bool
	ExitCode int
}

var (
	tableMu  sync.Mutex
	table    = make(map[defs.Pid_t]*Process_t)
	nextPid  defs.Pid_t
	liveProcs int
)

func takeProcSlot() bool {
	tableMu.Lock()
	defer tableMu.Unlock()
	if liveProcs >= limits.Syslimit.Sysprocs {
		return false
	}
	liveProcs++
	return true
}

func giveProcSlot() {
	tableMu.Lock()
	liveProcs--
	tableMu.Unlock()
}

func publish(p *Process_t) {
	tableMu.Lock()
	table[p.Pid] = p
	tableMu.Unlock()
}

// owners maps a live thread to the process that created it. Thread_t
// deliberately carries no back-pointer of its own (see thread.Thread_t's
// doc comment), so the syscall layer — which is handed only a
// *thread.Thread_t by trap.Handle — looks its owning process up here.
var (
	ownerMu sync.Mutex
	owners  = make(map[*thread.Thread_t]*Process_t)
)

func registerOwner(t *thread.Thread_t, p *Process_t) {
	ownerMu.Lock()
	owners[t] = p
	ownerMu.Unlock()
}

func forgetOwner(t *thread.Thread_t) {
	ownerMu.Lock()
	delete(owners, t)
	ownerMu.Unlock()
}

// Owner returns the process that created t, if it is still registered.
func Owner(t *thread.Thread_t) (*Process_t, bool) {
	ownerMu.Lock()
	defer ownerMu.Unlock()
	p, ok := owners[t]
	return p, ok
}

// newThreadHook is the callback the scheduler installs to learn about a
// freshly created user thread, the same setter shape as SetOrphanHook
// below: process has no business knowing about sched's run queue, so it
// just announces new threads and lets the boot sequence wire them in.
var newThreadHook func(*thread.Thread_t)

// SetNewThreadHook installs the callback fired once for every new thread
// (NewRoot's root thread, ThreadCreate, and Fork's child root thread).
func SetNewThreadHook(f func(*thread.Thread_t)) { newThreadHook = f }

func announceNewThread(t *thread.Thread_t) {
	if newThreadHook != nil {
		newThreadHook(t)
	}
}

// Lookup finds a live process by pid.
func Lookup(pid defs.Pid_t) (*Process_t, bool) {
	tableMu.Lock()
	defer tableMu.Unlock()
	p, ok := table[pid]
	return p, ok
}

// NewRoot creates the boot process: a fresh pid, the given address space
// (already populated with its ELF image by the loader), stdio wired
// separately by the caller, and a single Runnable tid-0 thread.
func NewRoot(as *vmarea.AddressSpace, alloc frame.Page_i) (*Process_t, defs.Err_t) {
	if !takeProcSlot() {
		return nil, -defs.EAGAIN
	}
	tableMu.Lock()
	nextPid++
	pid := nextPid
	tableMu.Unlock()

	p := &Process_t{
		Pid:      pid,
		AS:       as,
		Files:    vfs.NewFileTable(),
		Executor: executor.New(),
		Mutexes:  make(map[int]*ksync.MutexBlocking_t),
		Sems:     make(map[int]*ksync.Sem_t),
		Condvars: make(map[int]*ksync.Condvar_t),
		alloc:    alloc,
		threads:  make(map[defs.Tid_t]*thread.Thread_t),
		children: make(map[defs.Pid_t]*Process_t),
	}
	root := thread.New(defs.RootTid)
	p.threads[defs.RootTid] = root
	p.nextTid = defs.RootTid + 1
	registerOwner(root, p)
	announceNewThread(root)
	publish(p)
	return p, 0
}

// allocHandle returns a fresh opaque handle for a newly created
// mutex/sem/condvar, unique within p.
func (p *Process_t) allocHandle() int {
	p.Lock()
	defer p.Unlock()
	p.nextHandle++
	return p.nextHandle
}

// MutexCreate allocates a new blocking mutex and returns its handle.
func (p *Process_t) MutexCreate() int {
	h := p.allocHandle()
	p.Lock()
	p.Mutexes[h] = &ksync.MutexBlocking_t{}
	p.Unlock()
	return h
}

// SemCreate allocates a new counting semaphore initialized to n and
// returns its handle.
func (p *Process_t) SemCreate(n int) int {
	h := p.allocHandle()
	p.Lock()
	p.Sems[h] = ksync.NewSem(n)
	p.Unlock()
	return h
}

// CondvarCreate allocates a new condition variable and returns its handle.
func (p *Process_t) CondvarCreate() int {
	h := p.allocHandle()
	p.Lock()
	p.Condvars[h] = &ksync.Condvar_t{}
	p.Unlock()
	return h
}

// Thread returns the thread with the given tid within p, if live.
func (p *Process_t) Thread(tid defs.Tid_t) (*thread.Thread_t, bool) {
	p.Lock()
	defer p.Unlock()
	t, ok := p.threads[tid]
	return t, ok
}

// RootThread returns p's tid-0 thread, which always exists until exit.
func (p *Process_t) RootThread() *thread.Thread_t {
	p.Lock()
	defer p.Unlock()
	return p.threads[defs.RootTid]
}

func stackStart(tid defs.Tid_t) uintptr {
	return userStackBase + uintptr(tid)*2*uintptr(userStackSize)
}

// ThreadCreate allocates a new tid, adds its UserStack area to the address
// space at USER_STACK_BASE + tid*2*USER_STACK_SIZE, seeds its user context
// with entry/a1/a2, and marks it Runnable (spec §4.5's ThreadCreate).
func (p *Process_t) ThreadCreate(entry, a1, a2 uint64) (defs.Tid_t, defs.Err_t) {
	p.Lock()
	tid := p.nextTid
	p.nextTid++
	p.Unlock()

	start := stackStart(tid)
	area := vmarea.NewMemoryArea(start, userStackSize, frame.PTE_W|frame.PTE_U, vmarea.UserStack, p.alloc)
	p.AS.Insert(area)

	t := thread.New(tid)
	t.Ctx.Rip = uintptr(entry)
	t.Ctx.Rsp = start + uintptr(userStackSize)
	t.Ctx.Rdi = a1
	t.Ctx.Rsi = a2

	p.Lock()
	p.threads[tid] = t
	p.Unlock()
	registerOwner(t, p)
	announceNewThread(t)
	return tid, 0
}

// Fork implements spec §4.4's Process::fork. caller is the forking
// thread's own Thread_t: the new process's sole thread is a copy of it,
// not of whichever thread happens to be current.
func (p *Process_t) Fork(caller *thread.Thread_t) (*Process_t, defs.Err_t) {
	if !takeProcSlot() {
		return nil, -defs.EAGAIN
	}

	nas, err := p.AS.CloneSelf()
	if err != 0 {
		giveProcSlot()
		return nil, err
	}
	if cerr := p.AS.CloneArea(stackStart(caller.Tid), nas); cerr != 0 {
		giveProcSlot()
		return nil, cerr
	}

	tableMu.Lock()
	nextPid++
	pid := nextPid
	tableMu.Unlock()

	child := &Process_t{
		Pid:      pid,
		AS:       nas,
		Files:    vfs.NewFileTable(),
		Executor: executor.New(),
		Mutexes:  make(map[int]*ksync.MutexBlocking_t),
		Sems:     make(map[int]*ksync.Sem_t),
		Condvars: make(map[int]*ksync.Condvar_t),
		alloc:    p.alloc,
		threads:  make(map[defs.Tid_t]*thread.Thread_t),
		children: make(map[defs.Pid_t]*Process_t),
		parent:   p,
	}
	root := thread.New(defs.RootTid)
	root.Ctx = caller.Ctx
	root.Ctx.Rax = 0 // fork's return value in the child
	child.threads[defs.RootTid] = root
	child.nextTid = defs.RootTid + 1
	root.SetRunnable()
	registerOwner(root, child)
	announceNewThread(root)

	p.Lock()
	p.children[pid] = child
	p.Unlock()

	publish(child)
	return child, 0
}

// Exec implements spec §4.4's Process::exec: discards every thread but the
// caller, replaces p's ElfSegment areas with img mapped at loadBase (this
// core's stand-in for a real ELF loader — see NewFromImage's doc comment),
// and rewrites the caller's user context to start it.
func (p *Process_t) Exec(caller *thread.Thread_t, img []byte, argv []string) defs.Err_t {
	p.Lock()
	for tid, t := range p.threads {
		if tid == caller.Tid {
			continue
		}
		t.SetState(thread.Exited)
		forgetOwner(t)
	}
	p.threads = map[defs.Tid_t]*thread.Thread_t{caller.Tid: caller}
	p.Unlock()

	p.AS.ClearElf()
	if err := loadImage(p.AS, img, p.alloc); err != 0 {
		return err
	}
	p.AS.Activate()

	sp, argvPtr, argc, err := p.pushArgv(caller.Tid, argv)
	if err != 0 {
		return err
	}
	caller.Ctx.Rip = loadBase
	caller.Ctx.Rsp = sp
	caller.Ctx.Rdi = uint64(argc)
	caller.Ctx.Rsi = uint64(argvPtr)
	return 0
}

// pushArgv writes argv's strings below the stack top and then, at lower
// addresses, a NULL-terminated array of the strings' user addresses
// (stackStart(tid) plus each string's offset in the area), rounding the
// final stack pointer down to 16 bytes, per spec §4.4 step 4. The returned
// stack pointer and array address are the same.
func (p *Process_t) pushArgv(tid defs.Tid_t, argv []string) (sp, argvArray uintptr, argc int, rerr defs.Err_t) {
	area, ok := p.AS.Lookup(stackStart(tid))
	if !ok {
		return 0, 0, 0, -defs.EFAULT
	}
	top := userStackSize
	strOffsets := make([]int, len(argv))
	for i, s := range argv {
		b := append([]byte(s), 0)
		top -= len(b)
		if err := area.WriteData(top, b); err != 0 {
			return 0, 0, 0, err
		}
		strOffsets[i] = top
	}
	arrSize := (len(argv) + 1) * 8
	top -= arrSize
	top &^= 15
	arr := make([]byte, arrSize)
	for i, off := range strOffsets {
		putU64(arr, i*8, uint64(stackStart(tid))+uint64(off))
	}
	if err := area.WriteData(top, arr); err != 0 {
		return 0, 0, 0, err
	}
	base := stackStart(tid)
	return base + uintptr(top), base + uintptr(top), len(argv), 0
}

func putU64(b []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		b[off+i] = byte(v >> (8 * uint(i)))
	}
}

// Exit implements spec §4.4's Process::exit: every thread is marked
// Exited (firing their join wakers), the process is removed from the pid
// table and its parent's live-children set, and its own children are
// reparented as orphans for the root kernel thread to reap.
func (p *Process_t) Exit(code int) {
	p.Lock()
	if p.exited {
		p.Unlock()
		return
	}
	p.exited = true
	p.ExitCode = code
	for _, t := range p.threads {
		t.SetState(thread.Exited)
		forgetOwner(t)
	}
	kids := p.children
	p.children = nil
	parent := p.parent
	p.Unlock()

	tableMu.Lock()
	delete(table, p.Pid)
	tableMu.Unlock()

	if parent != nil {
		parent.Lock()
		delete(parent.children, p.Pid)
		parent.Unlock()
	}

	for _, kid := range kids {
		kid.Lock()
		kid.parent = nil
		kid.Unlock()
		orphan(kid)
	}

	p.AS.Teardown()
	giveProcSlot()
}

// orphanHook is the callback the root kernel thread installs to notice
// parentless live processes (spec §4.4's "children become orphans; the
// root kernel thread is responsible for reaping").
var orphanHook func(*Process_t)

func orphan(p *Process_t) {
	if orphanHook != nil {
		orphanHook(p)
	}
}

// SetOrphanHook installs the callback used to notice reparented orphans.
func SetOrphanHook(f func(*Process_t)) { orphanHook = f }

// ThreadExit implements spec §4.4's Thread::exit: tid 0 cascades into a
// full Process::exit; any other tid is simply dropped from the thread
// table. Either path transitions the thread itself to Exited first, so
// its own join wakers fire regardless of which branch runs.
func (p *Process_t) ThreadExit(t *thread.Thread_t) {
	t.SetState(thread.Exited)
	if t.Tid == defs.RootTid {
		p.Exit(0)
		return
	}
	p.Lock()
	delete(p.threads, t.Tid)
	p.Unlock()
	forgetOwner(t)
}

// Children returns the pids of p's currently-live children, for ProcWait.
func (p *Process_t) Children() []defs.Pid_t {
	p.Lock()
	defer p.Unlock()
	ids := make([]defs.Pid_t, 0, len(p.children))
	for pid := range p.children {
		ids = append(ids, pid)
	}
	return ids
}

// ChildProcess returns the live *Process_t for pid if it is one of p's
// children, captured before any Exit races it out of p.children — the
// syscall layer's ProcWait keeps this pointer around to poll the child's
// root thread even after the child has fully exited and dropped out of
// the pid table and its parent's children set.
func (p *Process_t) ChildProcess(pid defs.Pid_t) (*Process_t, bool) {
	p.Lock()
	defer p.Unlock()
	c, ok := p.children[pid]
	return c, ok
}

// Alloc exposes the physical-frame allocator p was constructed with, for
// syscall-layer operations (MakePipe, ThreadCreate-style stack areas) that
// need one but don't otherwise touch Process_t's internals.
func (p *Process_t) Alloc() frame.Page_i { return p.alloc }

// NewFromImage implements the ProcCreate syscall's process-loading half:
// it maps img as a single executable area at loadBase, adds a root-thread
// stack, pushes argv the same way Exec does, and publishes a new,
// Runnable, tid-0-only process. No relation to Fork/Exec's caller-copies-
// itself model — this is a process built from scratch around a raw image,
// the role a boot/program loader plays (spec §4.5's ProcCreate).
func NewFromImage(alloc frame.Page_i, img []byte, argv []string) (*Process_t, defs.Err_t) {
	as, err := vmarea.NewAddressSpace(alloc)
	if err != 0 {
		return nil, err
	}
	if ierr := loadImage(as, img, alloc); ierr != 0 {
		return nil, ierr
	}

	stack := vmarea.NewMemoryArea(stackStart(defs.RootTid), userStackSize, frame.PTE_W|frame.PTE_U, vmarea.UserStack, alloc)
	as.Insert(stack)

	p, perr := NewRoot(as, alloc)
	if perr != 0 {
		return nil, perr
	}

	root := p.RootThread()
	sp, argvPtr, argc, aerr := p.pushArgv(defs.RootTid, argv)
	if aerr != 0 {
		p.Exit(0)
		return nil, aerr
	}
	root.Ctx.Rip = loadBase
	root.Ctx.Rsp = sp
	root.Ctx.Rdi = uint64(argc)
	root.Ctx.Rsi = uint64(argvPtr)
	return p, 0
}

// loadImage maps img as a single executable ElfSegment area at loadBase,
// the shared step between NewFromImage (a brand-new process) and Exec
// (replacing an existing process's image in place).
func loadImage(as *vmarea.AddressSpace, img []byte, alloc frame.Page_i) defs.Err_t {
	size := util.Roundup(len(img), frame.PGSIZE)
	if size == 0 {
		size = frame.PGSIZE
	}
	image := vmarea.NewMemoryArea(loadBase, size, frame.PTE_W|frame.PTE_U, vmarea.ElfSegment, alloc)
	if len(img) > 0 {
		if err := image.WriteData(0, img); err != 0 {
			return err
		}
	}
	as.Insert(image)
	return 0
}
