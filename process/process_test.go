package process

import (
	"testing"

	"vesper/defs"
	"vesper/frame"
	"vesper/thread"
	"vesper/vmarea"
)

func freshAlloc(t *testing.T, n int) frame.Page_i {
	t.Helper()
	frame.Physmem = &frame.Physmem_t{}
	return frame.Phys_init(n)
}

func freshRoot(t *testing.T) *Process_t {
	t.Helper()
	alloc := freshAlloc(t, 256)
	as, err := vmarea.NewAddressSpace(alloc)
	if err != 0 {
		t.Fatalf("NewAddressSpace failed: %d", err)
	}
	as.Insert(vmarea.NewMemoryArea(stackStart(defs.RootTid), userStackSize, frame.PTE_W|frame.PTE_U, vmarea.UserStack, alloc))
	p, perr := NewRoot(as, alloc)
	if perr != 0 {
		t.Fatalf("NewRoot failed: %d", perr)
	}
	return p
}

func TestNewRootHasRunnableRootThread(t *testing.T) {
	p := freshRoot(t)
	root := p.RootThread()
	if root.Tid != defs.RootTid {
		t.Fatalf("root tid = %d, want %d", root.Tid, defs.RootTid)
	}
	if root.GetState() != thread.Runnable {
		t.Fatal("fresh root thread must be Runnable")
	}
}

func TestThreadCreateSeedsContextAndStack(t *testing.T) {
	p := freshRoot(t)
	tid, err := p.ThreadCreate(0x4000, 11, 22)
	if err != 0 {
		t.Fatalf("ThreadCreate failed: %d", err)
	}
	th, ok := p.Thread(tid)
	if !ok {
		t.Fatal("ThreadCreate must install the new thread")
	}
	if th.Ctx.Rip != 0x4000 || th.Ctx.Rdi != 11 || th.Ctx.Rsi != 22 {
		t.Fatalf("unexpected seeded context: %+v", th.Ctx)
	}
	if _, ok := p.AS.Lookup(stackStart(tid)); !ok {
		t.Fatal("ThreadCreate must install a UserStack area")
	}
}

func TestForkClonesAddressSpaceAndCallerStack(t *testing.T) {
	p := freshRoot(t)
	root := p.RootThread()
	root.Ctx.Rip = 0x1234

	child, err := p.Fork(root)
	if err != 0 {
		t.Fatalf("Fork failed: %d", err)
	}
	if child.Pid == p.Pid {
		t.Fatal("child must have a distinct pid")
	}
	croot, ok := child.Thread(defs.RootTid)
	if !ok {
		t.Fatal("child must have a root thread")
	}
	if croot.Ctx.Rip != 0x1234 {
		t.Fatal("child's root thread must copy the caller's context")
	}
	if croot.Ctx.Rax != 0 {
		t.Fatal("child's fork return value (Rax) must be zero")
	}
	if croot.GetState() != thread.Runnable {
		t.Fatal("child's root thread must be Runnable")
	}
	if _, ok := child.AS.Lookup(stackStart(defs.RootTid)); !ok {
		t.Fatal("child must have the caller's UserStack area cloned in")
	}

	kids := p.Children()
	if len(kids) != 1 || kids[0] != child.Pid {
		t.Fatalf("Children() = %v, want [%d]", kids, child.Pid)
	}
}

func TestExecRewritesCallerContextAndDropsOtherThreads(t *testing.T) {
	p := freshRoot(t)
	root := p.RootThread()
	other, _ := p.ThreadCreate(0x5000, 0, 0)
	otherTh, _ := p.Thread(other)

	argv := []string{"prog", "arg1"}
	img := []byte{0x90, 0x90}
	if err := p.Exec(root, img, argv); err != 0 {
		t.Fatalf("Exec failed: %d", err)
	}
	if root.Ctx.Rip != loadBase {
		t.Fatalf("Rip = %#x, want loadBase", root.Ctx.Rip)
	}
	if root.Ctx.Rdi != uint64(len(argv)) {
		t.Fatalf("Rdi (argc) = %d, want %d", root.Ctx.Rdi, len(argv))
	}
	if root.Ctx.Rsp%16 != 0 {
		t.Fatalf("Rsp = %#x must be 16-byte aligned", root.Ctx.Rsp)
	}
	if otherTh.GetState() != thread.Exited {
		t.Fatal("Exec must mark every non-caller thread Exited")
	}
	if _, ok := p.Thread(other); ok {
		t.Fatal("Exec must truncate the thread table to just the caller")
	}
}

func TestThreadExitTidZeroCascadesToProcessExit(t *testing.T) {
	p := freshRoot(t)
	root := p.RootThread()
	p.ThreadExit(root)
	if root.GetState() != thread.Exited {
		t.Fatal("ThreadExit must mark the thread Exited")
	}
	if _, ok := Lookup(p.Pid); ok {
		t.Fatal("ThreadExit on tid 0 must remove the process from the pid table")
	}
}

func TestThreadExitNonRootJustDropsFromTable(t *testing.T) {
	p := freshRoot(t)
	tid, _ := p.ThreadCreate(0x9000, 0, 0)
	th, _ := p.Thread(tid)
	p.ThreadExit(th)
	if th.GetState() != thread.Exited {
		t.Fatal("ThreadExit must mark the thread Exited")
	}
	if _, ok := p.Thread(tid); ok {
		t.Fatal("ThreadExit on a non-root tid must drop it from the thread table")
	}
	if _, ok := Lookup(p.Pid); !ok {
		t.Fatal("ThreadExit on a non-root tid must not exit the process")
	}
}

func TestExitOrphansChildren(t *testing.T) {
	p := freshRoot(t)
	root := p.RootThread()
	child, _ := p.Fork(root)

	var reaped *Process_t
	SetOrphanHook(func(o *Process_t) { reaped = o })
	defer SetOrphanHook(nil)

	p.Exit(0)
	if reaped != child {
		t.Fatal("Exit must hand every child to the orphan hook")
	}
	if len(p.Children()) != 0 {
		t.Fatal("Exit must clear the exiting process's own children set")
	}
}

func TestMutexCreateHandlesAreDistinctAndUsable(t *testing.T) {
	p := freshRoot(t)
	h1 := p.MutexCreate()
	h2 := p.MutexCreate()
	if h1 == h2 {
		t.Fatal("MutexCreate must return distinct handles")
	}
	m := p.Mutexes[h1]
	m.Lock(p.Executor, fakeBlocker{})
	m.Unlock()
}

func TestSemAndCondvarCreateInstallUnderTheirHandle(t *testing.T) {
	p := freshRoot(t)
	s := p.Sems[p.SemCreate(0)]
	if s == nil {
		t.Fatal("SemCreate must install the semaphore under its handle")
	}
	c := p.Condvars[p.CondvarCreate()]
	if c == nil {
		t.Fatal("CondvarCreate must install the condvar under its handle")
	}
}

func TestNewFromImageBuildsRunnableProcessAtLoadBase(t *testing.T) {
	alloc := freshAlloc(t, 256)
	img := make([]byte, 16)
	p, err := NewFromImage(alloc, img, []string{"prog", "a"})
	if err != 0 {
		t.Fatalf("NewFromImage failed: %d", err)
	}
	root := p.RootThread()
	if root.Ctx.Rip != loadBase {
		t.Fatalf("Rip = %#x, want loadBase", root.Ctx.Rip)
	}
	if root.Ctx.Rdi != 2 {
		t.Fatalf("Rdi (argc) = %d, want 2", root.Ctx.Rdi)
	}
	if root.GetState() != thread.Runnable {
		t.Fatal("NewFromImage's root thread must be Runnable")
	}
}

func TestOwnerTracksAndForgetsThreads(t *testing.T) {
	p := freshRoot(t)
	root := p.RootThread()
	if owner, ok := Owner(root); !ok || owner != p {
		t.Fatal("Owner must resolve the root thread back to its process")
	}
	p.Exit(0)
	if _, ok := Owner(root); ok {
		t.Fatal("Exit must forget every thread's owner entry")
	}
}

type fakeBlocker struct{}

func (fakeBlocker) SetWaiting()  {}
func (fakeBlocker) SetRunnable() {}
