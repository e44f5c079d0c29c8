// Package syscall implements spec §4.5's syscall surface: decoding the
// syscall number and arguments out of a trapped thread's user context,
// dispatching to the kernel operation it names, and writing the result
// back per the ABI's "two return words in the first two argument
// registers" convention. Grounded on defs/stat/limits for the argument
// and result vocabulary, and on ksync/executor/reqproto/ktask for how
// each family of operation actually suspends and resumes a caller; no
// teacher package plays this role (biscuit's syscall.go dispatches into a
// goroutine-backed kernel that has no equivalent trap/register ABI), so
// the dispatch table itself is fresh code built directly from spec §4.5's
// surface table. Installed into the trap layer via Install, mirroring
// ksync.Blocker_i's setter-not-import anti-cycle pattern.
package syscall

import (
	"sync"

	"vesper/blkfs"
	"vesper/defs"
	"vesper/executor"
	"vesper/fdops"
	"vesper/frame"
	"vesper/ktask"
	"vesper/pipe"
	"vesper/process"
	"vesper/reqproto"
	"vesper/stat"
	"vesper/stats"
	"vesper/thread"
	"vesper/trap"
	"vesper/vfs"
	"vesper/vmarea"
)

// Num identifies a syscall by number, read out of the user context's
// accumulator (Ctx.Rax) at trap entry.
type Num uint64

const (
	SysProcExit Num = iota
	SysProcCreate
	SysProcWait
	SysFork
	SysExec
	SysYield
	SysThreadCreate
	SysThreadExit
	SysThreadJoin
	SysGetPid
	SysGetTid
	SysOpen
	SysRead
	SysWrite
	SysClose
	SysPipe
	SysDup
	SysDup2
	SysFstat
	SysMutexCreate
	SysMutexLock
	SysMutexUnlock
	SysSemCreate
	SysSemUp
	SysSemDown
	SysCondvarCreate
	SysCondvarWait
	SysCondvarSignal
)

// maxUserString caps how many bytes a path/argv string read from user
// memory may span before Dispatch gives up and returns ENAMETOOLONG.
const maxUserString = 256

// maxArgv caps how many argv pointers ReadUserArgv (and so ProcCreate and
// Exec) will walk before giving up.
const maxArgv = 64

// Install wires Dispatch into the trap layer; called once during boot.
func Install() { trap.SetSyscallHandler(Dispatch) }

// Dispatch implements trap.HandlerFn: it looks up the process owning t,
// decodes the syscall number and arguments from t.Ctx, and runs the
// matching operation.
func Dispatch(t *thread.Thread_t, f *trap.Frame_t) {
	_ = f
	p, ok := process.Owner(t)
	if !ok {
		panic("syscall dispatched for a thread with no owning process")
	}

	num := t.Ctx.Rax
	a1, a2, a3, a4 := t.Ctx.Rdi, t.Ctx.Rsi, t.Ctx.Rdx, t.Ctx.Rcx

	switch Num(num) {
	case SysProcExit:
		p.Exit(int(int32(a1)))
	case SysProcCreate:
		sysProcCreate(p, t, a1, a2, a3)
	case SysProcWait:
		sysProcWait(p, t, a1)
	case SysFork:
		sysFork(p, t)
	case SysExec:
		sysExec(p, t, a1, a2)
	case SysYield:
		sysYield(p, t)
	case SysThreadCreate:
		tid, err := p.ThreadCreate(a1, a2, a3)
		ret(t, uint64(tid), uint64(err))
	case SysThreadExit:
		p.ThreadExit(t)
	case SysThreadJoin:
		sysThreadJoin(p, t, a1)
	case SysGetPid:
		ret(t, uint64(p.Pid), 0)
	case SysGetTid:
		ret(t, uint64(t.Tid), 0)
	case SysOpen:
		sysOpen(p, t, a1, a2, a3)
	case SysRead:
		sysReadWrite(p, t, a1, a2, a3, a4, true)
	case SysWrite:
		sysReadWrite(p, t, a1, a2, a3, a4, false)
	case SysClose:
		err := p.Files.Close(int(a1))
		ret(t, 0, uint64(err))
	case SysPipe:
		sysPipe(p, t)
	case SysDup:
		nfd, err := p.Files.Dup(int(a1))
		ret(t, uint64(nfd), uint64(err))
	case SysDup2:
		err := p.Files.Dup2(int(a1), int(a2))
		ret(t, 0, uint64(err))
	case SysFstat:
		sysFstat(p, t, a1, a2)
	case SysMutexCreate:
		ret(t, uint64(p.MutexCreate()), 0)
	case SysMutexLock:
		if m, ok := p.Mutexes[int(a1)]; ok {
			m.Lock(p.Executor, t)
		}
		ret(t, 0, 0)
	case SysMutexUnlock:
		if m, ok := p.Mutexes[int(a1)]; ok {
			m.Unlock()
		}
		ret(t, 0, 0)
	case SysSemCreate:
		ret(t, uint64(p.SemCreate(int(int32(a1)))), 0)
	case SysSemUp:
		if s, ok := p.Sems[int(a1)]; ok {
			s.Up()
		}
		ret(t, 0, 0)
	case SysSemDown:
		if s, ok := p.Sems[int(a1)]; ok {
			s.Down(p.Executor, t)
		}
		ret(t, 0, 0)
	case SysCondvarCreate:
		ret(t, uint64(p.CondvarCreate()), 0)
	case SysCondvarWait:
		c, cok := p.Condvars[int(a1)]
		m, mok := p.Mutexes[int(a2)]
		if cok && mok {
			c.Wait(p.Executor, m, t)
		}
		ret(t, 0, 0)
	case SysCondvarSignal:
		if c, ok := p.Condvars[int(a1)]; ok {
			c.Signal()
		}
		ret(t, 0, 0)
	default:
		ret(t, uint64(defs.Max), uint64(-defs.ENOSYS))
	}
}

// ret writes the syscall's two return words into the ABI's result
// registers: the first two argument registers, per spec §6's "two return
// words in the first two argument registers on return".
func ret(t *thread.Thread_t, a, b uint64) {
	t.Ctx.Rdi = a
	t.Ctx.Rsi = b
}

func sysFork(p *process.Process_t, t *thread.Thread_t) {
	child, err := p.Fork(t)
	if err != 0 {
		ret(t, uint64(defs.Max), uint64(err))
		return
	}
	ret(t, uint64(child.Pid), 0)
}

// sysExec reads the path and argv out of user memory, loads the named
// file as the process's new image, and rewrites the caller's context to
// start it. On success it must not touch Ctx again: Process.Exec already
// pointed Rip/Rsp/Rdi/Rsi at the new program, and those are not this
// call's return values to overwrite.
func sysExec(p *process.Process_t, t *thread.Thread_t, pathPtr, argvPtr uint64) {
	path, perr := readUserPath(p.AS, uintptr(pathPtr))
	if perr != 0 {
		ret(t, uint64(defs.Max), uint64(perr))
		return
	}
	argv, aerr := readUserArgv(p.AS, uintptr(argvPtr))
	if aerr != 0 {
		ret(t, uint64(defs.Max), uint64(aerr))
		return
	}
	img, ferr := FS.ReadAll(path)
	if ferr != 0 {
		ret(t, uint64(defs.Max), uint64(ferr))
		return
	}
	if eerr := p.Exec(t, img, argv); eerr != 0 {
		ret(t, uint64(defs.Max), uint64(eerr))
	}
}

// sysProcCreate loads path's contents as a brand-new process (this core's
// flat-namespace stand-in for a real loader — see process.NewFromImage)
// and returns its pid, or MAX on any failure. name is read only for its
// side effect of validating the pointer; this core has no process-name
// table to install it into.
func sysProcCreate(p *process.Process_t, t *thread.Thread_t, namePtr, pathPtr, argvPtr uint64) {
	if _, err := readUserPath(p.AS, uintptr(namePtr)); err != 0 {
		ret(t, uint64(defs.Max), uint64(err))
		return
	}
	path, perr := readUserPath(p.AS, uintptr(pathPtr))
	if perr != 0 {
		ret(t, uint64(defs.Max), uint64(perr))
		return
	}
	argv, aerr := readUserArgv(p.AS, uintptr(argvPtr))
	if aerr != 0 {
		ret(t, uint64(defs.Max), uint64(aerr))
		return
	}
	img, ferr := FS.ReadAll(path)
	if ferr != 0 {
		ret(t, uint64(defs.Max), uint64(ferr))
		return
	}
	child, cerr := process.NewFromImage(p.Alloc(), img, argv)
	if cerr != 0 {
		ret(t, uint64(defs.Max), uint64(cerr))
		return
	}
	ret(t, uint64(child.Pid), 0)
}

// sysProcWait parks the caller until pid's root thread exits, reading its
// exit code from the child's ExitCode field once the wake fires (spec
// §4.5's "executor task polls child root thread's Exited state" — here
// done via thread.AddExitWaker instead of polling, since it already fires
// exactly once on Exited).
func sysProcWait(p *process.Process_t, t *thread.Thread_t, pidArg uint64) {
	pid := defs.Pid_t(int32(pidArg))
	child, ok := p.ChildProcess(pid)
	if !ok {
		ret(t, uint64(defs.Max), uint64(-defs.ECHILD))
		return
	}
	t.SetWaiting()
	child.RootThread().AddExitWaker(func() {
		t.Ctx.Rdi = uint64(child.Pid)
		t.Ctx.Rsi = uint64(int64(int32(child.ExitCode)))
		t.SetRunnable()
	})
}

// sysThreadJoin implements spec §4.5's "only tid 0 may call" restriction.
func sysThreadJoin(p *process.Process_t, t *thread.Thread_t, tidArg uint64) {
	if t.Tid != defs.RootTid {
		ret(t, uint64(defs.Max), uint64(-defs.EPERM))
		return
	}
	target, ok := p.Thread(defs.Tid_t(int32(tidArg)))
	if !ok {
		ret(t, uint64(defs.Max), uint64(-defs.ESRCH))
		return
	}
	t.SetWaiting()
	target.AddExitWaker(func() {
		t.Ctx.Rdi = 0
		t.Ctx.Rsi = 0
		t.SetRunnable()
	})
}

// sysYield spawns a self-completing task that marks the caller Runnable
// after a single poll, per spec §4.5's Yield effect — just enough of a
// suspend/resume round trip to give the scheduler a chance to run someone
// else in between.
func sysYield(p *process.Process_t, t *thread.Thread_t) {
	t.SetWaiting()
	p.Executor.Spawn(func(wake func()) executor.Poll_t {
		t.SetRunnable()
		return executor.Ready
	})
}

func sysPipe(p *process.Process_t, t *thread.Thread_t) {
	rd, wr, err := pipe.MakePipe(p.Alloc(), frame.PGSIZE)
	if err != 0 {
		ret(t, uint64(defs.Max), uint64(err))
		return
	}
	rfdn := p.Files.Insert(&vfs.Fd_t{Fops: rd, Perms: vfs.FD_READ})
	wfdn := p.Files.Insert(&vfs.Fd_t{Fops: wr, Perms: vfs.FD_WRITE})
	ret(t, uint64(rfdn), uint64(wfdn))
}

func sysFstat(p *process.Process_t, t *thread.Thread_t, fdArg, statPtr uint64) {
	fd, ok := p.Files.Get(int(fdArg))
	if !ok {
		ret(t, uint64(defs.Max), uint64(-defs.EBADF))
		return
	}
	var st stat.Stat_t
	if err := fd.Fops.Fstat(&st); err != 0 {
		ret(t, uint64(defs.Max), uint64(err))
		return
	}
	if err := writeUserBytes(p.AS, uintptr(statPtr), st.Bytes()); err != 0 {
		ret(t, uint64(defs.Max), uint64(err))
		return
	}
	ret(t, 0, 0)
}

// openDevice resolves one of this core's reserved device names; the
// on-disk filesystem is a flat namespace (blkfs.Fs_t has no directories),
// so these names never collide with a real on-disk file.
func openDevice(name string) (fdops.Fdops_i, bool) {
	switch name {
	case "stdin":
		return Stdin, true
	case "stdout":
		return Stdout, true
	case "null":
		return vfs.DevnullFile{}, true
	case "prof":
		pf, err := stats.OpenProfFile()
		if err != nil {
			return nil, false
		}
		return pf, true
	}
	return nil, false
}

// permsFor translates blkfs's O_RDONLY/O_WRONLY/O_RDWR flags into
// vfs.Fd_t's permission bits.
func permsFor(flags int) int {
	switch flags & 0x3 {
	case blkfs.O_WRONLY:
		return vfs.FD_WRITE
	case blkfs.O_RDWR:
		return vfs.FD_READ | vfs.FD_WRITE
	default:
		return vfs.FD_READ
	}
}

// sysOpen handles both reserved device names (synchronous) and real
// on-disk files (routed through the FS server as an FsReq, per spec
// §4.5's "Open ... caller -> Waiting with per-request waker").
func sysOpen(p *process.Process_t, t *thread.Thread_t, pathPtr, flagsArg, outFdPtr uint64) {
	path, perr := readUserPath(p.AS, uintptr(pathPtr))
	if perr != 0 {
		ret(t, uint64(defs.Max), uint64(perr))
		return
	}
	flags := int(int32(flagsArg))

	if dev, ok := openDevice(path); ok {
		fdn := p.Files.Insert(&vfs.Fd_t{Fops: dev, Perms: permsFor(flags)})
		writeUserWord(p.AS, uintptr(outFdPtr), uint64(fdn))
		ret(t, uint64(fdn), 0)
		return
	}

	job := &fsJob{op: fsOpKindOpen, path: path, flags: flags}
	submitFsJob(p, t, job, func() {
		if job.err != 0 {
			writeUserWord(p.AS, uintptr(outFdPtr), uint64(defs.Max))
			return
		}
		fdn := p.Files.Insert(&vfs.Fd_t{Fops: job.file, Perms: permsFor(flags)})
		writeUserWord(p.AS, uintptr(outFdPtr), uint64(fdn))
	})
}

// sysReadWrite implements spec §4.5's Read/Write row: synchronous for
// stdin/stdout/null/prof, async-on-the-write-end-closing for a pipe read
// (pipe.Pipe_t.AsyncRead already implements exactly this wake/retry
// contract), and FsReq for an on-disk file (both directions).
func sysReadWrite(p *process.Process_t, t *thread.Thread_t, fdArg, bufPtr, length, outLenPtr uint64, isRead bool) {
	fd, ok := p.Files.Get(int(fdArg))
	if !ok {
		ret(t, uint64(defs.Max), uint64(-defs.EBADF))
		return
	}

	if onDisk, ok := fd.Fops.(*blkfs.OnDiskFile); ok {
		var job *fsJob
		if isRead {
			job = &fsJob{op: fsOpKindRead, file: onDisk, dst: vmarea.NewUserbuf(p.AS, uintptr(bufPtr), int(length))}
		} else {
			job = &fsJob{op: fsOpKindWrite, file: onDisk, src: vmarea.NewUserbuf(p.AS, uintptr(bufPtr), int(length))}
		}
		submitFsJob(p, t, job, func() {
			writeUserWord(p.AS, uintptr(outLenPtr), uint64(job.n))
		})
		return
	}

	if pp, ok := fd.Fops.(*pipe.Pipe_t); ok && isRead {
		dst := vmarea.NewUserbuf(p.AS, uintptr(bufPtr), int(length))
		t.SetWaiting()
		var attempt func()
		attempt = func() {
			n, _, ready := pp.AsyncRead(dst, attempt)
			if ready {
				writeUserWord(p.AS, uintptr(outLenPtr), uint64(n))
				t.SetRunnable()
			}
		}
		attempt()
		return
	}

	var n int
	var err defs.Err_t
	if isRead {
		n, err = fd.Fops.Read(vmarea.NewUserbuf(p.AS, uintptr(bufPtr), int(length)))
	} else {
		n, err = fd.Fops.Write(vmarea.NewUserbuf(p.AS, uintptr(bufPtr), int(length)))
	}
	writeUserWord(p.AS, uintptr(outLenPtr), uint64(n))
	ret(t, uint64(n), uint64(err))
}

// readUserPath reads a NUL-terminated string out of user memory at ptr,
// capped at maxUserString bytes.
func readUserPath(as *vmarea.AddressSpace, ptr uintptr) (string, defs.Err_t) {
	ub := vmarea.NewUserbuf(as, ptr, maxUserString)
	buf := make([]byte, maxUserString)
	n, err := ub.Uioread(buf)
	if err != 0 {
		return "", err
	}
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return string(buf[:i]), 0
		}
	}
	return "", -defs.ENAMETOOLONG
}

// readUserArgv reads a NULL-terminated array of string pointers out of
// user memory at ptr (the layout process.pushArgv's stack-top array
// writes), resolving each into a string via readUserPath.
func readUserArgv(as *vmarea.AddressSpace, ptr uintptr) ([]string, defs.Err_t) {
	ub := vmarea.NewUserbuf(as, ptr, maxArgv*8)
	raw := make([]byte, maxArgv*8)
	n, err := ub.Uioread(raw)
	if err != 0 {
		return nil, err
	}
	var out []string
	for i := 0; i+8 <= n; i += 8 {
		word := getU64(raw, i)
		if word == 0 {
			break
		}
		s, serr := readUserPath(as, uintptr(word))
		if serr != 0 {
			return nil, serr
		}
		out = append(out, s)
	}
	return out, 0
}

func getU64(b []byte, off int) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[off+i]) << (8 * uint(i))
	}
	return v
}

func writeUserBytes(as *vmarea.AddressSpace, ptr uintptr, data []byte) defs.Err_t {
	area, ok := as.Lookup(ptr)
	if !ok {
		return -defs.EFAULT
	}
	return area.WriteData(int(ptr-area.Start), data)
}

func writeUserWord(as *vmarea.AddressSpace, ptr uintptr, v uint64) defs.Err_t {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return writeUserBytes(as, ptr, b)
}

// Stdin/Stdout are the shared console endpoints every process's "stdin"/
// "stdout" Open resolves to — one input buffer and one serialized writer
// system-wide, matching a real single-console boot environment.
var (
	Stdin  = &vfs.StdinFile{}
	Stdout = &vfs.StdoutFile{}
)

// FS is the on-disk filesystem Open/Read/Write route non-device paths to.
var FS *blkfs.Fs_t

var fsSrv *ktask.KThread_t

// InstallFS wires fs as the on-disk filesystem and constructs its
// FsServer kernel thread (spec §4.9); called once during boot, after
// Install.
func InstallFS(fs *blkfs.Fs_t, ktid int, entry uintptr) *ktask.KThread_t {
	FS = fs
	fsSrv = ktask.NewServer(ktid, ktask.RoleFsServer, entry, processFsRequest)
	return fsSrv
}

// fsOpKind distinguishes which blkfs operation a pending fsJob performs.
type fsOpKind int

const (
	fsOpKindOpen fsOpKind = iota
	fsOpKindRead
	fsOpKindWrite
)

// fsJob is this package's typed side table entry for an in-flight FsReq
// (spec §4.9's "result_ptr holds the answer, written by the server" —
// adapted to carry typed Go fields instead of a raw byte payload, since
// this core's FS server and its clients share one address space and
// don't need a literal wire format between them). Keyed by the
// reqproto.Request_t's Id.
type fsJob struct {
	op    fsOpKind
	path  string
	flags int
	file  *blkfs.OnDiskFile
	dst   fdops.Userio_i
	src   fdops.Userio_i
	n     int
	err   defs.Err_t
}

var (
	fsJobsMu sync.Mutex
	fsJobs   = make(map[uint64]*fsJob)
)

// processFsRequest is the FS server's ktask.ProcessFn: it looks up the
// job the requesting syscall stashed under req.Id and performs the real
// blkfs call.
func processFsRequest(req *reqproto.Request_t) {
	fsJobsMu.Lock()
	job := fsJobs[req.Id]
	fsJobsMu.Unlock()
	if job == nil {
		return
	}
	switch job.op {
	case fsOpKindOpen:
		job.file, job.err = blkfs.Open(FS, job.path, job.flags)
	case fsOpKindRead:
		job.n, job.err = job.file.Read(job.dst)
	case fsOpKindWrite:
		job.n, job.err = job.file.Write(job.src)
	}
}

// submitFsJob enqueues job as an FsReq, parks the caller, and spawns the
// poll task that wakes it once the FS server has processed it — the same
// registered-flag shape ksync's Lock/Down/Wait use for their executor
// tasks.
func submitFsJob(p *process.Process_t, t *thread.Thread_t, job *fsJob, onReady func()) {
	req := fsSrv.Server.AddRequest(reqproto.FsReq, nil, 0)
	fsJobsMu.Lock()
	fsJobs[req.Id] = job
	fsJobsMu.Unlock()

	t.SetWaiting()
	registered := false
	p.Executor.Spawn(func(wake func()) executor.Poll_t {
		if !registered {
			fsSrv.Server.RegisterWaiter(req, wake)
			registered = true
			return executor.Pending
		}
		fsJobsMu.Lock()
		delete(fsJobs, req.Id)
		fsJobsMu.Unlock()
		onReady()
		t.SetRunnable()
		return executor.Ready
	})
}
