// Command kernel is the boot entry: it wires the frame allocator, kernel
// page-table windows, the on-disk filesystem's service thread, the syscall
// dispatcher, and the two-tier scheduler together in dependency order, then
// loads an init binary off the supplied disk image and drives the
// scheduler loop.
//
// This core has no real ring-3 switch to perform (spec.md's external
// collaborators list a UEFI/BIOS boot image builder and QEMU launcher as
// out of scope), so runUntilTrap below stands in for one: see its doc
// comment.
package main

import (
	"fmt"
	"os"

	"vesper/blkfs"
	"vesper/dmap"
	"vesper/frame"
	"vesper/process"
	"vesper/sched"
	"vesper/syscall"
	"vesper/thread"
	"vesper/trap"
)

// debug gates boot-sequence console output, mirroring fs.bdev_debug's
// package-level-boolean logging convention.
var debug = true

func dprintf(format string, args ...interface{}) {
	if debug {
		fmt.Printf(format, args...)
	}
}

// npages sizes the frame allocator for a single demo process plus its
// stack and argv blob.
const npages = 4096

// fsServerEntry is the FS server's processor_entry reinstall target (spec
// §4.9): a placeholder virtual address, since this core never actually
// jumps to it.
const fsServerEntry = 0x3000

// runUntilTrap stands in for the hardware ring-3 switch spec §4.6's
// scheduler step 2 (run_until_trap) performs on real silicon. Without a
// CPU model, the only trap this boot loop can honestly manufacture is a
// timer-IRQ preemption: it always fires, requiring no interpretation of
// the thread's Ctx, and exercises exactly the preemptive half of the
// two-tier scheduler. A real syscall trap only ever arises in tests, which
// populate Ctx and call syscall.Dispatch directly instead of going through
// a Scheduler_t.
func runUntilTrap(t *thread.Thread_t) *trap.Frame_t {
	return &trap.Frame_t{Ctx: t.Ctx, Num: trap.TimerIRQ, FromUser: true}
}

func usage() {
	fmt.Printf("Usage: kernel <disk image> <init file> [passes]\n")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 3 || len(os.Args) > 4 {
		usage()
	}
	imagePath, initName := os.Args[1], os.Args[2]
	passes := 10
	if len(os.Args) == 4 {
		n, err := fmt.Sscanf(os.Args[3], "%d", &passes)
		if n != 1 || err != nil {
			usage()
		}
	}

	disk, err := blkfs.OpenFileDisk(imagePath)
	if err != nil {
		dprintf("kernel: open %s: %v\n", imagePath, err)
		os.Exit(1)
	}
	defer disk.Close()

	fs, ferr := blkfs.OpenFS(disk)
	if ferr != 0 {
		dprintf("kernel: OpenFS: %d\n", ferr)
		os.Exit(1)
	}

	frame.Physmem = &frame.Physmem_t{}
	alloc := frame.Phys_init(npages)
	dmap.Init(nil)

	syscall.Install()
	fsSrv := syscall.InstallFS(fs, 1, fsServerEntry)

	scheduler := sched.New(runUntilTrap)
	scheduler.AddUnit(sched.ServerUnit(fsSrv))
	process.SetNewThreadHook(scheduler.Enqueue)

	img, rerr := fs.ReadAll(initName)
	if rerr != 0 {
		dprintf("kernel: read init %q: %d\n", initName, rerr)
		os.Exit(1)
	}
	p, perr := process.NewFromImage(alloc, img, []string{initName})
	if perr != 0 {
		dprintf("kernel: NewFromImage: %d\n", perr)
		os.Exit(1)
	}
	scheduler.AddUnit(sched.ExecutorUnit(p.Executor))

	dprintf("kernel: booted pid=%d from %q, running %d pass(es)\n", p.Pid, initName, passes)
	ran := 0
	for i := 0; i < passes; i++ {
		if !scheduler.Pass() {
			dprintf("kernel: idle after %d pass(es)\n", ran)
			break
		}
		ran++
	}
	dprintf("kernel: %d scheduler pass(es), %d timer tick(s)\n", ran, trap.Ticks())
}
