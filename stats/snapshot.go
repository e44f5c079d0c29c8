package stats

import (
	"bytes"
	"time"

	"github.com/google/pprof/profile"

	"vesper/defs"
	"vesper/fdops"
)

// Snapshot is the set of kernel-wide counters exposed over the D_PROF
// device. Each counter becomes one pprof sample labelled by name, so a
// postmortem `go tool pprof` session can graph scheduler/executor activity
// across a run without a separate wire format.
type Snapshot struct {
	SchedulerPasses   Counter_t
	ExecutorPolls     Counter_t
	ExecutorWakeups   Counter_t
	TimerTicks        Counter_t
	ServerReboots     Counter_t
	KernelThreadCycles Cycles_t
}

// Global is the process-wide counter set the scheduler and executor update.
var Global Snapshot

// Profile serializes the snapshot into a pprof Profile with one sample
// value per counter, named after its field.
func (s *Snapshot) Profile() *profile.Profile {
	st := profile.ValueType{Type: "count", Unit: "count"}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{&st},
		TimeNanos:  time.Now().UnixNano(),
	}

	add := func(name string, v int64) {
		fn := &profile.Function{
			ID:   uint64(len(p.Function)) + 1,
			Name: name,
		}
		p.Function = append(p.Function, fn)
		loc := &profile.Location{
			ID:   uint64(len(p.Location)) + 1,
			Line: []profile.Line{{Function: fn}},
		}
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{v},
		})
	}

	add("scheduler_passes", int64(s.SchedulerPasses.Get()))
	add("executor_polls", int64(s.ExecutorPolls.Get()))
	add("executor_wakeups", int64(s.ExecutorWakeups.Get()))
	add("timer_ticks", int64(s.TimerTicks.Get()))
	add("server_reboots", int64(s.ServerReboots.Get()))
	add("kernel_thread_cycles", s.KernelThreadCycles.Get())

	return p
}

// ProfFile is the D_PROF device's fdops.Fdops_i: opening it captures a
// serialized pprof snapshot of Global once (matching a real /proc-style
// file's read-consistent-snapshot behavior), and Read copies out of that
// frozen buffer rather than re-serializing on every read.
type ProfFile struct {
	data []byte
	off  int
}

// OpenProfFile snapshots Global into a pprof-encoded ProfFile.
func OpenProfFile() (*ProfFile, error) {
	var buf bytes.Buffer
	if err := Global.Profile().Write(&buf); err != nil {
		return nil, err
	}
	return &ProfFile{data: buf.Bytes()}, nil
}

func (f *ProfFile) Close() defs.Err_t  { return 0 }
func (f *ProfFile) Reopen() defs.Err_t { return 0 }

func (f *ProfFile) Lseek(off, whence int) (int, defs.Err_t) {
	switch whence {
	case 0:
		f.off = off
	case 1:
		f.off += off
	case 2:
		f.off = len(f.data) + off
	default:
		return 0, -defs.EINVAL
	}
	if f.off < 0 {
		f.off = 0
	}
	return f.off, 0
}

func (f *ProfFile) Fstat(st fdops.FstatTarget) defs.Err_t {
	st.Wmode(0)
	st.Wsize(uint(len(f.data)))
	st.Wrdev(uint(defs.D_PROF))
	return 0
}

func (f *ProfFile) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if f.off >= len(f.data) {
		return 0, 0
	}
	n, err := dst.Uiowrite(f.data[f.off:])
	f.off += n
	return n, err
}

func (f *ProfFile) Write(fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
