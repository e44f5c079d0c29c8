// Package stats collects the handful of kernel-wide counters the scheduler,
// executor and kernel service threads maintain (tick count, poll count,
// kernel-thread cycle total) and can serialize them into a pprof profile for
// the D_PROF diagnostic device (see defs.D_PROF).
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"unsafe"
)

// Enabled gates whether counters actually accumulate; flipped on for a
// debug build the way biscuit gates its own Stats/Timing constants.
var Enabled = false

// Counter_t is a statistical counter, atomically updated.
type Counter_t int64

// Cycles_t holds an elapsed-tick total, atomically updated.
type Cycles_t int64

// Inc increments the counter when stats collection is enabled.
func (c *Counter_t) Inc() {
	if Enabled {
		atomic.AddInt64((*int64)(unsafe.Pointer(c)), 1)
	}
}

// Get reads the counter's current value.
func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(unsafe.Pointer(c)))
}

// Add adds elapsed ticks (since) to the cycle total when enabled.
func (c *Cycles_t) Add(since, now uint64) {
	if Enabled {
		atomic.AddInt64((*int64)(unsafe.Pointer(c)), int64(now-since))
	}
}

// Get reads the cycle total's current value.
func (c *Cycles_t) Get() int64 {
	return atomic.LoadInt64((*int64)(unsafe.Pointer(c)))
}

// Stats2String converts a struct of Counter_t/Cycles_t fields to a
// printable multi-line string, one field per line.
func Stats2String(st interface{}) string {
	if !Enabled {
		return ""
	}
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		switch {
		case strings.HasSuffix(t, "Counter_t"):
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		case strings.HasSuffix(t, "Cycles_t"):
			n := v.Field(i).Interface().(Cycles_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
	}
	return s + "\n"
}
