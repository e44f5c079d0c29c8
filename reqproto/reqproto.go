// Package reqproto implements the request/response correlation protocol
// spec §4.9 runs between a user thread's syscall and a kernel service
// thread's processing loop: monotonically increasing request ids, a
// per-server FIFO queue, and waker-based completion instead of blocking a
// goroutine on a channel. Grounded on fs/blk.go's Bdev_req_t/AckCh
// completion-channel idiom (MkRequest/AckCh<-), adapted from a
// one-shot channel per request (which presumes a parked OS thread per
// caller) to the spec's id-correlated waker fan-in, since this kernel has
// no goroutines to block — a caller instead spawns an executor task whose
// poll compares the server's last_resp_id against its own request id.
package reqproto

import "sync"

// Kind_t distinguishes which service a Request targets.
type Kind_t int

const (
	FsReq Kind_t = iota
	BlkReq
)

// Request_t is one in-flight request: a tagged union of the two supported
// kinds (BlkReq carries no payload of its own yet — see DESIGN.md's Open
// Question decision — it exists only so the id-correlation machinery below
// is exercised by more than one kind), plus the serialized arguments and a
// pointer (an offset into the caller's address space) the server writes
// its result to.
type Request_t struct {
	Id       uint64
	Kind     Kind_t
	Payload  []byte
	ResultPtr uintptr
}

// Server_t is a kernel service thread's request queue plus the
// monotonic id-allocation and response-tracking state clients poll
// against.
type Server_t struct {
	mu         sync.Mutex
	queue      []*Request_t
	nextID     uint64
	lastRespID uint64
	wakers     map[uint64]func()
}

// NewServer returns an empty server queue.
func NewServer() *Server_t {
	return &Server_t{wakers: make(map[uint64]func())}
}

// AddRequest enqueues req with a freshly allocated monotonically
// increasing id and returns it; the caller is expected to set its own
// state to Waiting and spawn a polling task immediately afterward.
func (s *Server_t) AddRequest(kind Kind_t, payload []byte, resultPtr uintptr) *Request_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	req := &Request_t{Id: s.nextID, Kind: kind, Payload: payload, ResultPtr: resultPtr}
	s.queue = append(s.queue, req)
	return req
}

// RegisterWaiter records wake to be fired once req's response lands,
// firing it immediately if the response has already landed (the poll
// function's "already satisfied on first check" case).
func (s *Server_t) RegisterWaiter(req *Request_t, wake func()) {
	s.mu.Lock()
	already := s.lastRespID >= req.Id
	if !already {
		s.wakers[req.Id] = wake
	}
	s.mu.Unlock()
	if already {
		wake()
	}
}

// Satisfied reports whether req's response has landed (last_resp_id >=
// req.Id), the poll condition the spec's client-side future checks.
func (s *Server_t) Satisfied(req *Request_t) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRespID >= req.Id
}

// PopRequest removes and returns the front of the queue, or nil if empty
// — the service thread's loop body calls this each iteration.
func (s *Server_t) PopRequest() *Request_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	req := s.queue[0]
	s.queue = s.queue[1:]
	return req
}

// NeedSchedule reports whether the service thread has work to do, part of
// the scheduler's kernel-thread need_schedule predicate (spec §4.6).
func (s *Server_t) NeedSchedule() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) > 0
}

// WakeRequest records reqID as the newest satisfied response and fires
// any waker registered for it — called by the service thread after
// processing a request, and by the panic-reboot path for a request that
// was current when its server died (spec §4.9).
func (s *Server_t) WakeRequest(reqID uint64) {
	s.mu.Lock()
	if reqID > s.lastRespID {
		s.lastRespID = reqID
	}
	wake := s.wakers[reqID]
	delete(s.wakers, reqID)
	s.mu.Unlock()
	if wake != nil {
		wake()
	}
}

// LastRespID reports the newest response id this server has completed,
// for the monotonicity testable property (spec §8 property 10).
func (s *Server_t) LastRespID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRespID
}
