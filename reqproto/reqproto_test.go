package reqproto

import "testing"

func TestAddRequestAllocatesMonotonicIDs(t *testing.T) {
	s := NewServer()
	r1 := s.AddRequest(FsReq, nil, 0)
	r2 := s.AddRequest(FsReq, nil, 0)
	if r2.Id <= r1.Id {
		t.Fatalf("ids = %d, %d, want strictly increasing", r1.Id, r2.Id)
	}
}

func TestPopRequestIsFIFO(t *testing.T) {
	s := NewServer()
	r1 := s.AddRequest(FsReq, []byte("a"), 0)
	r2 := s.AddRequest(FsReq, []byte("b"), 0)
	if got := s.PopRequest(); got != r1 {
		t.Fatal("PopRequest must return requests in FIFO order")
	}
	if got := s.PopRequest(); got != r2 {
		t.Fatal("PopRequest must return requests in FIFO order")
	}
	if got := s.PopRequest(); got != nil {
		t.Fatal("PopRequest on an empty queue must return nil")
	}
}

func TestWakeRequestFiresRegisteredWaiter(t *testing.T) {
	s := NewServer()
	req := s.AddRequest(FsReq, nil, 0)
	fired := false
	s.RegisterWaiter(req, func() { fired = true })
	if fired {
		t.Fatal("RegisterWaiter must not fire before the response lands")
	}
	s.WakeRequest(req.Id)
	if !fired {
		t.Fatal("WakeRequest must fire the registered waiter")
	}
	if !s.Satisfied(req) {
		t.Fatal("Satisfied must report true once WakeRequest has landed")
	}
}

func TestRegisterWaiterFiresImmediatelyIfAlreadySatisfied(t *testing.T) {
	s := NewServer()
	req := s.AddRequest(FsReq, nil, 0)
	s.WakeRequest(req.Id)

	fired := false
	s.RegisterWaiter(req, func() { fired = true })
	if !fired {
		t.Fatal("RegisterWaiter must fire immediately for an already-satisfied request")
	}
}

func TestLastRespIDOnlyIncreases(t *testing.T) {
	s := NewServer()
	r1 := s.AddRequest(FsReq, nil, 0)
	r2 := s.AddRequest(FsReq, nil, 0)
	s.WakeRequest(r2.Id)
	if s.LastRespID() != r2.Id {
		t.Fatalf("LastRespID = %d, want %d", s.LastRespID(), r2.Id)
	}
	s.WakeRequest(r1.Id) // a stale/out-of-order completion must not regress it
	if s.LastRespID() != r2.Id {
		t.Fatal("LastRespID must never decrease")
	}
}

func TestNeedScheduleReflectsQueueDepth(t *testing.T) {
	s := NewServer()
	if s.NeedSchedule() {
		t.Fatal("empty server must not need scheduling")
	}
	s.AddRequest(BlkReq, nil, 0)
	if !s.NeedSchedule() {
		t.Fatal("server with a queued request must need scheduling")
	}
	s.PopRequest()
	if s.NeedSchedule() {
		t.Fatal("server must not need scheduling once drained")
	}
}
