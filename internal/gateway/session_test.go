package gateway

import "testing"

func TestEnqueueOutboundDropsOldestWhenFull(t *testing.T) {
	s := &Session{outbound: make(chan []byte, 2)}

	s.enqueueOutbound([]byte("1"))
	s.enqueueOutbound([]byte("2"))
	s.enqueueOutbound([]byte("3")) // queue full, should drop "1" and keep "2","3"

	first := <-s.outbound
	second := <-s.outbound
	if string(first) != "2" || string(second) != "3" {
		t.Errorf("got %q, %q, want %q, %q", first, second, "2", "3")
	}
}

func TestEnqueueOutboundWithinCapacityKeepsOrder(t *testing.T) {
	s := &Session{outbound: make(chan []byte, 4)}
	s.enqueueOutbound([]byte("a"))
	s.enqueueOutbound([]byte("b"))

	if got := string(<-s.outbound); got != "a" {
		t.Errorf("first = %q, want %q", got, "a")
	}
	if got := string(<-s.outbound); got != "b" {
		t.Errorf("second = %q, want %q", got, "b")
	}
}

func TestRegistryAddRemoveLen(t *testing.T) {
	r := NewRegistry()
	s1 := &Session{ID: "sess-1"}
	s2 := &Session{ID: "sess-2"}

	r.Add(s1)
	r.Add(s2)
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	r.Remove("sess-1")
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	all := r.All()
	if len(all) != 1 || all[0].ID != "sess-2" {
		t.Errorf("All() = %+v, want only sess-2", all)
	}
}

func TestRegistryRemoveUnknownIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.Add(&Session{ID: "sess-1"})
	r.Remove("does-not-exist")
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}
