package budget

import (
	"testing"
	"time"
)

func TestSchedulerRoundRobinsAdmittedRequests(t *testing.T) {
	s := NewScheduler()
	s.Admit(1, 10, 0)
	s.Admit(2, 10, 0)

	first := s.Next(5)
	second := s.Next(5)
	third := s.Next(5)
	if first.ID != 1 || second.ID != 2 || third.ID != 1 {
		t.Fatalf("round robin order = %d, %d, %d; want 1, 2, 1", first.ID, second.ID, third.ID)
	}
}

func TestSchedulerNextRefillsBudget(t *testing.T) {
	s := NewScheduler()
	r := s.Admit(7, 10, 0)
	r.Budget.Charge(11) // drain the starting budget past zero
	if !r.Budget.Exhausted() {
		t.Fatal("expected budget to be exhausted after draining it")
	}
	got := s.Next(20)
	if got.ID != 7 {
		t.Fatalf("got request %d, want 7", got.ID)
	}
	if got.Budget.Exhausted() {
		t.Fatal("Next should have refilled the budget for this tick")
	}
}

func TestSchedulerReleaseRemovesRequest(t *testing.T) {
	s := NewScheduler()
	s.Admit(1, 10, 0)
	s.Admit(2, 10, 0)
	s.Release(1)
	if _, ok := s.byID[1]; ok {
		t.Fatal("request 1 should have been released")
	}
	for i := 0; i < 3; i++ {
		if got := s.Next(5); got.ID != 2 {
			t.Fatalf("Next() = %d, want 2 (only request left)", got.ID)
		}
	}
}

func TestSchedulerNextOnEmptyQueueReturnsNil(t *testing.T) {
	s := NewScheduler()
	if s.Next(5) != nil {
		t.Fatal("expected nil from an empty scheduler")
	}
}

func TestOverdueRequestSurfacesViaNextOverdue(t *testing.T) {
	s := NewScheduler()
	s.Admit(1, 10, time.Millisecond)
	s.Admit(2, 10, time.Hour) // not due any time soon

	time.Sleep(5 * time.Millisecond)

	r := s.NextOverdue()
	if r == nil || r.ID != 1 {
		t.Fatalf("NextOverdue() = %v, want request 1", r)
	}
	if s.NextOverdue() != nil {
		t.Fatal("request 2's deadline has not passed yet")
	}
}

func TestRequestNotOverdueWithZeroDeadline(t *testing.T) {
	r := &Request{ID: 1}
	if r.Overdue() {
		t.Fatal("a request with no deadline is never overdue")
	}
}
