package mirror

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := [][2]RequestStatus{
		{StatusPending, StatusApproved},
		{StatusPending, StatusRejected},
		{StatusApproved, StatusConflict},
		{StatusApproved, StatusReturned},
		{StatusConflict, StatusReturned},
		{StatusConflict, StatusForfeited},
	}
	for _, tr := range allowed {
		if !CanTransition(tr[0], tr[1]) {
			t.Fatalf("expected %s -> %s to be allowed", tr[0], tr[1])
		}
	}

	denied := [][2]RequestStatus{
		{StatusPending, StatusReturned},
		{StatusPending, StatusConflict},
		{StatusPending, StatusPending},
		{StatusApproved, StatusRejected},
		{StatusRejected, StatusApproved},
		{StatusReturned, StatusConflict},
		{StatusForfeited, StatusReturned},
		{StatusConflict, StatusApproved},
	}
	for _, tr := range denied {
		if CanTransition(tr[0], tr[1]) {
			t.Fatalf("unexpected transition %s -> %s allowed", tr[0], tr[1])
		}
	}
}

func TestNonTerminal(t *testing.T) {
	for s := range transitions {
		if got, want := s.NonTerminal(), len(transitions[s]) > 0; got != want {
			t.Fatalf("%s: NonTerminal() = %v, want %v", s, got, want)
		}
	}
}
