package events

import (
	"testing"
	"time"

	"github.com/ashureev/sagredo/internal/prover"
)

func event(id string, step int, state prover.State) prover.Event {
	return prover.Event{AttemptID: id, Step: step, State: state, At: time.Now()}
}

func TestHub_DeliversToSubscribers(t *testing.T) {
	h := NewHub(10, nil)
	missed, ch, cancel := h.Subscribe("a", 0)
	defer cancel()
	if len(missed) != 0 {
		t.Fatalf("Expected no missed events, got %d", len(missed))
	}

	h.Observe(event("a", 1, prover.StateAwaitingOracle))
	h.Observe(event("b", 1, prover.StateAwaitingOracle))

	select {
	case msg := <-ch:
		if msg.Event.AttemptID != "a" || msg.Event.State != prover.StateAwaitingOracle {
			t.Errorf("Unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
	select {
	case msg := <-ch:
		t.Errorf("Should not receive other attempts' events, got %+v", msg)
	default:
	}
}

func TestHub_ReplaysMissedEvents(t *testing.T) {
	h := NewHub(10, nil)
	h.Observe(event("a", 0, prover.StateInit))
	h.Observe(event("a", 1, prover.StateAwaitingOracle))
	h.Observe(event("a", 1, prover.StateAwaitingCheck))

	all := h.Missed("a", 0)
	if len(all) != 3 {
		t.Fatalf("Expected 3 buffered events, got %d", len(all))
	}
	after := h.Missed("a", all[0].ID)
	if len(after) != 2 || after[0].Event.State != prover.StateAwaitingOracle {
		t.Errorf("Unexpected resume result %+v", after)
	}
}

func TestHub_BoundsReplayPerAttempt(t *testing.T) {
	h := NewHub(2, nil)
	for i := 0; i < 5; i++ {
		h.Observe(event("a", i, prover.StateContinue))
	}
	h.Observe(event("b", 0, prover.StateInit))

	if got := len(h.Missed("a", 0)); got != 2 {
		t.Errorf("Expected 2 buffered events for a, got %d", got)
	}
	if got := len(h.Missed("b", 0)); got != 1 {
		t.Errorf("Attempt b should keep its own history, got %d", got)
	}
}

func TestHub_TerminalEventClosesSubscriptions(t *testing.T) {
	h := NewHub(10, nil)
	_, ch, cancel := h.Subscribe("a", 0)
	defer cancel()

	h.Observe(event("a", 1, prover.StateComplete))

	msg, ok := <-ch
	if !ok || msg.Event.State != prover.StateComplete {
		t.Fatalf("Expected the terminal event before close, got %+v ok=%v", msg, ok)
	}
	if _, ok := <-ch; ok {
		t.Fatal("Expected channel to be closed after terminal event")
	}

	missed, late, lateCancel := h.Subscribe("a", 0)
	defer lateCancel()
	if len(missed) != 1 {
		t.Errorf("Late subscriber should get the replay, got %d", len(missed))
	}
	if _, ok := <-late; ok {
		t.Error("Late subscriber channel should already be closed")
	}
}

func TestHub_CancelIsIdempotent(t *testing.T) {
	h := NewHub(10, nil)
	_, ch, cancel := h.Subscribe("a", 0)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("Expected channel closed after cancel")
	}
	h.Observe(event("a", 1, prover.StateAwaitingOracle))
}

func TestHub_Prune(t *testing.T) {
	h := NewHub(10, nil)
	h.Observe(event("a", 0, prover.StateInit))
	h.Prune("a")
	if got := h.Missed("a", 0); len(got) != 0 {
		t.Errorf("Expected no events after prune, got %d", len(got))
	}
}
