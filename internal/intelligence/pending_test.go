package intelligence

import (
	"testing"
	"time"
)

func TestPendingPutGetTake(t *testing.T) {
	p := NewPendingStore(time.Minute)
	defer p.Close()

	action := p.Put("usr_1", Proposal{Action: ActionUpdatePrice}, "Set price")
	if action.ID == "" {
		t.Fatal("expected action ID")
	}

	got, ok := p.Get("usr_1")
	if !ok || got.ID != action.ID {
		t.Fatalf("Get = %+v, ok=%v", got, ok)
	}

	taken, ok := p.Take("usr_1", action.ID)
	if !ok || taken.ID != action.ID {
		t.Fatalf("Take failed: ok=%v", ok)
	}

	if _, ok := p.Get("usr_1"); ok {
		t.Error("action still present after Take")
	}
}

func TestPendingTakeWrongIDLeavesAction(t *testing.T) {
	p := NewPendingStore(time.Minute)
	defer p.Close()

	p.Put("usr_1", Proposal{Action: ActionUpdateStatus}, "Mark sold")

	if _, ok := p.Take("usr_1", "act_wrong"); ok {
		t.Error("mismatched ID should not take the action")
	}
	if _, ok := p.Get("usr_1"); !ok {
		t.Error("action should survive a mismatched take")
	}
}

func TestPendingEmptyIDTakesWhatever(t *testing.T) {
	p := NewPendingStore(time.Minute)
	defer p.Close()

	action := p.Put("usr_1", Proposal{Action: ActionCreateClient}, "Create client")
	taken, ok := p.Take("usr_1", "")
	if !ok || taken.ID != action.ID {
		t.Error("empty ID should confirm the parked action")
	}
}

func TestPendingExpiresLazily(t *testing.T) {
	p := NewPendingStore(10 * time.Millisecond)
	defer p.Close()

	p.Put("usr_1", Proposal{Action: ActionUpdatePrice}, "Set price")
	time.Sleep(25 * time.Millisecond)

	if _, ok := p.Get("usr_1"); ok {
		t.Error("expired action should not be returned")
	}
	if _, ok := p.Take("usr_1", ""); ok {
		t.Error("expired action should not be confirmable")
	}
}

func TestPendingReplacedByNewerProposal(t *testing.T) {
	p := NewPendingStore(time.Minute)
	defer p.Close()

	first := p.Put("usr_1", Proposal{Action: ActionUpdatePrice}, "Set price")
	second := p.Put("usr_1", Proposal{Action: ActionUpdateStatus}, "Mark sold")

	got, ok := p.Get("usr_1")
	if !ok {
		t.Fatal("expected pending action")
	}
	if got.ID == first.ID || got.ID != second.ID {
		t.Error("newer proposal should replace the older one")
	}
}

func TestPendingCancel(t *testing.T) {
	p := NewPendingStore(time.Minute)
	defer p.Close()

	p.Put("usr_1", Proposal{Action: ActionUpdatePrice}, "Set price")
	if !p.Cancel("usr_1") {
		t.Error("cancel should report an action was discarded")
	}
	if p.Cancel("usr_1") {
		t.Error("second cancel should find nothing")
	}
}
