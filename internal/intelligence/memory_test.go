package intelligence

import (
	"testing"
	"time"
)

func TestChatMemoryKeepsNewestExchanges(t *testing.T) {
	m := NewChatMemory(2, time.Minute)

	m.Append("usr_1", Exchange{UserMessage: "one", Reply: "a"})
	m.Append("usr_1", Exchange{UserMessage: "two", Reply: "b"})
	m.Append("usr_1", Exchange{UserMessage: "three", Reply: "c"})

	recent := m.Recent("usr_1")
	if len(recent) != 2 {
		t.Fatalf("recent size = %d, want 2", len(recent))
	}
	if recent[0].UserMessage != "two" || recent[1].UserMessage != "three" {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestChatMemoryExpires(t *testing.T) {
	m := NewChatMemory(4, 10*time.Millisecond)

	m.Append("usr_1", Exchange{UserMessage: "hello", Reply: "hi"})
	time.Sleep(15 * time.Millisecond)

	if recent := m.Recent("usr_1"); len(recent) != 0 {
		t.Fatalf("expired exchanges still returned: %+v", recent)
	}
}

func TestChatMemoryEvictsStaleUsers(t *testing.T) {
	m := NewChatMemory(4, 10*time.Millisecond)

	m.Append("usr_gone", Exchange{UserMessage: "hello", Reply: "hi"})
	time.Sleep(15 * time.Millisecond)

	// An append from anyone sweeps users whose history has gone stale.
	m.Append("usr_other", Exchange{UserMessage: "hey", Reply: "hello"})

	m.mu.Lock()
	_, kept := m.byUser["usr_gone"]
	m.mu.Unlock()
	if kept {
		t.Error("stale user history was not evicted")
	}
}
