package chunk_test

import (
	"fmt"
	"testing"

	"github.com/dialogkit/convmem/chunk"
	"github.com/dialogkit/convmem/core"
)

func TestBuffer_AppendAndSnapshot(t *testing.T) {
	b := chunk.NewBuffer(5)
	for i := 0; i < 3; i++ {
		b.Append("c1", core.ConversationTurn{UserText: fmt.Sprintf("msg %d", i)})
	}

	snap := b.Snapshot("c1")
	if len(snap) != 3 {
		t.Fatalf("Snapshot() len = %d, want 3", len(snap))
	}
	if snap[0].UserText != "msg 0" || snap[2].UserText != "msg 2" {
		t.Errorf("Snapshot() order wrong: %v", snap)
	}
}

func TestBuffer_EvictsOldest(t *testing.T) {
	b := chunk.NewBuffer(3)
	for i := 0; i < 5; i++ {
		b.Append("c1", core.ConversationTurn{UserText: fmt.Sprintf("msg %d", i)})
	}

	snap := b.Snapshot("c1")
	if len(snap) != 3 {
		t.Fatalf("len = %d, want capacity 3", len(snap))
	}
	if snap[0].UserText != "msg 2" {
		t.Errorf("oldest surviving turn = %q, want %q", snap[0].UserText, "msg 2")
	}
	if snap[2].UserText != "msg 4" {
		t.Errorf("newest turn = %q, want %q", snap[2].UserText, "msg 4")
	}
}

func TestBuffer_ClientsAreIsolated(t *testing.T) {
	b := chunk.NewBuffer(5)
	b.Append("c1", core.ConversationTurn{UserText: "from c1"})
	b.Append("c2", core.ConversationTurn{UserText: "from c2"})

	if n := b.Len("c1"); n != 1 {
		t.Errorf("Len(c1) = %d, want 1", n)
	}
	if snap := b.Snapshot("c2"); len(snap) != 1 || snap[0].UserText != "from c2" {
		t.Errorf("Snapshot(c2) = %v", snap)
	}
	if snap := b.Snapshot("unknown"); len(snap) != 0 {
		t.Errorf("Snapshot(unknown) = %v, want empty", snap)
	}
}

func TestBuffer_Recent(t *testing.T) {
	b := chunk.NewBuffer(10)
	for i := 0; i < 6; i++ {
		b.Append("c1", core.ConversationTurn{UserText: fmt.Sprintf("msg %d", i)})
	}

	recent := b.Recent("c1", 2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) len = %d", len(recent))
	}
	if recent[0].UserText != "msg 4" || recent[1].UserText != "msg 5" {
		t.Errorf("Recent(2) = %v, want last two oldest-first", recent)
	}

	if got := b.Recent("c1", 0); len(got) != 6 {
		t.Errorf("Recent(0) len = %d, want all 6", len(got))
	}
}

func TestBuffer_SnapshotIsACopy(t *testing.T) {
	b := chunk.NewBuffer(5)
	b.Append("c1", core.ConversationTurn{UserText: "original"})

	snap := b.Snapshot("c1")
	snap[0].UserText = "mutated"

	if got := b.Snapshot("c1")[0].UserText; got != "original" {
		t.Errorf("buffer turn = %q, mutation leaked through snapshot", got)
	}
}
