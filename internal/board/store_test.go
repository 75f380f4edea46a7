package board

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

func TestMembershipReplay(t *testing.T) {
	store := NewStore()

	store.AddMember("r1", "a")
	store.AddMember("r1", "b")
	store.AddMember("r1", "c")
	store.RemoveMember("r1", "b")
	store.AddMember("r1", "b")
	store.AddMember("r1", "b") // duplicate join is a no-op
	store.RemoveMember("r1", "c")

	members := store.Members("r1")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d: %v", len(members), members)
	}

	want := map[string]bool{"a": true, "b": true}
	for _, id := range members {
		if !want[id] {
			t.Errorf("unexpected member %q", id)
		}
	}
}

func TestEmptyRoomReclaimedSynchronously(t *testing.T) {
	store := NewStore()

	store.AddMember("r1", "a")
	store.AddMember("r1", "b")

	if wasLast := store.RemoveMember("r1", "a"); wasLast {
		t.Error("room still has a member, should not report last")
	}
	if store.RoomCount() != 1 {
		t.Fatalf("expected 1 room, got %d", store.RoomCount())
	}

	if wasLast := store.RemoveMember("r1", "b"); !wasLast {
		t.Error("expected last-member signal")
	}
	if store.RoomCount() != 0 {
		t.Fatalf("empty room must be gone immediately, got %d rooms", store.RoomCount())
	}
}

func TestSetSceneUnknownRoomIsNoop(t *testing.T) {
	store := NewStore()

	store.SetScene("ghost", json.RawMessage(`[{"id":"e1"}]`))

	if store.RoomCount() != 0 {
		t.Error("SetScene must not resurrect a room")
	}
	if store.Scene("ghost") != nil {
		t.Error("unknown room must have no scene")
	}
}

func TestSceneLastWriteWins(t *testing.T) {
	store := NewStore()
	store.AddMember("r1", "a")

	store.SetScene("r1", json.RawMessage(`[{"id":"e1"}]`))
	store.SetScene("r1", json.RawMessage(`[{"id":"e2"},{"id":"e3"}]`))

	got := string(store.Scene("r1"))
	if got != `[{"id":"e2"},{"id":"e3"}]` {
		t.Errorf("expected latest snapshot, got %s", got)
	}
}

func TestSceneCopiedOnReadAndWrite(t *testing.T) {
	store := NewStore()
	store.AddMember("r1", "a")

	original := json.RawMessage(`[{"id":"e1"}]`)
	store.SetScene("r1", original)
	original[2] = 'X' // mutating the caller's buffer must not leak in

	snapshot := store.Scene("r1")
	if string(snapshot) != `[{"id":"e1"}]` {
		t.Errorf("stored scene aliased caller buffer: %s", snapshot)
	}

	snapshot[2] = 'Y'
	if string(store.Scene("r1")) != `[{"id":"e1"}]` {
		t.Error("returned scene aliased stored buffer")
	}
}

func TestReverseIndex(t *testing.T) {
	store := NewStore()

	store.AddMember("r1", "a")
	store.AddMember("r2", "a")
	store.AddMember("r1", "b")

	rooms := store.RoomsOf("a")
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms for a, got %v", rooms)
	}

	store.RemoveMember("r1", "a")
	store.RemoveMember("r2", "a")

	if got := store.RoomsOf("a"); got != nil {
		t.Errorf("expected no rooms after leaving all, got %v", got)
	}
	if store.MemberCount("r1") != 1 {
		t.Errorf("r1 should still hold b")
	}
}

func TestActiveRooms(t *testing.T) {
	store := NewStore()

	store.AddMember("r1", "a")
	store.AddMember("r1", "b")
	store.AddMember("r2", "c")

	active := store.ActiveRooms()
	if active["r1"] != 2 || active["r2"] != 1 {
		t.Errorf("unexpected counts: %v", active)
	}
}

func TestConcurrentMembership(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.AddMember("r1", fmt.Sprintf("conn-%d", i))
		}(i)
	}
	wg.Wait()

	if got := store.MemberCount("r1"); got != 100 {
		t.Errorf("expected 100 members, got %d", got)
	}
}
