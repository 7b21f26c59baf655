package core

import (
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/dkeye/Converse/internal/domain"
)

// checkSubset verifies streamers ⊆ participants for every live room.
func checkSubset(t *testing.T, r *Registry) {
	t.Helper()
	for _, info := range r.ListRooms() {
		members := r.Members(info.ID)
		for _, s := range r.Streamers(info.ID) {
			found := slices.ContainsFunc(members, func(m Member) bool { return m.Participant == s })
			if !found {
				t.Fatalf("room %s: streamer %d is not a participant", info.ID, s)
			}
		}
	}
}

func TestJoinCreatesRoomAndReturnsStreamers(t *testing.T) {
	r := NewRegistry()

	snap, prev := r.Join("r1", 1, "h1")
	if prev != nil {
		t.Fatalf("unexpected departure %+v", prev)
	}
	if len(snap.Members) != 1 || len(snap.Streamers) != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	if _, ok := r.SetStreaming("r1", 1, true); !ok {
		t.Fatal("SetStreaming on live room reported missing")
	}
	snap, _ = r.Join("r1", 2, "h2")
	if !slices.Equal(snap.Streamers, []domain.ParticipantID{1}) {
		t.Fatalf("streamers = %v, want [1]", snap.Streamers)
	}
	if got := r.ListRooms(); len(got) != 1 || got[0].Participants != 2 {
		t.Fatalf("ListRooms = %+v", got)
	}
}

func TestJoinIsIdempotentPerHandle(t *testing.T) {
	r := NewRegistry()
	r.Join("r1", 1, "h1")
	snap, _ := r.Join("r1", 1, "h1")
	if !snap.Rejoined {
		t.Error("second join should be flagged as rejoin")
	}
	if n := len(r.Members("r1")); n != 1 {
		t.Errorf("members = %d, want 1", n)
	}
}

func TestJoinOtherRoomLeavesPrevious(t *testing.T) {
	r := NewRegistry()
	r.Join("a", 1, "h1")
	r.SetStreaming("a", 1, true)
	r.Join("a", 2, "h2")

	_, prev := r.Join("b", 1, "h1")
	if prev == nil || prev.Room != "a" || prev.Participant != 1 {
		t.Fatalf("departure = %+v", prev)
	}
	if len(prev.Streamers) != 0 {
		t.Errorf("streamers after move = %v", prev.Streamers)
	}
	room, pid, ok := r.RoomOf("h1")
	if !ok || room != "b" || pid != 1 {
		t.Errorf("RoomOf = %s %d %v", room, pid, ok)
	}
}

func TestRejoinUnderNewIDDepartsOldID(t *testing.T) {
	r := NewRegistry()
	r.Join("r1", 1, "h1")
	r.Join("r1", 2, "h2")
	r.SetStreaming("r1", 1, true)

	snap, prev := r.Join("r1", 5, "h1")
	if snap.Rejoined {
		t.Error("id change reported as plain rejoin")
	}
	if prev == nil || prev.Participant != 1 || prev.Room != "r1" {
		t.Fatalf("departure = %+v", prev)
	}
	if len(prev.Remaining) != 1 || prev.Remaining[0].Handle != "h2" {
		t.Errorf("remaining = %+v", prev.Remaining)
	}
	if len(prev.Streamers) != 0 {
		t.Errorf("old id still streaming: %v", prev.Streamers)
	}
	checkSubset(t, r)
}

func TestRejoinUnderNewIDKeepsSharedOldID(t *testing.T) {
	r := NewRegistry()
	r.Join("r1", 1, "h1")
	r.Join("r1", 1, "h2")

	if _, prev := r.Join("r1", 5, "h1"); prev != nil {
		t.Fatalf("departure for id still held by h2: %+v", prev)
	}
}

func TestLeaveRemovesStreamerAndDeletesEmptyRoom(t *testing.T) {
	r := NewRegistry()
	r.Join("r1", 1, "h1")
	r.Join("r1", 2, "h2")
	r.SetStreaming("r1", 1, true)
	r.SetStreaming("r1", 2, true)

	dep, ok := r.Leave("h1")
	if !ok {
		t.Fatal("Leave reported no-op")
	}
	if !slices.Equal(dep.Streamers, []domain.ParticipantID{2}) {
		t.Errorf("remaining streamers = %v", dep.Streamers)
	}
	if len(dep.Remaining) != 1 || dep.Remaining[0].Handle != "h2" {
		t.Errorf("remaining = %+v", dep.Remaining)
	}

	if _, ok := r.Leave("h1"); ok {
		t.Error("second Leave must be a no-op")
	}

	r.Leave("h2")
	if rooms := r.ListRooms(); len(rooms) != 0 {
		t.Errorf("empty room still listed: %+v", rooms)
	}
	if _, ok := r.SetStreaming("r1", 2, true); ok {
		t.Error("SetStreaming on deleted room should report missing")
	}
}

func TestLeaveUnknownHandle(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Leave("nobody"); ok {
		t.Error("Leave of unknown handle must be a no-op")
	}
}

func TestSetStreamingRequiresParticipant(t *testing.T) {
	r := NewRegistry()
	r.Join("r1", 1, "h1")
	streamers, ok := r.SetStreaming("r1", 99, true)
	if !ok || len(streamers) != 0 {
		t.Fatalf("non-participant became streamer: %v", streamers)
	}
	checkSubset(t, r)
}

func TestSharedParticipantIDKeepsStreamerUntilLastHandleLeaves(t *testing.T) {
	r := NewRegistry()
	r.Join("r1", 5, "h1")
	r.Join("r1", 5, "h2")
	r.SetStreaming("r1", 5, true)

	r.Leave("h1")
	if got := r.Streamers("r1"); !slices.Equal(got, []domain.ParticipantID{5}) {
		t.Errorf("streamers = %v, want [5]", got)
	}
	r.Leave("h2")
	if got := r.Streamers("r1"); len(got) != 0 {
		t.Errorf("streamers = %v, want none", got)
	}
}

func TestRandomOperationsKeepStreamersSubset(t *testing.T) {
	r := NewRegistry()
	rnd := rand.New(rand.NewSource(42))
	rooms := []domain.RoomID{"a", "b", "c"}

	for i := 0; i < 2000; i++ {
		h := domain.ConnHandle(fmt.Sprintf("h%d", rnd.Intn(12)))
		pid := domain.ParticipantID(rnd.Intn(8))
		room := rooms[rnd.Intn(len(rooms))]
		switch rnd.Intn(4) {
		case 0:
			r.Join(room, pid, h)
		case 1:
			r.Leave(h)
		case 2, 3:
			if cur, p, ok := r.RoomOf(h); ok {
				r.SetStreaming(cur, p, rnd.Intn(2) == 0)
			}
		}
		checkSubset(t, r)
	}
}

func TestConcurrentRoomsDoNotInterfere(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			room := domain.RoomID(fmt.Sprintf("room-%d", n%3))
			for j := 0; j < 200; j++ {
				h := domain.ConnHandle(fmt.Sprintf("h-%d-%d", n, j%5))
				pid := domain.ParticipantID(n*100 + j%5)
				r.Join(room, pid, h)
				r.SetStreaming(room, pid, j%2 == 0)
				if j%3 == 0 {
					r.Leave(h)
				}
			}
		}(i)
	}
	wg.Wait()
	checkSubset(t, r)
}
