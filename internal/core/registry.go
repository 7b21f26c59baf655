package core

import (
	"cmp"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/domain"
)

// Member is one connection's membership in a room.
type Member struct {
	Handle      domain.ConnHandle
	Participant domain.ParticipantID
}

// Snapshot is the state of a room right after a join.
type Snapshot struct {
	Room      domain.RoomID
	Members   []Member
	Streamers []domain.ParticipantID
	// Rejoined is set when the handle was already a member of the room under
	// the same participant id.
	Rejoined bool
}

// Departure describes a participant removed from a room.
type Departure struct {
	Room        domain.RoomID
	Participant domain.ParticipantID
	Remaining   []Member
	Streamers   []domain.ParticipantID
}

// room is guarded by its own mutex so rooms never block each other.
// A dead room has been unlinked from the registry and must not be mutated.
type room struct {
	mu        sync.Mutex
	id        domain.RoomID
	members   map[domain.ConnHandle]domain.ParticipantID
	order     []domain.ConnHandle
	streamers []domain.ParticipantID
	dead      bool
}

func (rm *room) membersLocked() []Member {
	out := make([]Member, 0, len(rm.order))
	for _, h := range rm.order {
		out = append(out, Member{Handle: h, Participant: rm.members[h]})
	}
	return out
}

func (rm *room) hasParticipantLocked(pid domain.ParticipantID) bool {
	for _, p := range rm.members {
		if p == pid {
			return true
		}
	}
	return false
}

func (rm *room) removeStreamerLocked(pid domain.ParticipantID) {
	rm.streamers = slices.DeleteFunc(rm.streamers, func(p domain.ParticipantID) bool { return p == pid })
}

// Registry is the authoritative room -> {participants, streamers} map.
// Connection-to-room association lives in a side table keyed by handle.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomID]*room
	handles map[domain.ConnHandle]domain.RoomID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[domain.RoomID]*room),
		handles: make(map[domain.ConnHandle]domain.RoomID),
	}
}

func (r *Registry) getOrCreate(id domain.RoomID) *room {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return rm
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[id]; ok {
		return rm
	}
	rm = &room{id: id, members: make(map[domain.ConnHandle]domain.ParticipantID)}
	r.rooms[id] = rm
	log.Info().Str("module", "core.registry").Str("room", string(id)).Msg("room created")
	return rm
}

func (r *Registry) lookup(id domain.RoomID) (*room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[id]
	return rm, ok
}

// Join adds the participant to the room, creating it if needed. A handle
// already associated with another room leaves that room first; the returned
// Departure describes it. A handle rejoining under a new participant id
// departs as its old id unless another handle still holds that id.
func (r *Registry) Join(id domain.RoomID, pid domain.ParticipantID, h domain.ConnHandle) (Snapshot, *Departure) {
	var prev *Departure
	if cur, _, ok := r.RoomOf(h); ok && cur != id {
		if dep, ok := r.Leave(h); ok {
			prev = &dep
		}
	}

	for {
		rm := r.getOrCreate(id)
		rm.mu.Lock()
		if rm.dead {
			rm.mu.Unlock()
			continue
		}
		snap := Snapshot{Room: id}
		if old, ok := rm.members[h]; ok {
			snap.Rejoined = old == pid
			if old != pid {
				rm.members[h] = pid
				if !rm.hasParticipantLocked(old) {
					rm.removeStreamerLocked(old)
					others := slices.DeleteFunc(rm.membersLocked(), func(m Member) bool { return m.Handle == h })
					prev = &Departure{
						Room:        id,
						Participant: old,
						Remaining:   others,
						Streamers:   slices.Clone(rm.streamers),
					}
				}
			}
		} else {
			if rm.hasParticipantLocked(pid) {
				log.Warn().Str("module", "core.registry").Str("room", string(id)).
					Str("user", pid.String()).Msg("participant id collision")
			}
			rm.members[h] = pid
			rm.order = append(rm.order, h)
		}
		snap.Members = rm.membersLocked()
		snap.Streamers = slices.Clone(rm.streamers)
		rm.mu.Unlock()

		r.mu.Lock()
		r.handles[h] = id
		r.mu.Unlock()
		return snap, prev
	}
}

// Leave removes the handle from its room. It reports false if the handle was
// never associated with a room or has already left.
func (r *Registry) Leave(h domain.ConnHandle) (Departure, bool) {
	r.mu.Lock()
	id, ok := r.handles[h]
	delete(r.handles, h)
	rm := r.rooms[id]
	r.mu.Unlock()
	if !ok || rm == nil {
		return Departure{}, false
	}

	rm.mu.Lock()
	pid, member := rm.members[h]
	if !member {
		rm.mu.Unlock()
		return Departure{}, false
	}
	delete(rm.members, h)
	rm.order = slices.DeleteFunc(rm.order, func(x domain.ConnHandle) bool { return x == h })
	if !rm.hasParticipantLocked(pid) {
		rm.removeStreamerLocked(pid)
	}
	dep := Departure{
		Room:        id,
		Participant: pid,
		Remaining:   rm.membersLocked(),
		Streamers:   slices.Clone(rm.streamers),
	}
	empty := len(rm.members) == 0
	if empty {
		rm.dead = true
	}
	rm.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.rooms[id] == rm {
			delete(r.rooms, id)
		}
		r.mu.Unlock()
		log.Info().Str("module", "core.registry").Str("room", string(id)).Msg("room deleted")
	}
	return dep, true
}

// SetStreaming adds or removes pid from the room's streamer set. Only current
// participants can stream. It reports false if the room is gone.
func (r *Registry) SetStreaming(id domain.RoomID, pid domain.ParticipantID, on bool) ([]domain.ParticipantID, bool) {
	rm, ok := r.lookup(id)
	if !ok {
		return nil, false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.dead {
		return nil, false
	}
	if on {
		if rm.hasParticipantLocked(pid) && !slices.Contains(rm.streamers, pid) {
			rm.streamers = append(rm.streamers, pid)
		}
	} else {
		rm.removeStreamerLocked(pid)
	}
	return slices.Clone(rm.streamers), true
}

// Streamers returns a copy of the room's streamer set.
func (r *Registry) Streamers(id domain.RoomID) []domain.ParticipantID {
	rm, ok := r.lookup(id)
	if !ok {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return slices.Clone(rm.streamers)
}

func (r *Registry) Members(id domain.RoomID) []Member {
	rm, ok := r.lookup(id)
	if !ok {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.membersLocked()
}

// RoomOf returns the room and participant bound to a handle.
func (r *Registry) RoomOf(h domain.ConnHandle) (domain.RoomID, domain.ParticipantID, bool) {
	r.mu.RLock()
	id, ok := r.handles[h]
	rm := r.rooms[id]
	r.mu.RUnlock()
	if !ok || rm == nil {
		return "", 0, false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	pid, ok := rm.members[h]
	return id, pid, ok
}

// ListRooms returns a lobby snapshot sorted by room id.
func (r *Registry) ListRooms() []domain.RoomInfo {
	r.mu.RLock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()

	out := make([]domain.RoomInfo, 0, len(rooms))
	for _, rm := range rooms {
		rm.mu.Lock()
		n := len(rm.members)
		dead := rm.dead
		rm.mu.Unlock()
		if dead || n == 0 {
			continue
		}
		out = append(out, domain.RoomInfo{ID: rm.id, Participants: n})
	}
	slices.SortFunc(out, func(a, b domain.RoomInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
