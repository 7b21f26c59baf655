package client

import (
	"slices"
	"sync"

	"github.com/pion/webrtc/v4"
)

// LocalSource is the local media-track set. PeerLinks read it; only local
// actions mutate it.
type LocalSource struct {
	mu     sync.RWMutex
	tracks []webrtc.TrackLocal
}

func NewLocalSource(tracks ...webrtc.TrackLocal) *LocalSource {
	return &LocalSource{tracks: slices.Clone(tracks)}
}

// Add reports false if a track with the same id is already present.
func (s *LocalSource) Add(t webrtc.TrackLocal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.tracks, func(x webrtc.TrackLocal) bool { return x.ID() == t.ID() }) {
		return false
	}
	s.tracks = append(s.tracks, t)
	return true
}

func (s *LocalSource) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tracks)
	s.tracks = slices.DeleteFunc(s.tracks, func(x webrtc.TrackLocal) bool { return x.ID() == id })
	return len(s.tracks) != n
}

func (s *LocalSource) Tracks() []webrtc.TrackLocal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tracks)
}

func (s *LocalSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}
