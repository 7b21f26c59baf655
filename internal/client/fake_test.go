package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Converse/internal/core"
)

var errFake = errors.New("fake media error")

// fakeMedia models just enough of the offer/answer state machine to catch
// out-of-order calls.
type fakeMedia struct {
	mu         sync.Mutex
	localOffer bool
	remote     *webrtc.SessionDescription
	candidates []string
	tracks     map[string]bool
	closed     bool
	offers     int
	answers    int

	failOffer     bool
	gatherOnLocal bool

	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(*webrtc.TrackRemote)
	onFailed func()
}

var _ core.MediaConnection = (*fakeMedia)(nil)

func newFakeMedia() *fakeMedia { return &fakeMedia{tracks: make(map[string]bool)} }

func (f *fakeMedia) CreateOffer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	if f.failOffer {
		f.mu.Unlock()
		return webrtc.SessionDescription{}, errFake
	}
	f.offers++
	f.localOffer = true
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", f.offers)}
	gather := f.gatherOnLocal
	f.mu.Unlock()
	if gather {
		f.gather(desc.SDP + "-cand")
	}
	return desc, nil
}

func (f *fakeMedia) CreateAnswer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	if f.remote == nil || f.remote.Type != webrtc.SDPTypeOffer {
		f.mu.Unlock()
		return webrtc.SessionDescription{}, errors.New("create answer without remote offer")
	}
	f.answers++
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", f.answers)}
	gather := f.gatherOnLocal
	f.mu.Unlock()
	if gather {
		f.gather(desc.SDP + "-cand")
	}
	return desc, nil
}

func (f *fakeMedia) SetRemoteDescription(d webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch d.Type {
	case webrtc.SDPTypeOffer:
		if f.localOffer {
			return errors.New("remote offer in have-local-offer")
		}
	case webrtc.SDPTypeAnswer:
		if !f.localOffer {
			return errors.New("remote answer without local offer")
		}
		f.localOffer = false
	}
	f.remote = &d
	return nil
}

func (f *fakeMedia) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		return errors.New("candidate before remote description")
	}
	f.candidates = append(f.candidates, c.Candidate)
	return nil
}

func (f *fakeMedia) AddTrack(t webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[t.ID()] = true
	return nil
}

func (f *fakeMedia) RemoveTrack(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tracks[id] {
		return errFake
	}
	delete(f.tracks, id)
	return nil
}

func (f *fakeMedia) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onICE = fn }
func (f *fakeMedia) OnTrack(fn func(*webrtc.TrackRemote))            { f.onTrack = fn }
func (f *fakeMedia) OnFailed(fn func())                              { f.onFailed = fn }

func (f *fakeMedia) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// gather simulates a locally gathered candidate.
func (f *fakeMedia) gather(c string) {
	if f.onICE != nil {
		f.onICE(webrtc.ICECandidateInit{Candidate: c})
	}
}

func (f *fakeMedia) fail() {
	if f.onFailed != nil {
		f.onFailed()
	}
}

type mediaState struct {
	localOffer bool
	remoteSet  bool
	candidates []string
	tracks     int
	closed     bool
	offers     int
	answers    int
}

func (f *fakeMedia) state() mediaState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return mediaState{
		localOffer: f.localOffer,
		remoteSet:  f.remote != nil,
		candidates: append([]string(nil), f.candidates...),
		tracks:     len(f.tracks),
		closed:     f.closed,
		offers:     f.offers,
		answers:    f.answers,
	}
}

func newTestTrack(id string) webrtc.TrackLocal {
	t, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, id, "local")
	if err != nil {
		panic(err)
	}
	return t
}
