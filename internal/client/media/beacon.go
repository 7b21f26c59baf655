package media

import (
	"context"
	"time"

	"github.com/pion/randutil"
	"github.com/pion/rtp"
)

// PacketWriter is satisfied by *webrtc.TrackLocalStaticRTP.
type PacketWriter interface {
	WriteRTP(*rtp.Packet) error
}

// opusSilence is a single Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Beacon writes synthetic audio packets so a headless participant has
// something to publish.
type Beacon struct {
	Interval    time.Duration
	ClockRate   uint32
	PayloadType uint8

	seq uint16
	ts  uint32
}

func NewBeacon() *Beacon {
	return &Beacon{
		Interval:    20 * time.Millisecond,
		ClockRate:   48000,
		PayloadType: 111,
		seq:         uint16(randutil.NewMathRandomGenerator().Uint32()),
	}
}

func (b *Beacon) next() *rtp.Packet {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    b.PayloadType,
			SequenceNumber: b.seq,
			Timestamp:      b.ts,
		},
		Payload: opusSilence,
	}
	b.seq++
	b.ts += uint32(uint64(b.ClockRate) * uint64(b.Interval) / uint64(time.Second))
	return pkt
}

// Run writes one packet per Interval until ctx is done or a write fails.
func (b *Beacon) Run(ctx context.Context, dst PacketWriter) error {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := dst.WriteRTP(b.next()); err != nil {
				return err
			}
		}
	}
}
