// Package media holds the RTP endpoints of a headless participant: a sink
// that drains remote tracks and a beacon that feeds a local track.
package media

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// PacketReader is satisfied by *webrtc.TrackRemote.
type PacketReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

type Stats struct {
	Packets uint64
	Bytes   uint64
	LastSeq uint16
}

// Sink counts packets read from one remote track.
type Sink struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
	lastSeq atomic.Uint32
}

func NewSink() *Sink { return &Sink{} }

func (s *Sink) Stats() Stats {
	return Stats{
		Packets: s.packets.Load(),
		Bytes:   s.bytes.Load(),
		LastSeq: uint16(s.lastSeq.Load()),
	}
}

// Run reads until ctx is done or the track ends. A track that ends normally
// returns nil.
func (s *Sink) Run(ctx context.Context, src PacketReader, logger *zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("sink ctx done")
			return ctx.Err()
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Uint64("packets", s.packets.Load()).Msg("remote track ended")
				return nil
			}
			logger.Warn().Err(err).Msg("sink read RTP error, stopping")
			return err
		}
		s.packets.Add(1)
		s.bytes.Add(uint64(len(pkt.Payload)))
		s.lastSeq.Store(uint32(pkt.SequenceNumber))
	}
}
