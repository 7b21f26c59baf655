package media

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

type scriptedReader struct {
	packets []*rtp.Packet
	end     error
}

func (r *scriptedReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if len(r.packets) == 0 {
		return nil, nil, r.end
	}
	p := r.packets[0]
	r.packets = r.packets[1:]
	return p, nil, nil
}

func TestSinkCountsUntilEOF(t *testing.T) {
	src := &scriptedReader{end: io.EOF}
	for i := 0; i < 5; i++ {
		src.packets = append(src.packets, &rtp.Packet{
			Header:  rtp.Header{SequenceNumber: uint16(100 + i)},
			Payload: []byte{1, 2, 3},
		})
	}
	logger := zerolog.Nop()
	s := NewSink()
	if err := s.Run(context.Background(), src, &logger); err != nil {
		t.Fatalf("Run = %v", err)
	}
	got := s.Stats()
	if got.Packets != 5 || got.Bytes != 15 || got.LastSeq != 104 {
		t.Fatalf("stats = %+v", got)
	}
}

func TestSinkPropagatesReadError(t *testing.T) {
	boom := errors.New("boom")
	logger := zerolog.Nop()
	err := NewSink().Run(context.Background(), &scriptedReader{end: boom}, &logger)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestSinkStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger := zerolog.Nop()
	err := NewSink().Run(ctx, &scriptedReader{end: io.EOF}, &logger)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

type collector struct {
	packets []*rtp.Packet
	limit   int
	cancel  context.CancelFunc
}

func (c *collector) WriteRTP(p *rtp.Packet) error {
	if len(c.packets) >= c.limit {
		return nil
	}
	c.packets = append(c.packets, p)
	if len(c.packets) == c.limit {
		c.cancel()
	}
	return nil
}

func TestBeaconSequenceAndTimestamp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b := NewBeacon()
	b.Interval = time.Millisecond
	c := &collector{limit: 3, cancel: cancel}

	if err := b.Run(ctx, c); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	if len(c.packets) != 3 {
		t.Fatalf("packets = %d", len(c.packets))
	}
	step := uint32(48)
	for i := 1; i < 3; i++ {
		if c.packets[i].SequenceNumber != c.packets[i-1].SequenceNumber+1 {
			t.Errorf("sequence gap at %d", i)
		}
		if c.packets[i].Timestamp-c.packets[i-1].Timestamp != step {
			t.Errorf("timestamp step = %d", c.packets[i].Timestamp-c.packets[i-1].Timestamp)
		}
	}
}
