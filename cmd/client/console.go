package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/client"
	"github.com/dkeye/Converse/internal/client/media"
	"github.com/dkeye/Converse/internal/domain"
)

// console renders mesh events with pterm and keeps one sink per remote track.
type console struct {
	ctx context.Context
	// onReady runs once, on the first RoomReady.
	onReady func()

	mu        sync.Mutex
	lobby     []domain.RoomInfo
	streamers []domain.ParticipantID
	sinks     map[string]*media.Sink
}

func newConsole(ctx context.Context) *console {
	return &console{ctx: ctx, sinks: make(map[string]*media.Sink)}
}

func (c *console) report(err error) {
	if err != nil {
		pterm.Error.Println(err.Error())
	}
}

func (c *console) render(events <-chan client.Event) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-events:
			c.show(ev)
		}
	}
}

func (c *console) show(ev client.Event) {
	switch ev := ev.(type) {
	case client.Notice:
		pterm.Info.Println(ev.Text)
	case client.ChatReceived:
		if ev.Self {
			pterm.FgCyan.Printfln("Me: %s", ev.Msg)
		} else {
			pterm.FgLightWhite.Printfln("User %s: %s", ev.From, ev.Msg)
		}
	case client.RoomsUpdated:
		c.mu.Lock()
		c.lobby = ev.Rooms
		c.mu.Unlock()
	case client.StreamersUpdated:
		c.mu.Lock()
		c.streamers = ev.Streamers
		c.mu.Unlock()
		pterm.Debug.Printfln("streamers: %s", joinIDs(ev.Streamers))
	case client.RoomReady:
		if c.onReady != nil {
			fn := c.onReady
			c.onReady = nil
			fn()
		}
	case client.LinkOpened:
		pterm.Success.Printfln("Peer link to User %s opened", ev.Remote)
	case client.LinkClosed:
		pterm.Warning.Printfln("Peer link to User %s closed", ev.Remote)
	case client.RemoteTrack:
		c.startSink(ev)
	}
}

func (c *console) startSink(ev client.RemoteTrack) {
	key := ev.From.String() + "/" + ev.Track.ID()
	sink := media.NewSink()
	c.mu.Lock()
	c.sinks[key] = sink
	c.mu.Unlock()
	pterm.Success.Printfln("Receiving %s from User %s", ev.Track.Kind(), ev.From)

	logger := log.With().Str("module", "cmd.client").Str("track", key).Logger()
	go func() {
		_ = sink.Run(c.ctx, ev.Track, &logger)
	}()
}

func (c *console) rooms() {
	c.mu.Lock()
	data := pterm.TableData{{"Room", "Participants"}}
	for _, r := range c.lobby {
		data = append(data, []string{string(r.ID), fmt.Sprint(r.Participants)})
	}
	c.mu.Unlock()
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		pterm.Error.Println(err.Error())
	}
}

func (c *console) summary() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sinks) == 0 {
		return
	}
	data := pterm.TableData{{"Track", "Packets", "Bytes"}}
	for key, s := range c.sinks {
		st := s.Stats()
		data = append(data, []string{key, fmt.Sprint(st.Packets), fmt.Sprint(st.Bytes)})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func joinIDs(ids []domain.ParticipantID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
