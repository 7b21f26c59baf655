package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dkeye/Converse/internal/adapters/rtc"
	sigchan "github.com/dkeye/Converse/internal/adapters/signal"
	"github.com/dkeye/Converse/internal/client"
	"github.com/dkeye/Converse/internal/client/media"
	"github.com/dkeye/Converse/internal/config"
	"github.com/dkeye/Converse/internal/domain"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room",
	Long: `Join a room and chat from stdin.

Commands typed on stdin:
  /stream   start streaming into the room's mesh
  /hangup   stop streaming and close every peer link
  /rooms    show the lobby
  /leave    leave the room and exit

Examples:
  converse join --room lounge
  converse join --server ws://host:8080/ws --room lounge --stream`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadClient(cmd.Flags())
		if err != nil {
			return err
		}
		return runJoin(cmd.Context(), cfg)
	},
}

func init() {
	f := joinCmd.Flags()
	// Config keys use underscores; accept the dashed spelling too.
	f.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "-", "_"))
	})
	f.String("server", "", "signaling endpoint (ws://host:port/ws)")
	f.String("room", "", "room to join")
	f.Uint64("user", 0, "participant id (random when 0)")
	f.Bool("stream", false, "start streaming right after joining")
	f.StringSlice("ice_servers", nil, "ICE server URLs")
	f.Int("max_streamers", 4, "refuse to stream when this many already are (0 = no limit)")
	f.String("glare", "polite", "offer collision policy: polite or keep-local")
	f.String("log_level", "", "zerolog level")
}

func runJoin(parent context.Context, cfg *config.ClientConfig) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(config.ParseLevel(cfg.LogLevel))

	room := domain.RoomID(cfg.Room)
	if err := room.Validate(); err != nil {
		return fmt.Errorf("--room: %w", err)
	}
	glare, err := client.ParseGlarePolicy(cfg.Glare)
	if err != nil {
		return err
	}
	self := domain.ParticipantID(cfg.User)
	if self == 0 {
		self = domain.NewParticipantID()
	}

	spinner, _ := pterm.DefaultSpinner.Start("Connecting to " + cfg.Server)
	ch, err := sigchan.Dial(ctx, cfg.Server, nil)
	if err != nil {
		if spinner != nil {
			spinner.Fail(err.Error())
		}
		return err
	}
	defer ch.Close()
	if spinner != nil {
		spinner.Success("Connected as User " + self.String())
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio-"+self.String(), "converse-"+self.String())
	if err != nil {
		return fmt.Errorf("local track: %w", err)
	}
	go func() {
		if err := media.NewBeacon().Run(ctx, track); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("module", "cmd.client").Msg("beacon stopped")
		}
	}()

	mesh := client.NewMeshController(client.MeshConfig{
		Local:        self,
		Signal:       ch,
		NewMedia:     rtc.NewFactory(rtc.ConfigWithServers(cfg.ICEServers)),
		Source:       client.NewLocalSource(track),
		Glare:        glare,
		MaxStreamers: cfg.MaxStreamers,
	})
	con := newConsole(ctx)
	if cfg.Stream {
		// Streaming waits for the room's streamer set so the limit applies.
		con.onReady = func() { con.report(mesh.StartStream()) }
	}
	go con.render(mesh.Events())
	go func() {
		if err := mesh.Run(ctx, ch.Incoming()); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("module", "cmd.client").Msg("mesh stopped")
		}
		cancel()
	}()

	if err := mesh.JoinRoom(room); err != nil {
		return err
	}
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			mesh.Close()
			con.summary()
			return nil
		case line, ok := <-lines:
			if !ok {
				cancel()
				continue
			}
			if done := handleLine(mesh, con, strings.TrimSpace(line)); done {
				cancel()
			}
		}
	}
}

// handleLine runs one stdin line and reports whether the session is over.
func handleLine(mesh *client.MeshController, con *console, line string) bool {
	switch line {
	case "":
	case "/stream":
		con.report(mesh.StartStream())
	case "/hangup":
		con.report(mesh.StopStream())
	case "/rooms":
		con.rooms()
	case "/leave":
		con.report(mesh.LeaveRoom())
		return true
	default:
		con.report(mesh.SendChat(line))
	}
	return false
}
