// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/phasecut/pkg/dimmer"
	"github.com/Thermoquad/phasecut/pkg/dimmer/sim"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serveListen        string
	serveSettingsPath  string
	serveLineHz        uint8
	serveDemo          bool
	serveBroadcast     bool
	serveStatsInterval time.Duration
)

// demoFadeMs is the length of one demo fade.
const demoFadeMs = 20000

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dimmer responder against simulated mains",
	Long: `Run the two-channel dimmer: the command protocol responder, the fade
engine and the pulse scheduler, driven by a simulated mains supply.

The dimmer listens either on a serial port (--port) or as a WebSocket server
(--listen). Host tools connect to it the usual way:

  phasecut serve --listen :8080
  phasecut send --url ws://localhost:8080/dimmer set 160

Settings are loaded from --settings at start and written back by the SAVE
command. A missing file starts from the scratch calibration.

With --demo both channels fade back and forth between the lowest and the
highest brightness forever.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Serve WebSocket clients on this address (path /dimmer)")
	serveCmd.Flags().StringVar(&serveSettingsPath, "settings", "phasecut-settings.cbor", "Settings file (CBOR)")
	serveCmd.Flags().Uint8Var(&serveLineHz, "line-hz", 0, "Simulated mains frequency (0 = follow the configured frequency)")
	serveCmd.Flags().BoolVar(&serveDemo, "demo", false, "Fade both channels back and forth")
	serveCmd.Flags().BoolVar(&serveBroadcast, "broadcast", false, "Multi-address mode: never reply")
	serveCmd.Flags().DurationVar(&serveStatsInterval, "stats-interval", 30*time.Second, "Interval between status log lines (0 disables)")
}

// line is the reply path of the responder. It writes to whichever client is
// attached and drops replies while none is.
type line struct {
	mu   sync.Mutex
	conn Connection
}

func (l *line) attach(conn Connection) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return false
	}
	l.conn = conn
	return true
}

func (l *line) detach(conn Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == conn {
		l.conn = nil
	}
}

func (l *line) Write(p []byte) (int, error) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return len(p), nil
	}
	return conn.Write(p)
}

// demoTarget picks the far end of the demo sweep from the level a fade
// settled at.
func demoTarget(brightness uint8) uint8 {
	if brightness < 128 {
		return dimmer.BrightnessMax
	}
	return 1
}

// pump copies everything read from conn into rx until the connection fails.
func pump(ctx context.Context, conn Connection, rx chan<- []byte) error {
	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		select {
		case rx <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveLineHz != 0 && serveLineHz != 50 && serveLineHz != 60 {
		return fmt.Errorf("--line-hz must be 50 or 60, got %d", serveLineHz)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := dimmer.NewFileStore(serveSettingsPath)
	settings, err := dimmer.LoadSettings(store)
	if err != nil {
		log.Warn().Err(err).Msg("using scratch settings")
	}
	log.Info().
		Str("file", store.Path()).
		Uint8("mains_hz", settings.MainsHz).
		Uint16("range_min", settings.RangeMin).
		Uint16("range_max", settings.RangeMax).
		Msg("settings loaded")

	// The engine is only touched from the loop below.
	var engine *dimmer.Engine
	opts := []dimmer.Option{
		dimmer.WithLogger(log.Logger.With().Str("component", "engine").Logger()),
	}
	if serveDemo {
		opts = append(opts, dimmer.WithSettledHook(func(ch dimmer.Channel, brightness uint8) {
			engine.SetFade(ch, demoFadeMs, demoTarget(brightness))
		}))
	}

	timer := sim.NewTimer()
	engine = dimmer.NewEngine(settings, timer, opts...)

	hz := serveLineHz
	if hz == 0 {
		hz = settings.MainsHz
	}
	mains := sim.NewMains(timer, engine.Pulses(), hz, log.Logger.With().Str("component", "mains").Logger())

	out := &line{}
	handler := dimmer.NewHandler(engine, store, out,
		dimmer.WithLogger(log.Logger.With().Str("component", "protocol").Logger()),
		dimmer.WithMultiAddress(serveBroadcast))
	responder := dimmer.NewResponder(handler,
		dimmer.WithLogger(log.Logger.With().Str("component", "responder").Logger()))

	rx := make(chan []byte, 16)
	transportErr := make(chan error, 1)

	switch {
	case serveListen != "":
		srv, err := listenWebSocket(ctx, serveListen, out, rx)
		if err != nil {
			return err
		}
		defer srv.Close()
	case portName != "":
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
		defer conn.Close()
		out.attach(conn)
		log.Info().Str("port", portName).Int("baud", baudRate).Msg("serving on serial port")
		go func() {
			transportErr <- pump(ctx, conn, rx)
		}()
	default:
		return fmt.Errorf("either --port or --listen must be specified")
	}

	go func() {
		if err := mains.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("mains stopped")
		}
	}()

	if serveDemo {
		for ch := dimmer.Channel0; ch < dimmer.NumChannels; ch++ {
			engine.SetBrightness(ch, 1)
			engine.SetFade(ch, demoFadeMs, dimmer.BrightnessMax)
		}
		log.Info().Msg("demo fades started")
	}

	poll := time.NewTicker(time.Millisecond)
	defer poll.Stop()

	var status <-chan time.Time
	if serveStatsInterval > 0 {
		statusTicker := time.NewTicker(serveStatsInterval)
		defer statusTicker.Stop()
		status = statusTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Print(responder.Statistics().String())
			return nil

		case err := <-transportErr:
			fmt.Print(responder.Statistics().String())
			return fmt.Errorf("serial read failed: %w", err)

		case p := <-rx:
			if err := responder.Feed(p); err != nil {
				log.Warn().Err(err).Msg("reply not delivered")
			}

		case <-poll.C:
			if engine.Poll() && serveLineHz == 0 {
				mains.SetHz(engine.Settings().MainsHz)
			}

		case <-status:
			logStatus(engine, timer, mains, responder.Statistics())
		}
	}
}

func logStatus(engine *dimmer.Engine, timer *sim.Timer, mains *sim.Mains, stats *dimmer.Statistics) {
	stats.CalculateRates()
	for ch := dimmer.Channel0; ch < dimmer.NumChannels; ch++ {
		pin := timer.Pin(ch)
		log.Info().
			Uint8("channel", uint8(ch)).
			Stringer("mode", engine.Mode(ch)).
			Uint8("brightness", engine.Brightness(ch)).
			Uint16("delay", engine.DirectValue(ch)).
			Uint64("pulses", pin.Pulses).
			Uint16("last_delay", pin.LastDelay).
			Msg("channel")
	}
	log.Info().
		Uint8("mains_hz", mains.Hz()).
		Uint16("period", engine.Pulses().Period()).
		Uint32("cycle", engine.Cycle()).
		Uint64("frames", stats.TotalFrames).
		Uint64("errors", stats.Errors()).
		Float64("frame_rate", stats.FrameRate).
		Msg("status")
}

// listenWebSocket serves one WebSocket client at a time on /dimmer. A second
// client is refused while the first is attached.
func listenWebSocket(ctx context.Context, addr string, out *line, rx chan<- []byte) (*http.Server, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  256,
		WriteBufferSize: 256,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(DimmerPath, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
			return
		}
		conn := NewWebSocketConnection(ws)
		defer conn.Close()

		if !out.attach(conn) {
			log.Warn().Str("remote", r.RemoteAddr).Msg("line busy, refusing client")
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "line busy"))
			return
		}
		defer out.detach(conn)

		log.Info().Str("remote", r.RemoteAddr).Msg("client attached")
		err = pump(ctx, conn, rx)
		log.Info().Err(err).Str("remote", r.RemoteAddr).Msg("client detached")
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("WebSocket server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Str("path", DimmerPath).Msg("serving WebSocket clients")
	return srv, nil
}
