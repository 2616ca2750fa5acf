// Datastream: CLI entry point.
//
// This tool pairs with a remote peer through a WebSocket signaling relay and
// opens a WebRTC DataChannel to it. Lines typed on stdin are sent as text;
// everything received is printed.
//
// It can be launched interactively (no -role) or non-interactively via CLI
// flags (-role, -signal, -id, -remote, -ice, -label, -greeting, -debug) or
// the matching DATASTREAM_* environment variables.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"

	"github.com/1ureka/datastream/internal/config"
	"github.com/1ureka/datastream/internal/protocol"
	"github.com/1ureka/datastream/internal/session"
	"github.com/1ureka/datastream/internal/util"
	"github.com/1ureka/datastream/internal/webrtc"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		util.LogError("%v", err)
		os.Exit(2)
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Datastream v%s", version))
	pterm.Println()

	if cfg.Role == "" {
		cfg = askMissing(cfg)
	}
	cfg = withDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		util.LogError("invalid configuration: %v", err)
		os.Exit(2)
	}

	if err := run(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("session closed")
}

// run opens the session, bridges stdin to the data channel, and blocks until
// the channel closes or ctx is cancelled.
func run(ctx context.Context, cfg config.Config) error {
	s, err := session.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer s.Close()

	s.OnText(func(text string) {
		pterm.Println(pterm.Cyan(cfg.RemoteID+" > ") + text)
	})
	s.OnBinary(func(data []byte) {
		pterm.Println(pterm.Cyan(cfg.RemoteID+" > ") + fmt.Sprintf("<%d bytes>", len(data)))
	})

	util.LogInfo("connecting as %q to %s", cfg.LocalID, cfg.SignalURL)
	if err := s.Open(ctx); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	util.LogInfo("waiting for %q", cfg.RemoteID)
	if err := s.ChannelOpen().Wait(ctx); err != nil {
		// Interrupted before the peer showed up.
		return nil
	}

	util.LogSuccess("data channel open with %q, type to send", cfg.RemoteID)
	util.StartStatsReporter(ctx, s.Stats(), 5*time.Second)

	go pumpStdin(ctx, s)

	select {
	case <-s.ChannelClosed().Done():
	case <-ctx.Done():
	}
	return nil
}

// pumpStdin sends each stdin line as a text message until EOF. A full send
// buffer pauses reading instead of dropping lines.
func pumpStdin(ctx context.Context, s *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := s.SendWait(ctx, protocol.Text(line)); err != nil {
			util.LogWarning("message not sent: %v", err)
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

func withDefaults(cfg config.Config) config.Config {
	if cfg.LocalID == "" {
		cfg.LocalID = uuid.NewString()[:8]
		util.LogInfo("using generated local id %q", cfg.LocalID)
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = webrtc.DefaultSTUNServers
	}
	if cfg.Greeting == "" {
		cfg.Greeting = "Hello, you must be " + cfg.RemoteID
	}
	return cfg
}

// askMissing prompts for the role and any address the flags left empty.
func askMissing(cfg config.Config) config.Config {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Initiator - open the data channel", "Responder - wait for the remote peer"}).
		WithDefaultText("Select your role").
		Show()
	pterm.Println()

	if strings.HasPrefix(role, "Initiator") {
		cfg.Role = config.RoleInitiator
	} else {
		cfg.Role = config.RoleResponder
	}

	if cfg.SignalURL == "" {
		cfg.SignalURL = askText("Signaling server URL (e.g. ws://localhost:8000)", func(raw string) error {
			_, err := config.Config{SignalURL: raw}.SignalingEndpoint()
			return err
		})
	}
	if cfg.RemoteID == "" {
		cfg.RemoteID = askText("Remote peer id", func(raw string) error {
			if raw == "" || strings.Contains(raw, "/") {
				return errors.New("id must be non-empty and contain no '/'")
			}
			return nil
		})
	}
	return cfg
}

// askText prompts until validate accepts the trimmed input.
func askText(prompt string, validate func(string) error) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()
		raw = strings.TrimSpace(raw)

		err := validate(raw)
		pterm.Println()
		if err == nil {
			return raw
		}
		util.LogWarning("invalid input: %v", err)
	}
}
