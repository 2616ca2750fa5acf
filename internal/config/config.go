// Package config holds the session configuration and its flag/env loading.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Role decides which side starts negotiation.
type Role string

const (
	RoleInitiator Role = "initiator" // creates the data channel and sends the offer
	RoleResponder Role = "responder" // waits for the remote channel and answers
)

// ParseRole accepts "initiator"/"responder" and their short forms.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "initiator", "init", "offer":
		return RoleInitiator, nil
	case "responder", "resp", "answer":
		return RoleResponder, nil
	default:
		return "", fmt.Errorf("invalid role %q: must be initiator or responder", raw)
	}
}

const (
	envVarRole       = "DATASTREAM_ROLE"
	envVarSignalURL  = "DATASTREAM_SIGNAL_URL"
	envVarLocalID    = "DATASTREAM_ID"
	envVarRemoteID   = "DATASTREAM_REMOTE_ID"
	envVarICEServers = "DATASTREAM_ICE_SERVERS"
	envVarLabel      = "DATASTREAM_LABEL"
	envVarGreeting   = "DATASTREAM_GREETING"
	envVarDebug      = "DATASTREAM_DEBUG"

	DefaultLabel = "datastream"
)

// Config stores everything a session needs from the host application.
type Config struct {
	Role       Role
	SignalURL  string   // signaling server base URL, e.g. ws://localhost:8000
	LocalID    string   // our id on the signaling server
	RemoteID   string   // the peer we pair with
	ICEServers []string // stun:/turn: URLs
	Label      string   // data channel label (initiator only)
	Greeting   string   // sent once when the channel opens; empty disables
	Debug      bool
}

// Validate checks the fields a session cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.Role != RoleInitiator && c.Role != RoleResponder {
		errs = append(errs, fmt.Errorf("invalid role %q", c.Role))
	}
	if strings.TrimSpace(c.SignalURL) == "" {
		errs = append(errs, errors.New("missing signaling url"))
	}
	if strings.TrimSpace(c.LocalID) == "" {
		errs = append(errs, errors.New("missing local id"))
	}
	if strings.TrimSpace(c.RemoteID) == "" {
		errs = append(errs, errors.New("missing remote id"))
	}
	if strings.Contains(c.LocalID, "/") || strings.Contains(c.RemoteID, "/") {
		errs = append(errs, errors.New("peer ids must not contain '/'"))
	}
	if c.LocalID != "" && c.LocalID == c.RemoteID {
		errs = append(errs, errors.New("local and remote id must differ"))
	}
	if _, err := ParseICEServers(c.ICEServers); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SignalingEndpoint returns the URL a peer connects to: the server base URL
// with the local id as the final path segment. Without a local id the URL is
// used as given. http(s) schemes are mapped to ws(s); a bare host defaults
// to wss.
func (c Config) SignalingEndpoint() (string, error) {
	raw := strings.TrimSpace(c.SignalURL)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid signaling URL: %s", c.SignalURL)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid signaling URL scheme: %s", u.Scheme)
	}

	if c.LocalID == "" {
		return u.String(), nil
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + c.LocalID
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Load parses args with environment fallbacks. Flags win over env.
func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	debugDefault := false
	if raw, ok := lookup(envVarDebug); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarDebug, raw, err)
		}
		debugDefault = v
	}

	fs := flag.NewFlagSet("datastream", flag.ContinueOnError)

	role := fs.String("role", envOrDefault(lookup, envVarRole, ""), "Role: initiator or responder")
	signalURL := fs.String("signal", envOrDefault(lookup, envVarSignalURL, ""), "Signaling server URL, e.g. ws://localhost:8000")
	localID := fs.String("id", envOrDefault(lookup, envVarLocalID, ""), "Local peer id (random when empty)")
	remoteID := fs.String("remote", envOrDefault(lookup, envVarRemoteID, ""), "Remote peer id")
	iceServers := fs.String("ice", envOrDefault(lookup, envVarICEServers, ""), "Comma-separated stun:/turn: URLs")
	label := fs.String("label", envOrDefault(lookup, envVarLabel, DefaultLabel), "Data channel label")
	greeting := fs.String("greeting", envOrDefault(lookup, envVarGreeting, ""), "Greeting sent when the channel opens")
	debug := fs.Bool("debug", debugDefault, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		SignalURL:  strings.TrimSpace(*signalURL),
		LocalID:    strings.TrimSpace(*localID),
		RemoteID:   strings.TrimSpace(*remoteID),
		ICEServers: splitCommaSeparated(*iceServers),
		Label:      strings.TrimSpace(*label),
		Greeting:   *greeting,
		Debug:      *debug,
	}

	if strings.TrimSpace(*role) != "" {
		r, err := ParseRole(*role)
		if err != nil {
			return Config{}, err
		}
		cfg.Role = r
	}

	if cfg.Label == "" {
		cfg.Label = DefaultLabel
	}

	return cfg, nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}
