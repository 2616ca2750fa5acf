package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ParseICEServers turns connectivity-server URLs into pion ICE servers, one
// server per URL. TURN credentials may be embedded as userinfo:
//
//	turn:alice:secret@turn.example.com:3478?transport=udp
func ParseICEServers(urls []string) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, 0, len(urls))
	for i, raw := range urls {
		server, err := parseICEServer(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, server)
	}
	return out, nil
}

func parseICEServer(raw string) (webrtc.ICEServer, error) {
	if raw == "" {
		return webrtc.ICEServer{}, errors.New("empty url")
	}

	scheme, rest, ok := strings.Cut(raw, ":")
	if !ok || !isAllowedICEScheme(scheme+":") {
		return webrtc.ICEServer{}, fmt.Errorf("unsupported url scheme: %q", raw)
	}

	server := webrtc.ICEServer{URLs: []string{raw}}

	if at := strings.LastIndex(rest, "@"); at >= 0 {
		user, pass, _ := strings.Cut(rest[:at], ":")
		server.URLs = []string{scheme + ":" + rest[at+1:]}
		server.Username = user
		if pass != "" {
			server.Credential = pass
		}
	}

	if err := validateICEServer(server); err != nil {
		return webrtc.ICEServer{}, err
	}
	return server, nil
}

func splitCommaSeparated(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func validateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	requiresTurnCreds := false
	for _, raw := range server.URLs {
		url := strings.TrimSpace(raw)
		if url == "" {
			return errors.New("urls must not contain empty entries")
		}
		if !isAllowedICEScheme(url) {
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
		if strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:") {
			requiresTurnCreds = true
		}
	}

	if requiresTurnCreds {
		if strings.TrimSpace(server.Username) == "" {
			return errors.New("turn urls require username")
		}
		cred, ok := server.Credential.(string)
		if !ok || strings.TrimSpace(cred) == "" {
			return errors.New("turn urls require credential")
		}
	}

	return nil
}

func isAllowedICEScheme(url string) bool {
	switch {
	case strings.HasPrefix(url, "stun:"),
		strings.HasPrefix(url, "stuns:"),
		strings.HasPrefix(url, "turn:"),
		strings.HasPrefix(url, "turns:"):
		return true
	default:
		return false
	}
}
