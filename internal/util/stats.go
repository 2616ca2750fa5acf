package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Session counters
// ──────────────────────────────────────────────────────────────────────────────

// Stats counts signaling and data-channel traffic for one session.
type Stats struct {
	SignalsSent    atomic.Int64 // signaling messages accepted by the socket
	SignalsRecv    atomic.Int64 // signaling messages delivered to the handler
	SignalsDropped atomic.Int64 // inbound frames dropped (decode failure or foreign id)
	MessagesSent   atomic.Int64 // payloads accepted by the data channel
	MessagesRecv   atomic.Int64 // payloads received from the data channel
	BytesSent      atomic.Int64 // payload bytes written to the data channel
	BytesRecv      atomic.Int64 // payload bytes read from the data channel
}

func (s *Stats) AddSignalSent()    { s.SignalsSent.Add(1) }
func (s *Stats) AddSignalRecv()    { s.SignalsRecv.Add(1) }
func (s *Stats) AddSignalDropped() { s.SignalsDropped.Add(1) }

func (s *Stats) AddSent(n int) {
	s.MessagesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *Stats) AddRecv(n int) {
	s.MessagesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs data-channel throughput
// every interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, s *Stats, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevSent, prevRecv, prevMsgSent, prevMsgRecv int64
		for {
			select {
			case <-ticker.C:
				sent := s.BytesSent.Load()
				recv := s.BytesRecv.Load()
				msgSent := s.MessagesSent.Load()
				msgRecv := s.MessagesRecv.Load()

				outS := float64(sent-prevSent) / secs
				inS := float64(recv-prevRecv) / secs
				outM := msgSent - prevMsgSent
				inM := msgRecv - prevMsgRecv

				if inM > 0 || outM > 0 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, inM, outM))
				}

				prevSent = sent
				prevRecv = recv
				prevMsgSent = msgSent
				prevMsgRecv = msgRecv

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, inM, outM int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Msg: %3d↓ %3d↑",
		formatBytes(inS),
		formatBytes(outS),
		inM,
		outM,
	)
}
