package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// shared types across the application
// 1st: transport mode a client session runs in
// 2nd: session snapshot exposed by the server registry and the admin API

// ErrSessionNotFound is returned when a session ID is not registered.
var ErrSessionNotFound = errors.New("session not found")

// Mode selects which transport primitive a session uses.
type Mode int

const (
	Bidirectional Mode = iota
	Unidirectional
	Datagram
)

func (m Mode) String() string {
	switch m {
	case Bidirectional:
		return "bidirectional"
	case Unidirectional:
		return "unidirectional"
	case Datagram:
		return "datagram"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts the names returned by Mode.String plus the short forms
// bi, uni and dgram.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bidirectional", "bi":
		return Bidirectional, nil
	case "unidirectional", "uni":
		return Unidirectional, nil
	case "datagram", "dgram":
		return Datagram, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want bidirectional, unidirectional or datagram)", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// SessionInfo is a point-in-time view of one server connection.
type SessionInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
	Requests    uint64    `json:"requests"`  // requests answered across all modes
	Datagrams   uint64    `json:"datagrams"` // datagram replies sent
}
