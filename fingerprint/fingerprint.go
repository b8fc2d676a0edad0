// Package fingerprint derives the per (device, poll) identifier voters send
// along with a ballot.
//
// The digest is computed by the client and is therefore attacker controlled.
// The server keeps it as a Hint: a duplicate-detection heuristic, never proof of
// identity.
//
// Generate and Session are the reference recipe for clients; the server only
// handles the resulting Hint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Hint is an untrusted device identifier supplied by a client.
type Hint string

func (h Hint) String() string {
	return string(h)
}

func (h Hint) Empty() bool {
	return strings.TrimSpace(string(h)) == ""
}

// Attributes is the bundle of browser and hardware signals folded into a digest.
type Attributes struct {
	ScreenResolution    string
	Timezone            string
	Platform            string
	GPUVendor           string
	GPURenderer         string
	HardwareConcurrency int
	DeviceMemory        float64
	ColorDepth          int
	TouchPoints         int
	Languages           []string
	UserAgent           string
	Timestamp           time.Time
	PollID              string
}

func (a Attributes) values() []string {
	var ts string
	if !a.Timestamp.IsZero() {
		ts = a.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	num := func(n int) string {
		if n == 0 {
			return ""
		}
		return strconv.Itoa(n)
	}
	mem := ""
	if a.DeviceMemory != 0 {
		mem = strconv.FormatFloat(a.DeviceMemory, 'f', -1, 64)
	}
	return []string{
		a.UserAgent,
		strings.Join(a.Languages, ","),
		ts,
		a.ScreenResolution,
		a.Timezone,
		a.Platform,
		a.GPUVendor,
		a.GPURenderer,
		num(a.HardwareConcurrency),
		mem,
		num(a.ColorDepth),
		num(a.TouchPoints),
		strings.Join(a.Languages, ","),
		a.PollID,
	}
}

// Generate hashes the non-empty attribute values, joined by "|", with SHA-256.
// The timestamp is part of the input, so two calls at different instants
// produce different hints for the same device. Use a Session to keep one hint
// per poll.
func Generate(a Attributes) Hint {
	vals := a.values()
	parts := vals[:0]
	for _, v := range vals {
		if v != "" {
			parts = append(parts, v)
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return Hint(hex.EncodeToString(sum[:]))
}

// Session remembers the first hint generated for each poll, the way a browser
// keeps it in storage for the rest of the voting session.
type Session struct {
	mtx   sync.Mutex
	hints map[string]Hint
	now   func() time.Time
}

func NewSession() *Session {
	return &Session{hints: map[string]Hint{}, now: time.Now}
}

// For returns the stored hint for pollID, generating it from base on first use.
func (s *Session) For(pollID string, base Attributes) Hint {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if h, ok := s.hints[pollID]; ok {
		return h
	}
	base.PollID = pollID
	if base.Timestamp.IsZero() {
		base.Timestamp = s.now()
	}
	h := Generate(base)
	s.hints[pollID] = h
	return h
}

// Forget drops the stored hint, e.g. when the client clears storage.
func (s *Session) Forget(pollID string) {
	s.mtx.Lock()
	delete(s.hints, pollID)
	s.mtx.Unlock()
}
