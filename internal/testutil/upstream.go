// Package testutil provides shared test utilities: a fake Warpcast/OpenRank
// upstream and config writers for tests that drive the full stack.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// Upstream serves the Warpcast and OpenRank endpoints fidchannels calls.
// Fields must be set before the first request; use the setters afterwards.
type Upstream struct {
	Channels []map[string]any // followed channels, served as one page
	MemberOf map[string]bool  // channel IDs the probed FID is a member of
	Engaged  []int            // engagement neighbours
	Frames   []map[string]any // ranked frames
	Status   int              // when non-zero, every request fails with it

	ChannelCalls atomic.Int32
	MembersCalls atomic.Int32

	mu            sync.Mutex
	authorization string
}

// DefaultUpstream returns three followed channels, membership of "dev",
// two engagement neighbours and one ranked frame.
func DefaultUpstream() *Upstream {
	return &Upstream{
		Channels: []map[string]any{
			{"id": "memes", "name": "Memes", "followerCount": 500},
			{"id": "farcaster", "name": "Farcaster", "followerCount": 9000},
			{"id": "dev", "name": "Dev", "followerCount": 40},
		},
		MemberOf: map[string]bool{"dev": true},
		Engaged:  []int{10, 11},
		Frames: []map[string]any{
			{"url": "https://frame.example/a", "frameName": "A", "score": 0.9},
		},
	}
}

// Start serves u on a test server closed at cleanup and returns its URL.
func (u *Upstream) Start(t *testing.T) string {
	t.Helper()
	return Serve(t, u)
}

// Serve serves h on a test server closed at cleanup and returns its URL.
func Serve(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

// Authorization returns the Authorization header of the last request.
func (u *Upstream) Authorization() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.authorization
}

// SetEngaged replaces the engagement neighbours.
func (u *Upstream) SetEngaged(fids ...int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Engaged = fids
}

// SetStatus makes every following request fail with status (0 restores).
func (u *Upstream) SetStatus(status int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Status = status
}

func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.authorization = r.Header.Get("Authorization")
	status, engaged := u.Status, u.Engaged
	u.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"errors":[{"message":"forced"}]}`)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/user-following-channels":
		u.ChannelCalls.Add(1)
		channels := u.Channels
		if channels == nil {
			channels = []map[string]any{}
		}
		writeResult(w, map[string]any{"channels": channels})
	case "/fc/channel-members":
		u.MembersCalls.Add(1)
		channelID := r.URL.Query().Get("channelId")
		members := []map[string]any{}
		if u.MemberOf[channelID] {
			members = append(members, map[string]any{"fid": 3, "channelId": channelID})
		}
		writeResult(w, map[string]any{"members": members})
	case "/graph/neighbors/engagement/fids":
		result := []map[string]any{}
		for _, fid := range engaged {
			result = append(result, map[string]any{"fid": fid, "score": 1})
		}
		writeResult(w, result)
	case "/frames/personalized/rankings/fids":
		frames := u.Frames
		if frames == nil {
			frames = []map[string]any{}
		}
		writeResult(w, frames)
	default:
		http.NotFound(w, r)
	}
}

func writeResult(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}
