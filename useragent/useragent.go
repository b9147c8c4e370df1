package useragent

import (
	"math/rand"
	"strings"
	"sync"

	"naoris_farm/store"
)

// Default pool of mobile browser identities handed out to new sessions.
var defaultPool = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/127.0.6533.77 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPad; CPU OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.64 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.64 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 14; 2312DRA50G) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.6478.122 Mobile Safari/537.36",
}

// Allocator hands out a stable user agent per session key, persisted across
// runs so the remote side keeps seeing the same device fingerprint.
type Allocator struct {
	store store.StringMap
	pool  []string
	mu    sync.Mutex
}

func NewAllocator(s store.StringMap) *Allocator {
	return &Allocator{store: s, pool: defaultPool}
}

// UserAgent returns the persisted agent for the key, assigning a random one
// from the pool on first use.
func (a *Allocator) UserAgent(sessionKey string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ua, ok := a.store.Get(sessionKey); ok && ua != "" {
		return ua, nil
	}
	ua := a.pool[rand.Intn(len(a.pool))]
	if err := a.store.Set(sessionKey, ua); err != nil {
		return "", err
	}
	return ua, nil
}

// Platform derives the client-hint platform tag from a user agent string.
func Platform(ua string) string {
	switch {
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		return "ios"
	case strings.Contains(ua, "Android"):
		return "android"
	default:
		return "Unknown"
	}
}

// Headers composes the per-session header overrides for a user agent. The
// returned map is fresh every call; nothing shared is ever mutated.
func Headers(ua string) map[string]string {
	platform := Platform(ua)
	return map[string]string{
		"User-Agent":         ua,
		"sec-ch-ua":          `Not)A;Brand";v="99", "` + platform + ` WebView";v="127", "Chromium";v="127`,
		"sec-ch-ua-platform": platform,
	}
}
