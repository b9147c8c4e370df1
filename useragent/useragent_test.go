package useragent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"naoris_farm/store"
)

func TestUserAgentStablePerSessionKey(t *testing.T) {
	a := NewAllocator(store.NewMemoryStringMap())

	first, err := a.UserAgent("0xabc")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	for i := 0; i < 10; i++ {
		again, err := a.UserAgent("0xabc")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestUserAgentPersisted(t *testing.T) {
	s := store.NewMemoryStringMap()
	a := NewAllocator(s)
	ua, err := a.UserAgent("0xdef")
	require.NoError(t, err)

	stored, ok := s.Get("0xdef")
	require.True(t, ok)
	assert.Equal(t, ua, stored)

	// A fresh allocator over the same store keeps the assignment.
	b := NewAllocator(s)
	again, err := b.UserAgent("0xdef")
	require.NoError(t, err)
	assert.Equal(t, ua, again)
}

func TestPlatform(t *testing.T) {
	cases := map[string]string{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X)": "ios",
		"Mozilla/5.0 (iPad; CPU OS 17_4 like Mac OS X)":          "ios",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8)":               "android",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64)":              "Unknown",
	}
	for ua, want := range cases {
		assert.Equal(t, want, Platform(ua), ua)
	}
}

func TestHeadersComposedFresh(t *testing.T) {
	h1 := Headers("Mozilla/5.0 (Linux; Android 14; Pixel 8)")
	h2 := Headers("Mozilla/5.0 (Linux; Android 14; Pixel 8)")
	assert.Equal(t, "android", h1["sec-ch-ua-platform"])

	h1["User-Agent"] = "mutated"
	assert.NotEqual(t, h1["User-Agent"], h2["User-Agent"])
}
