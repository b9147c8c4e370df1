package utils

import (
	"bufio"
	"context"
	"math/rand"
	"os"
	"strings"
	"time"
)

// Sleep blocks for d or until the context is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LoadLines reads a line-per-entry file (proxy.txt, wallets.txt), skipping
// blanks and comments. A missing file yields an empty slice, not an error.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// RandomInRange returns a random integer in [min, max].
func RandomInRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.Intn(max-min+1)
}

// GenerateDeviceHash produces a random 9-digit device identity.
func GenerateDeviceHash() int64 {
	return 100000000 + rand.Int63n(900000000)
}
