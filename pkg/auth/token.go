// Package auth generates device access tokens
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Word lists for readable tokens. Each list has a power-of-two length so a
// random byte maps onto it without bias.
var (
	tokenAdjectives = []string{
		"amber", "brisk", "calm", "dusty", "eager", "faint", "gentle", "hazy",
		"icy", "jolly", "keen", "lucid", "mellow", "nimble", "olive", "pale",
		"quiet", "rapid", "silent", "tidy", "upper", "vivid", "warm", "young",
		"bold", "crisp", "deep", "early", "fresh", "grand", "honest", "lunar",
	}

	tokenNouns = []string{
		"anvil", "beacon", "canyon", "delta", "ember", "falcon", "glacier", "harbor",
		"island", "jasper", "kernel", "lantern", "meadow", "nebula", "orchid", "pixel",
		"quartz", "raven", "signal", "tundra", "umbra", "valley", "willow", "yonder",
		"comet", "dune", "fjord", "grove", "heron", "lagoon", "matrix", "prism",
	}
)

var tokenPattern = regexp.MustCompile(`^panel-([a-z]+)-([a-z]+)-([0-9a-f]{16})$`)

// GenerateToken returns a fresh token of the form
// panel-{adjective}-{noun}-{16 hex chars}
func GenerateToken() (string, error) {
	picks := make([]byte, 2)
	if _, err := rand.Read(picks); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate hex component: %w", err)
	}

	return fmt.Sprintf("panel-%s-%s-%s",
		tokenAdjectives[int(picks[0])%len(tokenAdjectives)],
		tokenNouns[int(picks[1])%len(tokenNouns)],
		hex.EncodeToString(suffix),
	), nil
}

// IsGeneratedToken reports whether token has the shape GenerateToken produces.
// Hand-picked tokens are still accepted by the device; this only tells them apart.
func IsGeneratedToken(token string) bool {
	m := tokenPattern.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return false
	}
	return slices.Contains(tokenAdjectives, m[1]) && slices.Contains(tokenNouns, m[2])
}
