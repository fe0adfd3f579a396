package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateToken()
		require.NoError(t, err)

		assert.True(t, IsGeneratedToken(token), "unexpected format: %s", token)
		assert.False(t, seen[token], "duplicate token: %s", token)
		seen[token] = true

		parts := strings.Split(token, "-")
		require.Len(t, parts, 4)
		assert.Equal(t, "panel", parts[0])
		assert.Len(t, parts[3], 16)
	}
}

func TestIsGeneratedToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"generated shape", "panel-amber-anvil-0123456789abcdef", true},
		{"surrounding space", "  panel-calm-prism-0123456789abcdef\n", true},
		{"unknown adjective", "panel-purple-anvil-0123456789abcdef", false},
		{"unknown noun", "panel-amber-teapot-0123456789abcdef", false},
		{"uppercase hex", "panel-amber-anvil-0123456789ABCDEF", false},
		{"short hex", "panel-amber-anvil-0123", false},
		{"wrong prefix", "north-amber-anvil-0123456789abcdef", false},
		{"hand picked", "hunter2", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsGeneratedToken(tt.token))
		})
	}
}
