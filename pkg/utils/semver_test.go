package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageVersion(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "geekmagic-1.4.2.bin", want: "1.4.2"},
		{name: "firmware_v2.0.bin", want: "2.0.0"},
		{name: "GEEKMAGIC-FW-V1.2.3-RC1.BIN", want: "1.2.3-RC1"},
		{name: "littlefs-0.9.1.bin", want: "0.9.1"},
		{name: "firmware.bin", want: ""},
		{name: "build-42.bin", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ImageVersion(tt.name)
			if tt.want == "" {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestIsDowngrade(t *testing.T) {
	assert.True(t, IsDowngrade("fw-1.4.2.bin", "fw-1.4.1.bin"))
	assert.True(t, IsDowngrade("fw-1.4.2.bin", "fw-1.4.2-rc1.bin"))
	assert.False(t, IsDowngrade("fw-1.4.2.bin", "fw-1.4.2.bin"))
	assert.False(t, IsDowngrade("fw-1.4.2.bin", "fw-1.5.0.bin"))
	assert.False(t, IsDowngrade("firmware.bin", "fw-0.1.0.bin"))
	assert.False(t, IsDowngrade("fw-1.0.0.bin", "firmware.bin"))
}

func TestIsPrerelease(t *testing.T) {
	assert.True(t, IsPrerelease("fw-1.0.0-beta.1.bin"))
	assert.False(t, IsPrerelease("fw-1.0.0.bin"))
	assert.False(t, IsPrerelease("fw.bin"))
}
