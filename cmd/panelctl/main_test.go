package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/panelctl/internal/devicesim"
	"github.com/lgulliver/panelctl/internal/ota"
	"github.com/lgulliver/panelctl/internal/storage"
	tokengen "github.com/lgulliver/panelctl/pkg/auth"
	"github.com/lgulliver/panelctl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t         *testing.T
	url       string
	tokenFile string
	sim       *devicesim.Emulator
}

func setupCLI(t *testing.T, cfg config.EmulatorConfig) *cli {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "history.db"))

	blobs, err := storage.NewLocalStorage(filepath.Join(dir, "flash"))
	require.NoError(t, err)
	sim, err := devicesim.New(context.Background(), cfg, devicesim.NewMemoryConfigStore(), blobs)
	require.NoError(t, err)

	server := httptest.NewServer(sim.Router())
	t.Cleanup(server.Close)

	return &cli{t: t, url: server.URL, tokenFile: filepath.Join(dir, "token"), sim: sim}
}

func defaultSim() config.EmulatorConfig {
	return config.EmulatorConfig{
		FirmwareCapacity:   1 << 20,
		FilesystemCapacity: 64 << 10,
		NTPServer:          "pool.ntp.org",
		BCryptCost:         4,
	}
}

func (c *cli) runCtx(ctx context.Context, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	full := append([]string{"-device", c.url, "-token-file", c.tokenFile, "-log-level", "error"}, args...)
	code := run(ctx, full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (c *cli) run(args ...string) (int, string, string) {
	return c.runCtx(context.Background(), args...)
}

func writeFile(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xE9}, size), 0644))
	return path
}

func TestRun_Usage(t *testing.T) {
	c := setupCLI(t, defaultSim())

	code, _, stderr := c.run()
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Usage: panelctl")

	code, _, stderr = c.run("frobnicate")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)

	code, _, stderr = c.run("wifi", "dance")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, `unknown wifi command "dance"`)

	code, _, _ = c.run("ota", "upload")
	assert.Equal(t, exitUsage, code)
}

func TestRun_Wifi(t *testing.T) {
	c := setupCLI(t, defaultSim())

	code, out, _ := c.run("wifi", "scan")
	require.Equal(t, exitOK, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(devicesim.DefaultNetworks)+1)
	assert.True(t, strings.HasPrefix(lines[1], "HomeNet"))
	assert.Contains(t, out, "open")

	code, out, _ = c.run("wifi", "status")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "Not connected.\n", out)

	code, _, stderr := c.run("wifi", "connect", "-ssid", "HomeNet", "-password", "bad")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "failed to connect")

	code, out, _ = c.run("wifi", "connect", "-ssid", "HomeNet", "-password", "hunter22")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Connected to HomeNet, IP "+devicesim.StationIP)
}

func TestRun_NTP(t *testing.T) {
	c := setupCLI(t, defaultSim())

	code, out, _ := c.run("ntp", "sync")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "network unavailable")
	assert.Contains(t, out, "Synced at: never")

	c.run("wifi", "connect", "-ssid", "CafeGuest")

	code, out, _ = c.run("ntp", "sync")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Last sync: ok")

	code, _, _ = c.run("ntp", "set", "time.lan")
	assert.Equal(t, exitOK, code)
	code, out, _ = c.run("ntp", "get")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "time.lan\n", out)
}

func TestRun_GIF(t *testing.T) {
	c := setupCLI(t, defaultSim())
	path := writeFile(t, "party.gif", 1536)

	code, out, _ := c.run("gif", "upload", path)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "party.gif: GIF uploaded successfully")

	code, out, _ = c.run("gif", "list")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "party.gif")
	assert.Contains(t, out, "1.5 KB")
	assert.Contains(t, out, "Used 1.5 KB of 64 KB")

	code, out, _ = c.run("gif", "play", "party.gif")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Playing /gif/party.gif")

	code, _, _ = c.run("gif", "stop")
	assert.Equal(t, exitOK, code)

	code, _, _ = c.run("gif", "delete", "party.gif")
	assert.Equal(t, exitOK, code)

	code, _, stderr := c.run("gif", "delete", "party.gif")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "file not found")
}

func TestRun_Token(t *testing.T) {
	cfg := defaultSim()
	cfg.InitialToken = "s3cret"
	c := setupCLI(t, cfg)

	code, out, _ := c.run("token", "show")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "No token stored yet.\n", out)

	code, _, stderr := c.run("wifi", "status")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "unauthorized")

	code, _, stderr = c.run("token", "save", "wrong")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "invalid token")

	code, out, _ = c.run("token", "save", "s3cret")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "Token valid and saved.\n", out)

	code, _, _ = c.run("wifi", "status")
	assert.Equal(t, exitOK, code)

	code, out, _ = c.run("token", "change", "rotated")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "Token updated and saved.\n", out)

	code, out, _ = c.run("token", "show")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "Token loaded from storage.\nrotated\n", out)

	code, _, _ = c.run("wifi", "status")
	assert.Equal(t, exitOK, code)

	code, out, _ = c.run("token", "clear")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "Token removed.\n", out)

	code, _, _ = c.run("wifi", "status")
	assert.Equal(t, exitFailure, code)
}

func TestRun_TokenGenerate(t *testing.T) {
	cfg := defaultSim()
	cfg.InitialToken = "s3cret"
	c := setupCLI(t, cfg)

	code, out, _ := c.run("token", "generate")
	assert.Equal(t, exitOK, code)
	assert.True(t, tokengen.IsGeneratedToken(out), "unexpected token %q", out)

	code, _, stderr := c.run("token", "generate", "-change")
	assert.Equal(t, exitFailure, code)
	assert.NotEmpty(t, stderr)

	code, _, _ = c.run("token", "save", "s3cret")
	require.Equal(t, exitOK, code)

	code, out, _ = c.run("token", "generate", "-change")
	require.Equal(t, exitOK, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Token updated and saved.", lines[0])
	assert.True(t, tokengen.IsGeneratedToken(lines[1]))

	stored, err := os.ReadFile(c.tokenFile)
	require.NoError(t, err)
	assert.Equal(t, lines[1], strings.TrimSpace(string(stored)))

	code, _, _ = c.run("wifi", "status")
	assert.Equal(t, exitOK, code)
}

func TestRun_OTAUploadAndHistory(t *testing.T) {
	c := setupCLI(t, defaultSim())

	code, out, _ := c.run("ota", "history")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "No uploads recorded.\n", out)

	fw := writeFile(t, "panel-fw-1.2.0.bin", 200<<10)
	code, out, stderr := c.run("ota", "upload", fw)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "firmware: Update OK (204800 bytes)")
	assert.Equal(t, 1, c.sim.Reboots())

	older := writeFile(t, "panel-fw-1.1.0.bin", 1024)
	code, _, stderr = c.run("ota", "upload", older)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "older than the installed one")
	assert.Contains(t, stderr, "-allow-downgrade")

	code, _, _ = c.run("ota", "upload", "-allow-downgrade", older)
	assert.Equal(t, exitOK, code)

	fs := writeFile(t, "littlefs.bin", 65<<10)
	code, _, stderr = c.run("ota", "upload", "-target", "fs", fs)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "Not Enough Space")

	code, out, _ = c.run("ota", "history", "-n", "2")
	assert.Equal(t, exitOK, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "littlefs.bin")
	assert.Contains(t, lines[1], "failed")
	assert.Contains(t, lines[2], "panel-fw-1.1.0.bin")
	assert.Contains(t, lines[2], "succeeded")

	code, out, _ = c.run("ota", "status")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "State:   failed")
}

func TestRun_OTAUploadValidation(t *testing.T) {
	c := setupCLI(t, defaultSim())

	code, _, stderr := c.run("ota", "upload", writeFile(t, "image.hex", 10))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "invalid image")

	code, _, stderr = c.run("ota", "upload", "-target", "bootloader", writeFile(t, "fw.bin", 10))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "unknown upload target")

	code, _, _ = c.run("ota", "upload", filepath.Join(t.TempDir(), "missing.bin"))
	assert.Equal(t, exitFailure, code)
}

func TestRun_OTAUploadInterrupted(t *testing.T) {
	cfg := defaultSim()
	cfg.ChunkDelay = 5 * time.Millisecond
	c := setupCLI(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	code, _, stderr := c.runCtx(ctx, "ota", "upload", writeFile(t, "fw.bin", 1<<20))
	assert.Equal(t, exitCancelled, code)
	assert.Contains(t, stderr, "Upload canceled")
	assert.Zero(t, c.sim.Reboots())

	code, out, _ := c.run("ota", "history")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "cancelled")
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		name    string
		session ota.Session
		want    string
	}{
		{
			name:    "known size with eta",
			session: ota.Session{SizeKnown: true, BytesSent: 512 << 10, TotalBytes: 1 << 20, ProgressPercent: 50, ETASeconds: 3, ETAKnown: true},
			want:    "[===============>              ]  50%  512 KB / 1 MB  ETA 3s",
		},
		{
			name:    "unknown size",
			session: ota.Session{BytesSent: 2048, TotalBytes: 2048, ProgressPercent: 7},
			want:    "[==>                           ]   7%  2 KB sent  ETA --",
		},
		{
			name:    "complete bar",
			session: ota.Session{SizeKnown: true, BytesSent: 10, TotalBytes: 10, ProgressPercent: 100},
			want:    "[==============================] 100%  10 B / 10 B  ETA --",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatProgress(tt.session))
		})
	}
}
