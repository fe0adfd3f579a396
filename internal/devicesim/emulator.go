// Package devicesim emulates the REST API of a GeekMagic panel running the
// open firmware. It keeps Wi-Fi, NTP, token and OTA state in memory, persists
// the device config through a ConfigStore and writes GIFs and OTA images to
// a BlobStorage.
package devicesim

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/panelctl/internal/middleware"
	"github.com/lgulliver/panelctl/internal/ota"
	"github.com/lgulliver/panelctl/internal/storage"
	"github.com/lgulliver/panelctl/pkg/config"
	"github.com/lgulliver/panelctl/pkg/utils"
	"github.com/rs/zerolog/log"
)

// StationIP is the address the emulator reports once joined to a network
const StationIP = "192.168.1.50"

// Network is a simulated access point. Password is what Connect must be
// given; open networks leave it empty.
type Network struct {
	SSID     string
	RSSI     int
	Enc      int
	Password string
}

// DefaultNetworks is the scan result of a fresh emulator
var DefaultNetworks = []Network{
	{SSID: "Workshop", RSSI: -67, Enc: 3, Password: "solder-fumes"},
	{SSID: "HomeNet", RSSI: -45, Enc: 4, Password: "hunter22"},
	{SSID: "CafeGuest", RSSI: -81, Enc: 0},
	{SSID: "Upstairs", RSSI: -58, Enc: 3, Password: "upstairs"},
}

// NTPSyncFunc performs one time sync against server
type NTPSyncFunc func(ctx context.Context, server string) error

// Option configures an Emulator
type Option func(*Emulator)

// WithNetworks replaces the simulated scan result
func WithNetworks(networks []Network) Option {
	return func(e *Emulator) { e.networks = networks }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Emulator) { e.now = now }
}

// WithNTPSync replaces the default sync, which always succeeds
func WithNTPSync(fn NTPSyncFunc) Option {
	return func(e *Emulator) { e.ntpSync = fn }
}

type otaState struct {
	inProgress      bool
	cancelRequested bool
	bytesWritten    int64
	totalBytes      int64
	err             bool
	message         string
}

type ntpState struct {
	lastOK     bool
	lastStatus string
	lastSync   int64
}

// Emulator is one simulated device
type Emulator struct {
	cfg      config.EmulatorConfig
	store    ConfigStore
	blobs    storage.BlobStorage
	now      func() time.Time
	ntpSync  NTPSyncFunc
	networks []Network

	mu        sync.Mutex
	ota       otaState
	connected string
	ntp       ntpState
	playing   string
	reboots   int
}

// New creates an emulator. A stored Wi-Fi network is joined at once and
// cfg.InitialToken is installed when the store holds no token yet.
func New(ctx context.Context, cfg config.EmulatorConfig, store ConfigStore, blobs storage.BlobStorage, opts ...Option) (*Emulator, error) {
	e := &Emulator{
		cfg:      cfg,
		store:    store,
		blobs:    blobs,
		now:      time.Now,
		networks: DefaultNetworks,
		ntp:      ntpState{lastStatus: "never synced"},
	}
	e.ntpSync = func(ctx context.Context, server string) error { return nil }
	for _, opt := range opts {
		opt(e)
	}

	dc, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load device config: %w", err)
	}

	changed := false
	if dc.NTPServer == "" {
		dc.NTPServer = cfg.NTPServer
		changed = true
	}
	if dc.TokenHash == "" && cfg.InitialToken != "" {
		hash, err := utils.HashToken(cfg.InitialToken, cfg.BCryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash initial token: %w", err)
		}
		dc.TokenHash = hash
		changed = true
	}
	if changed {
		if err := store.Save(ctx, dc); err != nil {
			return nil, fmt.Errorf("failed to save device config: %w", err)
		}
	}

	if dc.WifiSSID != "" {
		e.connected = dc.WifiSSID
	}

	log.Info().
		Str("ssid", dc.WifiSSID).
		Str("ntp_server", dc.NTPServer).
		Bool("token_set", dc.TokenHash != "").
		Msg("device emulator ready")

	return e, nil
}

// Authorize implements middleware.TokenChecker. Without a configured token
// every request is allowed.
func (e *Emulator) Authorize(ctx context.Context, token string) (bool, error) {
	dc, err := e.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if dc.TokenHash == "" {
		return true, nil
	}
	if token == "" {
		return false, nil
	}
	return utils.CheckToken(token, dc.TokenHash), nil
}

// Reboots returns how often the device restarted, including after a
// successful OTA update
func (e *Emulator) Reboots() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reboots
}

// Router builds the HTTP API of the device
func (e *Emulator) Router() *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger())
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	api.Use(middleware.TokenAuth(e, "/api/v1/token/check"))
	{
		api.GET("/wifi/scan", e.handleWifiScan)
		api.POST("/wifi/connect", e.handleWifiConnect)
		api.GET("/wifi/status", e.handleWifiStatus)

		api.POST("/ntp/sync", e.handleNTPSync)
		api.GET("/ntp/status", e.handleNTPStatus)
		api.GET("/ntp/config", e.handleNTPConfigGet)
		api.POST("/ntp/config", e.handleNTPConfigSet)

		api.POST("/reboot", e.handleReboot)

		api.POST("/ota/fw", e.handleOTAUpload(ota.TargetFirmware))
		api.POST("/ota/fs", e.handleOTAUpload(ota.TargetFilesystem))
		api.GET("/ota/status", e.handleOTAStatus)
		api.POST("/ota/cancel", e.handleOTACancel)

		api.GET("/gif", e.handleListGIFs)
		api.POST("/gif", e.handleUploadGIF)
		api.DELETE("/gif", e.handleDeleteGIF)
		api.POST("/gif/play", e.handlePlayGIF)
		api.POST("/gif/stop", e.handleStopGIF)

		api.GET("/token/check", e.handleTokenCheck)
		api.POST("/token/save", e.handleTokenSave)
	}

	router.GET("/gif/:name", e.handleServeGIF)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "not found"})
	})

	return router
}

func replyError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"status": "error", "message": message})
}
