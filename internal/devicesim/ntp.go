package devicesim

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/panelctl/pkg/types"
	"github.com/rs/zerolog/log"
)

// syncNow runs one sync and records its outcome. Without a network the
// sync fails straight away.
func (e *Emulator) syncNow(ctx context.Context) bool {
	e.mu.Lock()
	online := e.connected != ""
	e.mu.Unlock()

	if !online {
		e.setNTP(false, "network unavailable", 0)
		log.Warn().Msg("ntp sync requested but network is unavailable")
		return false
	}

	server := e.cfg.NTPServer
	if dc, err := e.store.Load(ctx); err == nil && dc.NTPServer != "" {
		server = dc.NTPServer
	}

	if err := e.ntpSync(ctx, server); err != nil {
		e.setNTP(false, "sync failed", 0)
		log.Error().Err(err).Str("server", server).Msg("ntp sync failed")
		return false
	}

	now := e.now()
	e.setNTP(true, "Synced: "+now.Format("2006-01-02 15:04:05"), now.Unix())
	log.Info().Str("server", server).Msg("ntp synced")
	return true
}

// setNTP records a sync outcome; a zero lastSync keeps the previous one
func (e *Emulator) setNTP(ok bool, status string, lastSync int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ntp.lastOK = ok
	e.ntp.lastStatus = status
	if lastSync > 0 {
		e.ntp.lastSync = lastSync
	}
}

func (e *Emulator) ntpStatus() types.NTPStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.NTPStatus{
		LastOK:       e.ntp.lastOK,
		LastStatus:   e.ntp.lastStatus,
		LastSyncTime: e.ntp.lastSync,
	}
}

func (e *Emulator) handleNTPSync(c *gin.Context) {
	ok := e.syncNow(c.Request.Context())

	st := e.ntpStatus()
	st.Status = "error"
	if ok {
		st.Status = "ok"
	}
	c.JSON(http.StatusOK, st)
}

func (e *Emulator) handleNTPStatus(c *gin.Context) {
	c.JSON(http.StatusOK, e.ntpStatus())
}

func (e *Emulator) handleNTPConfigGet(c *gin.Context) {
	dc, err := e.store.Load(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load device config")
		replyError(c, http.StatusInternalServerError, "config unavailable")
		return
	}
	c.JSON(http.StatusOK, types.NTPConfig{NTPServer: dc.NTPServer})
}

func (e *Emulator) handleNTPConfigSet(c *gin.Context) {
	if c.Request.ContentLength == 0 {
		replyError(c, http.StatusBadRequest, "Missing JSON body")
		return
	}

	var req types.NTPConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		replyError(c, http.StatusBadRequest, "Invalid JSON")
		return
	}

	server := strings.TrimSpace(req.NTPServer)
	if server == "" {
		replyError(c, http.StatusBadRequest, "ntp_server missing")
		return
	}

	ctx := c.Request.Context()
	dc, err := e.store.Load(ctx)
	if err == nil {
		dc.NTPServer = server
		err = e.store.Save(ctx, dc)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to save ntp config")
		replyError(c, http.StatusInternalServerError, "Failed to save config")
		return
	}

	e.syncNow(ctx)
	c.JSON(http.StatusOK, types.NTPConfig{Status: "ok", NTPServer: server})
}
