package devicesim

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/panelctl/internal/middleware"
	"github.com/lgulliver/panelctl/pkg/types"
	"github.com/lgulliver/panelctl/pkg/utils"
	"github.com/rs/zerolog/log"
)

// reboot resets the volatile state a real restart would lose
func (e *Emulator) reboot(reason string) {
	e.mu.Lock()
	e.reboots++
	e.playing = ""
	e.ota.cancelRequested = false
	e.mu.Unlock()

	log.Info().Str("reason", reason).Msg("device rebooting")
}

func (e *Emulator) handleReboot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "rebooting"})
	e.reboot("requested")
}

// handleTokenCheck validates the bearer on its own, since it is the one
// route the auth middleware lets through
func (e *Emulator) handleTokenCheck(c *gin.Context) {
	token := middleware.BearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	dc, err := e.store.Load(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load device config")
		replyError(c, http.StatusInternalServerError, "config unavailable")
		return
	}

	if dc.TokenHash == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "no token required"})
		return
	}
	if !utils.CheckToken(token, dc.TokenHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (e *Emulator) handleTokenSave(c *gin.Context) {
	var req types.TokenSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		replyError(c, http.StatusBadRequest, "invalid json")
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		replyError(c, http.StatusBadRequest, "missing token")
		return
	}

	hash, err := utils.HashToken(token, e.cfg.BCryptCost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash token")
		replyError(c, http.StatusInternalServerError, "failed to save token")
		return
	}

	ctx := c.Request.Context()
	dc, err := e.store.Load(ctx)
	if err == nil {
		dc.TokenHash = hash
		err = e.store.Save(ctx, dc)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to save token")
		replyError(c, http.StatusInternalServerError, "failed to save token")
		return
	}

	log.Info().Msg("device token updated")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "token saved"})
}
