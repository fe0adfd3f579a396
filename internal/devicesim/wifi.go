package devicesim

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/panelctl/pkg/types"
	"github.com/rs/zerolog/log"
)

func (e *Emulator) handleWifiScan(c *gin.Context) {
	out := make([]types.WifiNetwork, 0, len(e.networks))
	for _, n := range e.networks {
		out = append(out, types.WifiNetwork{SSID: n.SSID, RSSI: types.RSSI(n.RSSI), Enc: n.Enc})
	}
	c.JSON(http.StatusOK, out)
}

func (e *Emulator) handleWifiConnect(c *gin.Context) {
	var req types.WifiConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		replyError(c, http.StatusInternalServerError, "invalid json")
		return
	}
	if req.SSID == "" {
		replyError(c, http.StatusInternalServerError, "missing ssid")
		return
	}

	if !e.joinable(req.SSID, req.Password) {
		log.Warn().Str("ssid", req.SSID).Msg("wifi connect failed")
		c.JSON(http.StatusOK, types.WifiConnectResponse{Status: "error", SSID: req.SSID, Message: "failed to connect"})
		return
	}

	ctx := c.Request.Context()
	dc, err := e.store.Load(ctx)
	if err == nil {
		dc.WifiSSID = req.SSID
		dc.WifiPassword = req.Password
		err = e.store.Save(ctx, dc)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to save wifi config")
	}

	e.mu.Lock()
	e.connected = req.SSID
	e.mu.Unlock()

	log.Info().Str("ssid", req.SSID).Msg("wifi connected")
	c.JSON(http.StatusOK, types.WifiConnectResponse{Status: "connected", SSID: req.SSID, IP: StationIP})
}

func (e *Emulator) joinable(ssid, password string) bool {
	for _, n := range e.networks {
		if n.SSID == ssid {
			return n.Enc == 0 || n.Password == password
		}
	}
	return false
}

func (e *Emulator) handleWifiStatus(c *gin.Context) {
	e.mu.Lock()
	ssid := e.connected
	e.mu.Unlock()

	st := types.WifiStatus{Connected: ssid != "", SSID: ssid}
	if st.Connected {
		st.IP = StationIP
	}
	c.JSON(http.StatusOK, st)
}
