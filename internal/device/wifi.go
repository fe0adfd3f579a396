package device

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/lgulliver/panelctl/pkg/types"
	"github.com/lgulliver/panelctl/pkg/utils"
)

// ErrMissingSSID is returned before contacting the device
var ErrMissingSSID = errors.New("ssid is required")

// ScanNetworks lists visible networks, strongest first
func (c *Client) ScanNetworks(ctx context.Context) ([]types.Network, error) {
	var raw []types.WifiNetwork
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/wifi/scan", nil, &raw, ""); err != nil {
		return nil, err
	}
	return EnrichNetworks(raw), nil
}

// EnrichNetworks adds display fields to a raw scan and sorts it by RSSI
func EnrichNetworks(raw []types.WifiNetwork) []types.Network {
	out := make([]types.Network, 0, len(raw))
	for _, n := range raw {
		rssi := int(n.RSSI)
		out = append(out, types.Network{
			SSID:        n.SSID,
			RSSI:        rssi,
			RSSIDisplay: strconv.Itoa(rssi) + " dBm",
			Bars:        utils.SignalBars(rssi),
			Secured:     n.Enc != 0,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RSSI > out[j].RSSI })
	return out
}

// Connect joins a network. Open networks take an empty password.
func (c *Client) Connect(ctx context.Context, ssid, password string) (*types.WifiConnectResponse, error) {
	if ssid == "" {
		return nil, ErrMissingSSID
	}

	var resp types.WifiConnectResponse
	req := types.WifiConnectRequest{SSID: ssid, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/wifi/connect", req, &resp, ""); err != nil {
		return nil, err
	}
	if resp.Status != "connected" {
		msg := resp.Message
		if msg == "" {
			msg = "failed"
		}
		return &resp, &APIError{StatusCode: http.StatusOK, Message: msg}
	}
	return &resp, nil
}

// WifiStatus reports the station connection
func (c *Client) WifiStatus(ctx context.Context) (*types.WifiStatus, error) {
	var st types.WifiStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/wifi/status", nil, &st, ""); err != nil {
		return nil, err
	}
	return &st, nil
}
