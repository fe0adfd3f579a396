package device

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/lgulliver/panelctl/pkg/types"
)

// ErrMissingNTPServer is returned before contacting the device
var ErrMissingNTPServer = errors.New("ntp server is required")

// NTPStatus returns the outcome of the last sync
func (c *Client) NTPStatus(ctx context.Context) (*types.NTPStatus, error) {
	var st types.NTPStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ntp/status", nil, &st, ""); err != nil {
		return nil, err
	}
	return &st, nil
}

// SyncNTP triggers a sync. A failed sync is reported through LastOK, not as
// an error, since the device still answers with its status.
func (c *Client) SyncNTP(ctx context.Context) (*types.NTPStatus, error) {
	var st types.NTPStatus
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/ntp/sync", nil, &st, ""); err != nil {
		return nil, err
	}
	st.LastOK = st.Status == "ok"
	return &st, nil
}

// NTPConfig returns the configured server
func (c *Client) NTPConfig(ctx context.Context) (*types.NTPConfig, error) {
	var cfg types.NTPConfig
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ntp/config", nil, &cfg, ""); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetNTPServer stores a new server; the device syncs right after saving
func (c *Client) SetNTPServer(ctx context.Context, server string) error {
	server = strings.TrimSpace(server)
	if server == "" {
		return ErrMissingNTPServer
	}

	var resp types.NTPConfig
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/ntp/config", types.NTPConfig{NTPServer: server}, &resp, ""); err != nil {
		return err
	}
	if resp.Status != "ok" {
		msg := resp.Message
		if msg == "" {
			msg = "save failed"
		}
		return &APIError{StatusCode: http.StatusOK, Message: msg}
	}
	return nil
}
