package device

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/lgulliver/panelctl/pkg/types"
)

// ErrMissingToken is returned before contacting the device
var ErrMissingToken = errors.New("token is required")

// Reboot asks the device to restart
func (c *Client) Reboot(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/reboot", nil, nil, "")
}

// OTAStatus reports the device side view of the current image write
func (c *Client) OTAStatus(ctx context.Context) (*types.OTAStatus, error) {
	var st types.OTAStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ota/status", nil, &st, ""); err != nil {
		return nil, err
	}
	return &st, nil
}

// CheckToken validates token against the device, independent of the token
// the client is configured with
func (c *Client) CheckToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}
	return c.doJSON(ctx, http.MethodGet, "/api/v1/token/check", nil, nil, token)
}

// SaveToken replaces the device token, authenticating with current
func (c *Client) SaveToken(ctx context.Context, current, next string) error {
	current = strings.TrimSpace(current)
	next = strings.TrimSpace(next)
	if current == "" || next == "" {
		return ErrMissingToken
	}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/token/save", types.TokenSaveRequest{Token: next}, nil, current)
}
