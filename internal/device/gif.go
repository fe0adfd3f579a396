package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/lgulliver/panelctl/pkg/types"
	"github.com/lgulliver/panelctl/pkg/utils"
)

// ErrNotGIF is returned for uploads whose name does not end in .gif
var ErrNotGIF = errors.New("please select a GIF file")

// ErrMissingName is returned when a GIF operation has no file name
var ErrMissingName = errors.New("gif name is required")

// ListGIFs returns stored GIFs and filesystem usage
func (c *Client) ListGIFs(ctx context.Context) (*types.GIFList, error) {
	var list types.GIFList
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/gif", nil, &list, ""); err != nil {
		return nil, err
	}
	if list.Files == nil {
		list.Files = []types.GIFFile{}
	}
	return &list, nil
}

// UploadGIF stores content on the device under name
func (c *Client) UploadGIF(ctx context.Context, name string, content io.Reader) (*types.GIFResponse, error) {
	name = utils.BaseFileName(name)
	if !utils.HasExtension(name, ".gif") {
		return nil, ErrNotGIF
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(filePartHeader("upload", name, "image/gif"))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/gif", &body, "")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp types.GIFResponse
	if err := c.send(req, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return &resp, &APIError{StatusCode: http.StatusOK, Message: orDefault(resp.Message, "Upload failed")}
	}
	return &resp, nil
}

// DeleteGIF removes a stored GIF
func (c *Client) DeleteGIF(ctx context.Context, name string) error {
	if name == "" {
		return ErrMissingName
	}

	var resp types.GIFResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/api/v1/gif", types.GIFRequest{Name: name}, &resp, ""); err != nil {
		return err
	}
	if resp.Status != "success" {
		return &APIError{StatusCode: http.StatusOK, Message: orDefault(resp.Message, "unknown")}
	}
	return nil
}

// PlayGIF shows a stored GIF full screen
func (c *Client) PlayGIF(ctx context.Context, name string) (*types.GIFResponse, error) {
	if name == "" {
		return nil, ErrMissingName
	}

	var resp types.GIFResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/gif/play", types.GIFRequest{Name: name}, &resp, ""); err != nil {
		return nil, err
	}
	if resp.Status != "playing" {
		return &resp, &APIError{StatusCode: http.StatusOK, Message: orDefault(resp.Message, "playback failed")}
	}
	return &resp, nil
}

// StopGIF stops playback
func (c *Client) StopGIF(ctx context.Context) error {
	var resp types.GIFResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/gif/stop", nil, &resp, ""); err != nil {
		return err
	}
	if resp.Status != "stopped" {
		return &APIError{StatusCode: http.StatusOK, Message: orDefault(resp.Message, "nothing to stop")}
	}
	return nil
}

func filePartHeader(field, fileName, contentType string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, quoteEscaper.Replace(field), quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", contentType)
	return h
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
