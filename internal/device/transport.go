package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/lgulliver/panelctl/internal/ota"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

var _ ota.Transport = (*Client)(nil)

// UploadImage streams img as the "file" field of a multipart form. The image
// is never buffered; when its size is known the request has an exact
// Content-Length so the device can size the flash write up front.
func (c *Client) UploadImage(ctx context.Context, target ota.Target, img ota.Image, progress ota.ProgressFunc) (*ota.Response, error) {
	var envelope bytes.Buffer
	mw := multipart.NewWriter(&envelope)
	if _, err := mw.CreatePart(filePartHeader("file", img.Name, "application/octet-stream")); err != nil {
		return nil, fmt.Errorf("failed to build multipart header: %w", err)
	}
	headLen := envelope.Len()
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart trailer: %w", err)
	}
	all := envelope.Bytes()
	head, tail := all[:headLen], all[headLen:]

	body := io.MultiReader(
		bytes.NewReader(head),
		&progressReader{r: img.Content, total: img.Size, report: progress},
		bytes.NewReader(tail),
	)

	req, err := c.newRequest(ctx, http.MethodPost, target.Endpoint(), body, "")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if img.Size >= 0 {
		req.ContentLength = int64(len(head)) + img.Size + int64(len(tail))
	} else {
		req.ContentLength = -1
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload reply: %w", err)
	}
	return &ota.Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// CancelUpload sends the out-of-band cancel notice
func (c *Client) CancelUpload(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, ota.CancelEndpoint, nil, nil, "")
}

// progressReader reports the running byte count after every read
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	report ota.ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.report != nil {
			p.report(p.sent, p.total)
		}
	}
	return n, err
}
