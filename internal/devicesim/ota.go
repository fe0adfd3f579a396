package devicesim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/panelctl/internal/ota"
	"github.com/lgulliver/panelctl/pkg/types"
	"github.com/rs/zerolog/log"
)

var (
	errUpdateCanceled = errors.New("update canceled")
	errNoSpace        = errors.New("not enough space")
	errNoImage        = errors.New("no image in request")
	errBusy           = errors.New("update already running")
)

// otaMessage renders an update failure the way the firmware reports it
func otaMessage(err error) string {
	switch {
	case errors.Is(err, errUpdateCanceled):
		return "Update canceled"
	case errors.Is(err, errNoSpace):
		return "Not Enough Space"
	case errors.Is(err, errNoImage):
		return "No image in request"
	case errors.Is(err, errBusy):
		return "Update already running"
	default:
		return "Update aborted"
	}
}

// ImagePath is where the last image written to target is kept
func ImagePath(target ota.Target) string {
	return "ota/" + target.String() + ".bin"
}

func (e *Emulator) capacity(target ota.Target) int64 {
	if target == ota.TargetFilesystem {
		return e.cfg.FilesystemCapacity
	}
	return e.cfg.FirmwareCapacity
}

func (e *Emulator) handleOTAUpload(target ota.Target) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !e.beginOTA(c.Request.ContentLength) {
			c.JSON(http.StatusInternalServerError, types.OTAResult{Status: "Error", Message: otaMessage(errBusy)})
			return
		}

		written, err := e.receiveImage(c.Request, target)
		message := e.endOTA(written, err)
		if err != nil {
			log.Warn().
				Err(err).
				Str("target", target.String()).
				Int64("bytes_written", written).
				Msg("ota update failed")
			c.JSON(http.StatusInternalServerError, types.OTAResult{Status: "Error", Message: message})
			return
		}

		log.Info().Str("target", target.String()).Int64("bytes_written", written).Msg("ota update complete")
		c.JSON(http.StatusOK, types.OTAResult{Status: "Upload successful", Message: message})
		e.reboot("ota update")
	}
}

// receiveImage streams the "file" part of the request into storage
func (e *Emulator) receiveImage(r *http.Request, target ota.Target) (int64, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errNoImage, err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return 0, errNoImage
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read multipart body: %w", err)
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		log.Info().Str("file", part.FileName()).Str("target", target.String()).Msg("ota start")

		flash := &flashReader{
			ctx:      r.Context(),
			e:        e,
			r:        part,
			capacity: e.capacity(target),
			delay:    e.cfg.ChunkDelay,
		}
		n, err := e.blobs.Store(r.Context(), ImagePath(target), flash)
		part.Close()
		return n, err
	}
}

func (e *Emulator) beginOTA(contentLength int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ota.inProgress {
		return false
	}
	if contentLength < 0 {
		contentLength = 0
	}
	e.ota = otaState{inProgress: true, totalBytes: contentLength}
	return true
}

func (e *Emulator) endOTA(written int64, err error) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ota.inProgress = false
	e.ota.cancelRequested = false
	if err != nil {
		e.ota.err = true
		e.ota.message = otaMessage(err)
	} else {
		e.ota.message = fmt.Sprintf("Update OK (%d bytes)", written)
	}
	return e.ota.message
}

func (e *Emulator) otaCancelRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ota.cancelRequested
}

func (e *Emulator) addOTAWritten(n int) {
	e.mu.Lock()
	e.ota.bytesWritten += int64(n)
	e.mu.Unlock()
}

func (e *Emulator) handleOTAStatus(c *gin.Context) {
	e.mu.Lock()
	st := types.OTAStatus{
		InProgress:   e.ota.inProgress,
		BytesWritten: e.ota.bytesWritten,
		TotalBytes:   e.ota.totalBytes,
		Error:        e.ota.err,
		Message:      e.ota.message,
	}
	e.mu.Unlock()

	c.JSON(http.StatusOK, st)
}

func (e *Emulator) handleOTACancel(c *gin.Context) {
	e.mu.Lock()
	e.ota.cancelRequested = true
	e.ota.message = "Cancel requested"
	e.mu.Unlock()

	log.Info().Msg("ota cancel requested")
	c.JSON(http.StatusOK, gin.H{"status": "cancelling", "message": "Cancel request received"})
}

// flashReader is the write side of the simulated flash: it enforces the
// partition size, honours the cancel flag between chunks and can slow each
// chunk down to make transfers observable
type flashReader struct {
	ctx      context.Context
	e        *Emulator
	r        io.Reader
	capacity int64
	written  int64
	delay    time.Duration
}

func (f *flashReader) Read(p []byte) (int, error) {
	if f.e.otaCancelRequested() {
		log.Warn().Int64("bytes_written", f.written).Msg("ota canceled by user")
		return 0, errUpdateCanceled
	}

	if f.delay > 0 {
		t := time.NewTimer(f.delay)
		select {
		case <-t.C:
		case <-f.ctx.Done():
			t.Stop()
			return 0, f.ctx.Err()
		}
	}

	n, err := f.r.Read(p)
	if n > 0 {
		if f.capacity > 0 && f.written+int64(n) > f.capacity {
			return 0, errNoSpace
		}
		f.written += int64(n)
		f.e.addOTAWritten(n)
	}
	return n, err
}
