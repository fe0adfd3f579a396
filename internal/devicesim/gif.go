package devicesim

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/panelctl/internal/storage"
	"github.com/lgulliver/panelctl/pkg/types"
	"github.com/lgulliver/panelctl/pkg/utils"
	"github.com/rs/zerolog/log"
)

const gifDir = "gif"

func gifPath(name string) string {
	return gifDir + "/" + name
}

// gifUsage returns the stored GIFs and the bytes they take up
func (e *Emulator) gifUsage(ctx context.Context) ([]types.GIFFile, int64, error) {
	objects, err := e.blobs.List(ctx, gifDir)
	if err != nil {
		return nil, 0, err
	}

	files := []types.GIFFile{}
	var used int64
	for _, obj := range objects {
		used += obj.Size
		name := path.Base(obj.Path)
		if utils.HasExtension(name, ".gif") {
			files = append(files, types.GIFFile{Name: name, Size: obj.Size})
		}
	}
	return files, used, nil
}

func (e *Emulator) handleListGIFs(c *gin.Context) {
	files, used, err := e.gifUsage(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list gifs")
		replyError(c, http.StatusInternalServerError, "failed to list files")
		return
	}

	total := e.cfg.FilesystemCapacity
	free := total - used
	if free < 0 {
		free = 0
	}
	c.JSON(http.StatusOK, types.GIFList{Files: files, UsedBytes: used, TotalBytes: total, FreeBytes: free})
}

func (e *Emulator) handleUploadGIF(c *gin.Context) {
	name, err := e.receiveGIF(c.Request)
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("gif upload failed")
		msg := "Error during GIF upload"
		if errors.Is(err, errNoSpace) {
			msg = "Not enough space"
		}
		c.JSON(http.StatusOK, types.GIFResponse{Status: "error", Message: msg})
		return
	}

	log.Info().Str("file", name).Msg("gif upload success")
	c.JSON(http.StatusOK, types.GIFResponse{Status: "success", Message: "GIF uploaded successfully", Filename: name})
}

var errNotGIF = errors.New("not a gif file")

func (e *Emulator) receiveGIF(r *http.Request) (string, error) {
	ctx := r.Context()
	mr, err := r.MultipartReader()
	if err != nil {
		return "", err
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", errNoImage
		}
		if err != nil {
			return "", err
		}
		if part.FormName() != "upload" {
			part.Close()
			continue
		}
		defer part.Close()

		name := utils.BaseFileName(part.FileName())
		if name == "" || !utils.HasExtension(name, ".gif") {
			return name, errNotGIF
		}

		_, used, err := e.gifUsage(ctx)
		if err != nil {
			return name, err
		}
		if existing, err := e.blobs.GetSize(ctx, gifPath(name)); err == nil {
			used -= existing
		}

		var content io.Reader = part
		if e.cfg.FilesystemCapacity > 0 {
			content = &quotaReader{r: part, remaining: e.cfg.FilesystemCapacity - used}
		}
		if _, err := e.blobs.Store(ctx, gifPath(name), content); err != nil {
			return name, err
		}
		return name, nil
	}
}

// quotaReader fails once more than remaining bytes have been read
type quotaReader struct {
	r         io.Reader
	remaining int64
}

func (q *quotaReader) Read(p []byte) (int, error) {
	n, err := q.r.Read(p)
	q.remaining -= int64(n)
	if q.remaining < 0 {
		return 0, errNoSpace
	}
	return n, err
}

// bindGIFName decodes {"name": ...} and answers the request itself on
// failure. It returns the stored path of an existing GIF.
func (e *Emulator) bindGIFName(c *gin.Context) (string, bool) {
	var req types.GIFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		replyError(c, http.StatusInternalServerError, "invalid json")
		return "", false
	}

	name := utils.BaseFileName(req.Name)
	if name == "" {
		replyError(c, http.StatusInternalServerError, "missing name")
		return "", false
	}

	p := gifPath(name)
	ok, err := e.blobs.Exists(c.Request.Context(), p)
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("failed to look up gif")
		replyError(c, http.StatusInternalServerError, "failed to look up file")
		return "", false
	}
	if !ok {
		replyError(c, http.StatusNotFound, "file not found")
		return "", false
	}
	return p, true
}

func (e *Emulator) handleDeleteGIF(c *gin.Context) {
	p, ok := e.bindGIFName(c)
	if !ok {
		return
	}

	if err := e.blobs.Delete(c.Request.Context(), p); err != nil {
		log.Error().Err(err).Str("path", p).Msg("failed to remove gif")
		replyError(c, http.StatusInternalServerError, "failed to remove file")
		return
	}

	e.mu.Lock()
	if e.playing == p {
		e.playing = ""
	}
	e.mu.Unlock()

	c.JSON(http.StatusOK, types.GIFResponse{Status: "success", Message: "file removed"})
}

func (e *Emulator) handlePlayGIF(c *gin.Context) {
	p, ok := e.bindGIFName(c)
	if !ok {
		return
	}

	e.mu.Lock()
	e.playing = p
	e.mu.Unlock()

	log.Info().Str("path", p).Msg("playing gif")
	c.JSON(http.StatusOK, types.GIFResponse{Status: "playing", File: "/" + p})
}

// handleServeGIF serves a stored GIF as a static file, the path PlayGIF reports
func (e *Emulator) handleServeGIF(c *gin.Context) {
	name := utils.BaseFileName(c.Param("name"))
	if !utils.HasExtension(name, ".gif") {
		c.String(http.StatusNotFound, "Not found")
		return
	}

	rc, err := e.blobs.Retrieve(c.Request.Context(), gifPath(name))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Error().Err(err).Str("file", name).Msg("failed to open gif")
		}
		c.String(http.StatusNotFound, "Not found")
		return
	}
	defer rc.Close()

	size, err := e.blobs.GetSize(c.Request.Context(), gifPath(name))
	if err != nil {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, "image/gif", rc, nil)
}

func (e *Emulator) handleStopGIF(c *gin.Context) {
	e.mu.Lock()
	stopped := e.playing != ""
	e.playing = ""
	e.mu.Unlock()

	status := "error"
	if stopped {
		status = "stopped"
	}
	c.JSON(http.StatusOK, types.GIFResponse{Status: status})
}
