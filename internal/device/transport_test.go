package device

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lgulliver/panelctl/internal/devicesim"
	"github.com/lgulliver/panelctl/internal/ota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedUpload struct {
	path          string
	contentLength int64
	field         string
	fileName      string
	data          []byte
}

func recordingServer(t *testing.T, status int, reply string) (*httptest.Server, func() receivedUpload) {
	t.Helper()
	var (
		mu  sync.Mutex
		got receivedUpload
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := receivedUpload{path: r.URL.Path, contentLength: r.ContentLength}
		mr, err := r.MultipartReader()
		if err == nil {
			if part, err := mr.NextPart(); err == nil {
				rec.field = part.FormName()
				rec.fileName = part.FileName()
				rec.data, _ = io.ReadAll(part)
			}
		}
		mu.Lock()
		got = rec
		mu.Unlock()

		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)

	return server, func() receivedUpload {
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

func TestUploadImage_KnownSize(t *testing.T) {
	server, received := recordingServer(t, http.StatusOK, `{"message":"ok"}`)
	data := bytes.Repeat([]byte("firmware"), 8<<10)

	var (
		ticks     int
		lastSent  int64
		lastTotal int64
	)
	resp, err := NewClient(server.URL).UploadImage(context.Background(), ota.TargetFilesystem,
		ota.Image{Name: `odd"name.bin`, Size: int64(len(data)), Content: bytes.NewReader(data)},
		func(sent, total int64) {
			ticks++
			lastSent, lastTotal = sent, total
		})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"ok"}`, string(resp.Body))

	got := received()
	assert.Equal(t, ota.FilesystemEndpoint, got.path)
	assert.Equal(t, "file", got.field)
	assert.Equal(t, `odd"name.bin`, got.fileName)
	assert.Equal(t, data, got.data)
	assert.Greater(t, got.contentLength, int64(len(data)), "exact length including the multipart envelope")

	assert.Positive(t, ticks)
	assert.Equal(t, int64(len(data)), lastSent)
	assert.Equal(t, int64(len(data)), lastTotal)
}

func TestUploadImage_UnknownSizeIsChunked(t *testing.T) {
	server, received := recordingServer(t, http.StatusOK, "")
	data := strings.Repeat("x", 10000)

	_, err := NewClient(server.URL).UploadImage(context.Background(), ota.TargetFirmware,
		ota.Image{Name: "fw.bin", Size: ota.SizeUnknown, Content: io.MultiReader(strings.NewReader(data))},
		nil)
	require.NoError(t, err)

	got := received()
	assert.Equal(t, ota.FirmwareEndpoint, got.path)
	assert.Equal(t, int64(-1), got.contentLength)
	assert.Equal(t, data, string(got.data))
}

func TestUploadImage_ErrorStatusIsNotAnError(t *testing.T) {
	server, _ := recordingServer(t, http.StatusInternalServerError, `{"status":"Error","message":"flash write failed"}`)

	resp, err := NewClient(server.URL).UploadImage(context.Background(), ota.TargetFirmware,
		ota.Image{Name: "fw.bin", Size: 3, Content: strings.NewReader("abc")}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCancelUpload(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.Method + " " + r.URL.Path
	}))
	defer server.Close()

	require.NoError(t, NewClient(server.URL).CancelUpload(context.Background()))
	assert.Equal(t, "POST "+ota.CancelEndpoint, path)
}

func TestController_UploadToEmulator(t *testing.T) {
	d := setupDevice(t, simConfig())
	ctx := context.Background()
	data := bytes.Repeat([]byte{0x5A}, 300<<10)

	ctrl := ota.NewController(d.client)
	require.NoError(t, ctrl.Start(ctx, &ota.Image{Name: "fw-1.2.0.bin", Size: int64(len(data)), Content: bytes.NewReader(data)}))

	s, err := ctrl.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, ota.StateSucceeded, s.State)
	assert.Equal(t, 100, s.ProgressPercent)
	assert.Equal(t, int64(len(data)), s.BytesSent)
	assert.Equal(t, "Update OK (307200 bytes)", s.ResultMessage)
	assert.Equal(t, 1, d.sim.Reboots())

	size, err := d.blobs.GetSize(ctx, devicesim.ImagePath(ota.TargetFirmware))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
}

func TestController_EmulatorRejectsOversizedImage(t *testing.T) {
	cfg := simConfig()
	cfg.FilesystemCapacity = 32 << 10
	d := setupDevice(t, cfg)
	ctx := context.Background()

	ctrl := ota.NewController(d.client)
	ctrl.SelectTarget(ota.TargetFilesystem)
	data := make([]byte, 32<<10+1)
	require.NoError(t, ctrl.Start(ctx, &ota.Image{Name: "littlefs.bin", Size: int64(len(data)), Content: bytes.NewReader(data)}))

	s, err := ctrl.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, ota.StateFailed, s.State)
	assert.Equal(t, "Not Enough Space", s.ResultMessage)

	var rejected *ota.DeviceRejectedError
	require.ErrorAs(t, s.Err, &rejected)
	assert.Equal(t, http.StatusInternalServerError, rejected.StatusCode)
}

func TestController_CancelAgainstEmulator(t *testing.T) {
	cfg := simConfig()
	cfg.ChunkDelay = 2 * time.Millisecond
	d := setupDevice(t, cfg)
	ctx := context.Background()

	ctrl := ota.NewController(d.client)
	progressed := make(chan struct{}, 1)
	ctrl.Subscribe(func(ev ota.Event) {
		if ev.Kind == ota.EventProgress {
			select {
			case progressed <- struct{}{}:
			default:
			}
		}
	})

	data := make([]byte, 1<<20)
	require.NoError(t, ctrl.Start(ctx, &ota.Image{Name: "fw.bin", Size: int64(len(data)), Content: bytes.NewReader(data)}))

	select {
	case <-progressed:
	case <-time.After(5 * time.Second):
		t.Fatal("no progress reported")
	}

	ctrl.Cancel(ctx)

	s := ctrl.Snapshot()
	assert.Equal(t, ota.StateCancelled, s.State)
	assert.Equal(t, 0, s.ProgressPercent)
	assert.False(t, s.ETAKnown)
	assert.Equal(t, "Upload canceled", s.ResultMessage)

	_, err := ctrl.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, ota.StateCancelled, ctrl.Snapshot().State)

	require.Eventually(t, func() bool {
		st, err := d.client.OTAStatus(ctx)
		return err == nil && !st.InProgress
	}, 5*time.Second, 10*time.Millisecond)

	exists, err := d.blobs.Exists(ctx, devicesim.ImagePath(ota.TargetFirmware))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Zero(t, d.sim.Reboots())
}
