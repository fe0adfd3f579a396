// Package ota drives firmware and filesystem image uploads to the device.
//
// A Controller owns at most one upload session. Start validates the image and
// returns immediately; the transfer runs in its own goroutine and reports
// progress, ETA and the final outcome to subscribed observers.
package ota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultSuccessMessage = "Upload finished"
	transportErrorMessage = "Upload error"
	cancelledMessage      = "Upload canceled"

	defaultNoticeTimeout = 5 * time.Second
)

// ProgressFunc is called by a Transport as payload bytes are handed to the
// network. total is SizeUnknown when the payload length is not known.
type ProgressFunc func(sent, total int64)

// Response is the device's answer to a completed upload request
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport performs the HTTP exchanges of an upload
type Transport interface {
	// UploadImage streams img to the endpoint of target and returns the
	// device response. It must return promptly once ctx is cancelled.
	UploadImage(ctx context.Context, target Target, img Image, progress ProgressFunc) (*Response, error)

	// CancelUpload tells the device to abandon a partially received image
	CancelUpload(ctx context.Context) error
}

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithNoticeTimeout bounds the out-of-band cancel request
func WithNoticeTimeout(d time.Duration) Option {
	return func(c *Controller) { c.noticeTimeout = d }
}

type observerEntry struct {
	id int
	fn Observer
}

// pendingEvent is an event stamped with its position in the session history
type pendingEvent struct {
	seq       uint64
	ev        Event
	observers []Observer
}

// Controller is the upload session state machine
type Controller struct {
	transport     Transport
	now           func() time.Time
	noticeTimeout time.Duration

	mu           sync.Mutex
	target       Target
	session      Session
	abort        context.CancelFunc
	done         chan struct{}
	observers    []observerEntry
	nextObserver int
	seq          uint64

	// delivery state, guarded by dmu. Events are handed to observers by one
	// goroutine at a time and in seq order; stale ones are dropped.
	dmu       sync.Mutex
	queue     []pendingEvent
	delivered uint64
	draining  bool
	drained   chan struct{}
}

// NewController creates an idle controller that uploads through transport
func NewController(transport Transport, opts ...Option) *Controller {
	c := &Controller{
		transport:     transport,
		now:           time.Now,
		noticeTimeout: defaultNoticeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectTarget sets the endpoint used by subsequent Start calls
func (c *Controller) SelectTarget(t Target) {
	c.mu.Lock()
	c.target = t
	c.mu.Unlock()
}

// Target returns the currently selected target
func (c *Controller) Target() Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Subscribe registers an observer and returns a function that removes it
func (c *Controller) Subscribe(o Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextObserver++
	id := c.nextObserver
	c.observers = append(c.observers, observerEntry{id: id, fn: o})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, e := range c.observers {
			if e.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns a copy of the current session
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Start validates img and begins uploading it. It never blocks on the
// network. A *ValidationError leaves the session untouched; a running
// transfer makes it return ErrUploadInProgress.
func (c *Controller) Start(ctx context.Context, img *Image) error {
	if err := validateImage(img); err != nil {
		log.Warn().Err(err).Msg("upload rejected before transfer")
		return err
	}

	c.mu.Lock()
	if c.session.State == StateInFlight {
		c.mu.Unlock()
		return ErrUploadInProgress
	}

	runCtx, abort := context.WithCancel(ctx)
	done := make(chan struct{})
	size := img.Size
	if size < 0 {
		size = SizeUnknown
	}

	c.session = Session{
		ID:         uuid.New(),
		Target:     c.target,
		FileName:   img.Name,
		State:      StateInFlight,
		TotalBytes: max(size, 0),
		SizeKnown:  size >= 0,
		StartedAt:  c.now(),
	}
	c.abort = abort
	c.done = done
	snap := c.session
	pending := c.eventLocked(EventStateChanged)
	c.mu.Unlock()

	log.Info().
		Str("session", snap.ID.String()).
		Str("target", snap.Target.String()).
		Str("file", snap.FileName).
		Int64("size", size).
		Msg("upload started")

	c.deliver(pending)

	payload := *img
	payload.Size = size
	go c.run(runCtx, abort, done, snap.ID, snap.Target, payload)

	return nil
}

// Cancel aborts an in-flight upload and notifies the device on a best-effort
// basis. It is a no-op in any other state and is safe to call concurrently.
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	if c.session.State != StateInFlight {
		c.mu.Unlock()
		return
	}
	id := c.session.ID
	c.mu.Unlock()

	c.cancelSession(ctx, id)
}

// Reset returns a terminal session to Idle. The selected target is kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	if !c.session.State.Terminal() {
		c.mu.Unlock()
		return
	}
	c.session = Session{Target: c.target}
	pending := c.eventLocked(EventStateChanged)
	c.mu.Unlock()

	c.deliver(pending)
}

// Wait blocks until the current transfer goroutine has returned and every
// event it produced has reached the observers, then reports the session as
// it stands afterwards. It must not be called from an observer.
func (c *Controller) Wait(ctx context.Context) (Session, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}

	for {
		c.dmu.Lock()
		if !c.draining {
			c.dmu.Unlock()
			return c.Snapshot(), nil
		}
		drained := c.drained
		c.dmu.Unlock()

		select {
		case <-drained:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
}

func (c *Controller) run(ctx context.Context, abort context.CancelFunc, done chan struct{}, id uuid.UUID, target Target, img Image) {
	defer close(done)
	defer abort()
	if closer, ok := img.Content.(io.Closer); ok {
		defer closer.Close()
	}

	resp, err := c.transport.UploadImage(ctx, target, img, func(sent, total int64) {
		c.progress(id, sent, total)
	})

	if err != nil && ctx.Err() != nil {
		// Either Cancel already moved the session on, or the caller's
		// context went away; the latter is handled like an explicit cancel.
		c.cancelSession(context.WithoutCancel(ctx), id)
		return
	}

	c.complete(id, resp, err)
}

func (c *Controller) progress(id uuid.UUID, sent, total int64) {
	c.mu.Lock()
	if c.session.ID != id || c.session.State != StateInFlight {
		c.mu.Unlock()
		return
	}
	applyProgress(&c.session, sent, total, c.now())
	pending := c.eventLocked(EventProgress)
	c.mu.Unlock()

	c.deliver(pending)
}

func (c *Controller) complete(id uuid.UUID, resp *Response, err error) {
	c.mu.Lock()
	if c.session.ID != id || c.session.State != StateInFlight {
		c.mu.Unlock()
		return
	}

	s := &c.session
	s.FinishedAt = c.now()
	s.ETAKnown = false
	s.ETASeconds = 0

	switch {
	case err != nil:
		s.State = StateFailed
		s.Err = &TransportError{Err: err}
		s.ResultMessage = transportErrorMessage
	case resp == nil:
		s.State = StateFailed
		s.Err = &TransportError{Err: fmt.Errorf("no response from device")}
		s.ResultMessage = transportErrorMessage
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		s.State = StateSucceeded
		s.ProgressPercent = 100
		s.ResultMessage = successMessage(resp.Body)
	default:
		msg := failureMessage(resp.StatusCode, resp.Body)
		s.State = StateFailed
		s.Err = &DeviceRejectedError{StatusCode: resp.StatusCode, Message: msg}
		s.ResultMessage = msg
	}

	snap := c.session
	pending := c.eventLocked(EventStateChanged)
	c.mu.Unlock()

	logEvent := log.Info()
	if snap.State == StateFailed {
		logEvent = log.Error().Err(snap.Err)
	}
	logEvent.
		Str("session", snap.ID.String()).
		Str("state", snap.State.String()).
		Int64("bytes_sent", snap.BytesSent).
		Dur("duration", snap.FinishedAt.Sub(snap.StartedAt)).
		Str("result", snap.ResultMessage).
		Msg("upload finished")

	c.deliver(pending)
}

func (c *Controller) cancelSession(ctx context.Context, id uuid.UUID) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.session.ID != id || c.session.State != StateInFlight {
		c.mu.Unlock()
		return
	}
	if c.abort != nil {
		c.abort()
	}
	s := &c.session
	s.State = StateCancelled
	s.ProgressPercent = 0
	s.ETASeconds = 0
	s.ETAKnown = false
	s.FinishedAt = c.now()
	s.ResultMessage = cancelledMessage
	snap := c.session
	pending := c.eventLocked(EventStateChanged)
	c.mu.Unlock()

	log.Warn().Str("session", snap.ID.String()).Msg("upload cancelled")
	c.deliver(pending)

	noticeCtx, cancel := context.WithTimeout(ctx, c.noticeTimeout)
	defer cancel()
	if err := c.transport.CancelUpload(noticeCtx); err != nil {
		log.Debug().Err(err).Str("session", snap.ID.String()).Msg("device did not acknowledge cancel")
	}
}

// eventLocked stamps the current session for delivery. c.mu must be held.
func (c *Controller) eventLocked(kind EventKind) pendingEvent {
	c.seq++
	observers := make([]Observer, len(c.observers))
	for i, e := range c.observers {
		observers[i] = e.fn
	}
	return pendingEvent{
		seq:       c.seq,
		ev:        Event{Kind: kind, Session: c.session},
		observers: observers,
	}
}

// deliver queues p and, unless another goroutine is already delivering,
// drains the queue. Observers run without any lock held, one event at a
// time; an event older than one already delivered is dropped, so a late
// progress tick can never follow the terminal event. A call made from inside
// an observer only queues and returns.
func (c *Controller) deliver(p pendingEvent) {
	c.dmu.Lock()
	c.queue = append(c.queue, p)
	if c.draining {
		c.dmu.Unlock()
		return
	}
	c.draining = true
	c.drained = make(chan struct{})

	for len(c.queue) > 0 {
		oldest := 0
		for i := range c.queue {
			if c.queue[i].seq < c.queue[oldest].seq {
				oldest = i
			}
		}
		next := c.queue[oldest]
		c.queue = append(c.queue[:oldest], c.queue[oldest+1:]...)
		if next.seq <= c.delivered {
			continue
		}
		c.delivered = next.seq
		c.dmu.Unlock()

		for _, o := range next.observers {
			o(next.ev)
		}

		c.dmu.Lock()
	}

	c.draining = false
	close(c.drained)
	c.dmu.Unlock()
}

func validateImage(img *Image) error {
	if img == nil {
		return &ValidationError{Reason: "no file selected"}
	}
	if img.Content == nil {
		return &ValidationError{Reason: "file has no content"}
	}
	if !strings.HasSuffix(strings.ToLower(img.Name), ".bin") {
		return &ValidationError{Reason: "only .bin files are allowed"}
	}
	return nil
}

type deviceReply struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func successMessage(body []byte) string {
	var r deviceReply
	if err := json.Unmarshal(body, &r); err == nil && r.Message != "" {
		return r.Message
	}
	return defaultSuccessMessage
}

func failureMessage(status int, body []byte) string {
	var r deviceReply
	if err := json.Unmarshal(body, &r); err == nil {
		if r.Message != "" {
			return r.Message
		}
		if r.Error != "" {
			return r.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
}
