package ota

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Target selects which device partition an image is written to
type Target int

const (
	TargetFirmware Target = iota
	TargetFilesystem
)

// Endpoint paths on the device, relative to its base URL
const (
	FirmwareEndpoint   = "/api/v1/ota/fw"
	FilesystemEndpoint = "/api/v1/ota/fs"
	CancelEndpoint     = "/api/v1/ota/cancel"
)

// Endpoint returns the upload path for the target
func (t Target) Endpoint() string {
	if t == TargetFilesystem {
		return FilesystemEndpoint
	}
	return FirmwareEndpoint
}

func (t Target) String() string {
	if t == TargetFilesystem {
		return "filesystem"
	}
	return "firmware"
}

// ParseTarget accepts "firmware"/"fw" and "filesystem"/"fs"
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "firmware", "fw", "":
		return TargetFirmware, nil
	case "filesystem", "fs":
		return TargetFilesystem, nil
	default:
		return TargetFirmware, fmt.Errorf("unknown upload target %q", s)
	}
}

// State is the lifecycle state of an upload session
type State int

const (
	StateIdle State = iota
	StateInFlight
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInFlight:
		return "in-flight"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition happens without a new Start
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// SizeUnknown marks an Image whose length cannot be determined up front
const SizeUnknown = -1

// Image is the binary payload of one upload. Content is read exactly once; if
// it also implements io.Closer it is closed when the transfer ends.
type Image struct {
	Name    string
	Size    int64
	Content io.Reader
}

// Session is a point-in-time copy of the controller's upload session.
//
// When the image size is unknown, TotalBytes follows BytesSent and
// ProgressPercent is a liveness counter that climbs by one per progress tick
// and stops at 99. It only reaches 100 when the device confirms success.
type Session struct {
	ID              uuid.UUID
	Target          Target
	FileName        string
	State           State
	BytesSent       int64
	TotalBytes      int64
	SizeKnown       bool
	StartedAt       time.Time
	FinishedAt      time.Time
	ProgressPercent int
	ETASeconds      int
	ETAKnown        bool
	ResultMessage   string
	Err             error
}

// EventKind tells observers why they were notified
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventProgress
)

func (k EventKind) String() string {
	if k == EventProgress {
		return "progress"
	}
	return "state"
}

// Event is delivered to observers on every state or progress change
type Event struct {
	Kind    EventKind
	Session Session
}

// Observer receives events. It is called without the controller lock held and
// must not block for long. Events arrive one at a time in the order the
// session changed, even when the transport reports progress from its own
// goroutine; a progress tick overtaken by a later event is not delivered.
type Observer func(Event)
