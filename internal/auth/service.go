// Package auth keeps the device access token on the client side and runs the
// check, save and change flows against the device
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyToken is returned when saving a blank token
	ErrEmptyToken = errors.New("please enter a token")
	// ErrNoCurrentToken is returned by Change when nothing is stored yet
	ErrNoCurrentToken = errors.New("no current token available")
	// ErrEmptyNewToken is returned by Change for a blank replacement
	ErrEmptyNewToken = errors.New("please enter a new token")
)

// Status messages reported to the user
const (
	MsgLoaded  = "Token loaded from storage."
	MsgNone    = "No token stored yet."
	MsgSaved   = "Token valid and saved."
	MsgChanged = "Token updated and saved."
	MsgRemoved = "Token removed."
)

// Device is the part of the device API the token flows need
type Device interface {
	CheckToken(ctx context.Context, token string) error
	SaveToken(ctx context.Context, current, next string) error
}

// Service handles token operations
type Service struct {
	store  *TokenStore
	device Device

	mu    sync.RWMutex
	token string
}

// NewService creates a new token service
func NewService(store *TokenStore, device Device) *Service {
	return &Service{
		store:  store,
		device: device,
	}
}

// Init loads the stored token and reports whether one was found
func (s *Service) Init() (string, error) {
	token, err := s.store.Load()
	if err != nil {
		return "", err
	}

	s.setToken(token)
	if token == "" {
		return MsgNone, nil
	}
	return MsgLoaded, nil
}

// Token returns the current token, "" when none is stored
func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// HasToken reports whether a token is stored
func (s *Service) HasToken() bool {
	return s.Token() != ""
}

// Save validates token with the device and stores it when accepted
func (s *Service) Save(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrEmptyToken
	}

	if err := s.device.CheckToken(ctx, token); err != nil {
		log.Warn().Err(err).Msg("token rejected")
		return "", fmt.Errorf("token check failed: %w", err)
	}

	if err := s.store.Save(token); err != nil {
		return "", err
	}
	s.setToken(token)

	log.Info().Msg("token saved")
	return MsgSaved, nil
}

// Change replaces the device token, authenticating with the stored one
func (s *Service) Change(ctx context.Context, next string) (string, error) {
	current := s.Token()
	next = strings.TrimSpace(next)

	if current == "" {
		return "", ErrNoCurrentToken
	}
	if next == "" {
		return "", ErrEmptyNewToken
	}

	if err := s.device.SaveToken(ctx, current, next); err != nil {
		log.Warn().Err(err).Msg("token update rejected")
		return "", fmt.Errorf("token update failed: %w", err)
	}

	if err := s.store.Save(next); err != nil {
		return "", err
	}
	s.setToken(next)

	log.Info().Msg("token changed")
	return MsgChanged, nil
}

// Clear forgets the stored token. The device keeps its token.
func (s *Service) Clear() (string, error) {
	if err := s.store.Clear(); err != nil {
		return "", err
	}
	s.setToken("")
	return MsgRemoved, nil
}

func (s *Service) setToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}
