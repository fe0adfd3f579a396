package devicesim

import (
	"context"
	"errors"
	"sync"

	"github.com/lgulliver/panelctl/internal/common"
)

// DeviceConfig is the part of the device state that survives a reboot
type DeviceConfig struct {
	WifiSSID     string `json:"wifi_ssid"`
	WifiPassword string `json:"wifi_password"`
	NTPServer    string `json:"ntp_server"`
	TokenHash    string `json:"token_hash"`
}

// ConfigStore persists DeviceConfig
type ConfigStore interface {
	Load(ctx context.Context) (DeviceConfig, error)
	Save(ctx context.Context, cfg DeviceConfig) error
}

// MemoryConfigStore keeps the config for the lifetime of the process
type MemoryConfigStore struct {
	mu  sync.RWMutex
	cfg DeviceConfig
}

// NewMemoryConfigStore creates an empty in-memory store
func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{}
}

// Load implements ConfigStore
func (m *MemoryConfigStore) Load(ctx context.Context) (DeviceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg, nil
}

// Save implements ConfigStore
func (m *MemoryConfigStore) Save(ctx context.Context, cfg DeviceConfig) error {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// RedisConfigStore keeps the config under one Redis key so several emulator
// instances can share a device identity
type RedisConfigStore struct {
	cache *common.Cache
	key   string
}

// DefaultConfigKey is the Redis key used when none is given
const DefaultConfigKey = "devicesim:config"

// NewRedisConfigStore creates a store on cache; an empty key uses DefaultConfigKey
func NewRedisConfigStore(cache *common.Cache, key string) *RedisConfigStore {
	if key == "" {
		key = DefaultConfigKey
	}
	return &RedisConfigStore{cache: cache, key: key}
}

// Load implements ConfigStore. A missing key is an empty config.
func (r *RedisConfigStore) Load(ctx context.Context) (DeviceConfig, error) {
	var cfg DeviceConfig
	if err := r.cache.Get(ctx, r.key, &cfg); err != nil {
		if errors.Is(err, common.ErrCacheMiss) {
			return DeviceConfig{}, nil
		}
		return DeviceConfig{}, err
	}
	return cfg, nil
}

// Save implements ConfigStore
func (r *RedisConfigStore) Save(ctx context.Context, cfg DeviceConfig) error {
	return r.cache.Set(ctx, r.key, cfg, 0)
}
