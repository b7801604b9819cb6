// Package file provides the TOML configuration store for deskhub,
// including the address book used to resolve participant names and a
// watcher that reloads rate limits without a restart.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
)

// RateConfig is a per-service request budget.
type RateConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// NotionConfig configures the document-store adapter.
type NotionConfig struct {
	Token              string     `toml:"token"`
	TaskDatabaseID     string     `toml:"task_database_id"`
	MeetingDatabaseID  string     `toml:"meeting_database_id"`
	DocumentDatabaseID string     `toml:"document_database_id"`
	Rate               RateConfig `toml:"rate"`
}

// CalendarConfig configures the calendar adapter.
type CalendarConfig struct {
	CalendarID      string     `toml:"calendar_id"`
	CredentialsFile string     `toml:"credentials_file"`
	Rate            RateConfig `toml:"rate"`
}

// DiscordConfig configures the chat adapter.
type DiscordConfig struct {
	BotToken         string     `toml:"bot_token"`
	GuildID          string     `toml:"guild_id"`
	DefaultChannelID string     `toml:"default_channel_id"`
	Rate             RateConfig `toml:"rate"`
}

// SyncConfig configures the background scheduler.
type SyncConfig struct {
	Enabled                  bool `toml:"enabled"`
	ReconcileIntervalSeconds int  `toml:"reconcile_interval_seconds"`
	PruneIntervalSeconds     int  `toml:"prune_interval_seconds"`
}

// WebhookConfig configures the inbound push listener.
type WebhookConfig struct {
	Addr         string `toml:"addr"`
	SharedSecret string `toml:"shared_secret"`
}

// Config is the full deskhub configuration.
type Config struct {
	DataDir string `toml:"data_dir"`
	Verbose bool   `toml:"verbose"`

	Notion   NotionConfig   `toml:"notion"`
	Calendar CalendarConfig `toml:"calendar"`
	Discord  DiscordConfig  `toml:"discord"`
	Sync     SyncConfig     `toml:"sync"`
	Webhook  WebhookConfig  `toml:"webhook"`

	// AddressBook maps participant display names to calendar addresses.
	AddressBook map[string]string `toml:"addressbook"`
}

// DefaultConfig returns the configuration used when keys are absent.
func DefaultConfig() Config {
	return Config{
		Notion:   NotionConfig{Rate: RateConfig{RequestsPerSecond: 3, Burst: 3}},
		Calendar: CalendarConfig{Rate: RateConfig{RequestsPerSecond: 5, Burst: 10}},
		Discord:  DiscordConfig{Rate: RateConfig{RequestsPerSecond: 50, Burst: 50}},
		Sync: SyncConfig{
			Enabled:                  true,
			ReconcileIntervalSeconds: 180,
			PruneIntervalSeconds:     3600,
		},
		Webhook: WebhookConfig{Addr: "127.0.0.1:8787"},
	}
}

// ConfigStore loads and persists the TOML configuration file.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	config   Config
}

// NewConfigStore creates a new TOML-based config store.
// If configDir is empty, defaults to ~/.deskhub/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".deskhub")
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	s := &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
		config:   DefaultConfig(),
	}

	if err := s.Load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Load reads configuration from the TOML file. A missing file leaves
// the defaults in place.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file yet - start from defaults
			s.config = DefaultConfig()
			return nil
		}
		return err
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing %s: %w", s.filePath, err)
	}

	s.config = config
	return nil
}

// Config returns a copy of the current configuration.
func (s *ConfigStore) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Save persists the current configuration to disk.
func (s *ConfigStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := toml.Marshal(s.config)
	if err != nil {
		return err
	}

	// Write with restricted permissions; the file carries tokens
	return os.WriteFile(s.filePath, data, 0600)
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// Ensure AddressBook implements the interface.
var _ driven.AddressBook = (*AddressBook)(nil)

// AddressBook resolves participant display names to calendar addresses
// from the configured mapping table. Lookups are case-insensitive.
type AddressBook struct {
	entries map[string]string
}

// NewAddressBook builds an address book from the configured mapping.
func NewAddressBook(entries map[string]string) *AddressBook {
	normalized := make(map[string]string, len(entries))
	for name, addr := range entries {
		normalized[strings.ToLower(name)] = addr
	}
	return &AddressBook{entries: normalized}
}

// Resolve returns the address for a display name.
func (b *AddressBook) Resolve(name string) (string, bool) {
	addr, ok := b.entries[strings.ToLower(strings.TrimSpace(name))]
	return addr, ok
}

// watchDebounce coalesces bursts of filesystem events into one reload.
const watchDebounce = 250 * time.Millisecond
