// Package conf loads and holds the portal configuration. Settings come from
// a YAML file plus PORTAL_* environment overrides and are decoded through
// mapstructure with the Duration hook.
package conf

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Settings is the root configuration tree.
type Settings struct {
	Main      MainSettings      `mapstructure:"main"`
	WebServer WebServerSettings `mapstructure:"webserver"`
	Cache     CacheSettings     `mapstructure:"cache"`
	Geo       GeoSettings       `mapstructure:"geo"`
	Docstore  DocstoreSettings  `mapstructure:"docstore"`
	MQTT      MQTTSettings      `mapstructure:"mqtt"`
	Identity  IdentitySettings  `mapstructure:"identity"`
	Notices   NoticeSettings    `mapstructure:"notices"`
	Sentry    SentrySettings    `mapstructure:"sentry"`
}

// MainSettings holds instance-wide options.
type MainSettings struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"loglevel"`
}

// WebServerSettings configures the HTTP server.
type WebServerSettings struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
}

// CacheSettings configures the offline asset cache.
type CacheSettings struct {
	// Version names the current cache generation. Bumping it retires the
	// previous generation on the next activate.
	Version string `mapstructure:"version"`
	// Manifest is the fixed list of asset paths the cache must contain.
	Manifest []string `mapstructure:"manifest"`
	// OfflinePage is the navigation fallback served when both cache and
	// network fail.
	OfflinePage string `mapstructure:"offlinepage"`
	// AssetRoot is the upstream base URL assets are fetched from. Responses
	// from other hosts are served but never cached.
	AssetRoot string `mapstructure:"assetroot"`
	// InstallTimeout bounds a full manifest install.
	InstallTimeout Duration `mapstructure:"installtimeout"`
}

// GeoSettings configures location acquisition bounds.
type GeoSettings struct {
	HighAccuracy     bool     `mapstructure:"highaccuracy"`
	MaxSampleAge     Duration `mapstructure:"maxsampleage"`
	PerSampleTimeout Duration `mapstructure:"persampletimeout"`
}

// DocstoreSettings configures the document store backend.
type DocstoreSettings struct {
	// Driver is "sqlite" or "mysql".
	Driver string `mapstructure:"driver"`
	// DSN is the driver-specific connection string. For sqlite this is the
	// database file path.
	DSN string `mapstructure:"dsn"`
}

// MQTTSettings configures the optional MQTT location fan-out.
type MQTTSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Broker      string   `mapstructure:"broker"`
	TopicPrefix string   `mapstructure:"topicprefix"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	ConnectWait Duration `mapstructure:"connectwait"`
}

// IdentitySettings configures admin sign-in.
type IdentitySettings struct {
	SessionSecret string `mapstructure:"sessionsecret"`
	// MaxAttemptsPerMinute bounds sign-in attempts per email before
	// TooManyAttempts is returned.
	MaxAttemptsPerMinute int `mapstructure:"maxattemptsperminute"`
}

// NoticeSettings configures the notice board and optional push targets.
type NoticeSettings struct {
	// PushURLs are shoutrrr service URLs notified on route lifecycle events.
	PushURLs []string `mapstructure:"pushurls"`
	// Retention is how long notices are kept before cleanup.
	Retention Duration `mapstructure:"retention"`
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

var (
	settingsMu sync.RWMutex
	settings   *Settings
)

// Default returns settings matching the shipped portal frontend.
func Default() *Settings {
	return &Settings{
		Main: MainSettings{
			Name:     "ac-transporte",
			LogLevel: "info",
		},
		WebServer: WebServerSettings{
			Port: 8080,
		},
		Cache: CacheSettings{
			Version: "ac-transporte-v2",
			Manifest: []string{
				"/",
				"/index.html",
				"/styles.css",
				"/app.js",
				"/logo.jpg",
				"/avatar.png",
				"/manifest.json",
				"/offline.html",
			},
			OfflinePage:    "/offline.html",
			AssetRoot:      "http://127.0.0.1:5173",
			InstallTimeout: Duration(30 * time.Second),
		},
		Geo: GeoSettings{
			HighAccuracy:     true,
			MaxSampleAge:     Duration(5 * time.Second),
			PerSampleTimeout: Duration(10 * time.Second),
		},
		Docstore: DocstoreSettings{
			Driver: "sqlite",
			DSN:    "portal.db",
		},
		MQTT: MQTTSettings{
			TopicPrefix: "actransporte/rotas",
			ConnectWait: Duration(10 * time.Second),
		},
		Identity: IdentitySettings{
			MaxAttemptsPerMinute: 5,
		},
		Notices: NoticeSettings{
			Retention: Duration(30 * 24 * time.Hour),
		},
	}
}

// Load reads configuration from the given file (optional) and environment,
// layered over Default, and installs the result as the global settings.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	s := Default()
	if err := v.Unmarshal(s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	settingsMu.Lock()
	settings = s
	settingsMu.Unlock()
	return s, nil
}

// Validate rejects configurations the portal cannot run with.
func (s *Settings) Validate() error {
	if s.Cache.Version == "" {
		return fmt.Errorf("cache.version must not be empty")
	}
	if len(s.Cache.Manifest) == 0 {
		return fmt.Errorf("cache.manifest must list at least one asset")
	}
	if s.Cache.AssetRoot == "" {
		return fmt.Errorf("cache.assetroot must not be empty")
	}
	if s.Geo.PerSampleTimeout <= 0 {
		return fmt.Errorf("geo.persampletimeout must be positive")
	}
	switch s.Docstore.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("docstore.driver must be sqlite or mysql, got %q", s.Docstore.Driver)
	}
	return nil
}

// GetSettings returns the global settings, or nil before Load.
func GetSettings() *Settings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settings
}

// SetSettingsForTesting installs settings directly. Tests only.
func SetSettingsForTesting(s *Settings) {
	settingsMu.Lock()
	settings = s
	settingsMu.Unlock()
}
