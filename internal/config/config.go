// Package config defines the on-disk configuration document and the
// hot-reloading manager that keeps a live copy of it in memory.
package config

import (
	"crypto/subtle"
	"os"
	"strconv"
	"strings"
	"time"
)

// SecurityConfig controls admin authentication and logging behavior.
type SecurityConfig struct {
	Debug   bool   `yaml:"debug" json:"debug"`
	LogFile string `yaml:"log_file" json:"log_file"`

	// ManagementKey is the admin token checked on every authenticated /api
	// admin request (Bearer Authorization, x-api-key, x-goog-api-key or the
	// key query parameter).
	ManagementKey string `yaml:"management_key" json:"management_key"`
	// ManagementReadOnlyKey, if set, authenticates read-only callers
	// (status/list) without granting submit/delete rights.
	ManagementReadOnlyKey string `yaml:"management_readonly_key" json:"management_readonly_key"`

	// ManagementAllowRemote permits admin requests from outside the
	// loopback interface, gated by ManagementRemoteAllowIPs.
	ManagementAllowRemote    bool     `yaml:"management_allow_remote" json:"management_allow_remote"`
	ManagementRemoteAllowIPs []string `yaml:"management_remote_allow_ips" json:"management_remote_allow_ips"`
	ManagementRemoteTTlHours int      `yaml:"management_remote_ttl_hours" json:"management_remote_ttl_hours"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port     int    `yaml:"port" json:"port"`
	BasePath string `yaml:"base_path" json:"base_path"`
}

// StorageConfig selects and configures the durable persistence backend used
// for the credential snapshot (see pool.Persister).
type StorageConfig struct {
	Backend string `yaml:"backend" json:"backend"` // "file" (default when empty), "redis", "git", "auto"
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`

	GitRemoteURL   string `yaml:"git_remote_url" json:"git_remote_url"`
	GitBranch      string `yaml:"git_branch" json:"git_branch"`
	GitUsername    string `yaml:"git_username" json:"git_username"`
	GitPassword    string `yaml:"git_password" json:"git_password"`
	GitAuthorName  string `yaml:"git_author_name" json:"git_author_name"`
	GitAuthorEmail string `yaml:"git_author_email" json:"git_author_email"`
}

// UpstreamConfig points at the fronted conversational-model API.
type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	RequestTimeout int    `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
	StreamTimeout  int    `yaml:"stream_timeout_seconds" json:"stream_timeout_seconds"`
}

// PoolConfig tunes the credential pool actor's scheduling and rolling
// usage-window behavior.
type PoolConfig struct {
	TickIntervalSeconds int `yaml:"tick_interval_seconds" json:"tick_interval_seconds"`

	SessionWindowHours int `yaml:"session_window_hours" json:"session_window_hours"`
	WeeklyWindowDays   int `yaml:"weekly_window_days" json:"weekly_window_days"`

	AffinityCacheCapacity int `yaml:"affinity_cache_capacity" json:"affinity_cache_capacity"`
	AffinityIdleTTLMins   int `yaml:"affinity_idle_ttl_minutes" json:"affinity_idle_ttl_minutes"`

	// CoolDownMinutes is how long a rate-limited credential sits in the
	// cooling collection before the maintenance tick promotes it back, used
	// only when the upstream response carried no reset time.
	CoolDownMinutes int `yaml:"cool_down_minutes" json:"cool_down_minutes"`
}

// RateLimitConfig controls the inbound per-key rate limiter middleware.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// Config is the complete on-disk configuration document.
type Config struct {
	Security SecurityConfig  `yaml:"security" json:"security"`
	Server   ServerConfig    `yaml:"server" json:"server"`
	Storage  StorageConfig   `yaml:"storage" json:"storage"`
	Upstream UpstreamConfig  `yaml:"upstream" json:"upstream"`
	Pool     PoolConfig      `yaml:"pool" json:"pool"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// DisabledModels excludes specific upstream model names from being
	// accepted, independent of the credential pool's health.
	DisabledModels []string `yaml:"disabled_models" json:"disabled_models"`
}

func (cm *ConfigManager) defaultConfig() *Config {
	return &Config{
		Security: SecurityConfig{
			Debug:                    false,
			ManagementRemoteTTlHours: 24,
		},
		Server: ServerConfig{
			Port:     8080,
			BasePath: "",
		},
		Storage: StorageConfig{
			Backend: "file",
			BaseDir: "data",
		},
		Upstream: UpstreamConfig{
			BaseURL:        "https://api.anthropic.com",
			RequestTimeout: 120,
			StreamTimeout:  600,
		},
		Pool: PoolConfig{
			TickIntervalSeconds:   300,
			SessionWindowHours:    5,
			WeeklyWindowDays:      7,
			AffinityCacheCapacity: 1000,
			AffinityIdleTTLMins:   60,
			CoolDownMinutes:       10,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 5,
			Burst:             10,
		},
	}
}

// SessionWindow returns the configured session rolling-window duration.
func (c *Config) SessionWindow() time.Duration {
	return time.Duration(c.Pool.SessionWindowHours) * time.Hour
}

// WeeklyWindow returns the configured weekly rolling-window duration.
func (c *Config) WeeklyWindow() time.Duration {
	return time.Duration(c.Pool.WeeklyWindowDays) * 24 * time.Hour
}

// TickInterval returns the configured maintenance-tick period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Pool.TickIntervalSeconds) * time.Second
}

// CoolDown returns the configured cooldown period for rate-limited credentials.
func (c *Config) CoolDown() time.Duration {
	return time.Duration(c.Pool.CoolDownMinutes) * time.Minute
}

// mergeEnvVars overlays a small set of deployment-time environment
// variables on top of the file-loaded configuration, letting container
// deployments override secrets without editing the config file.
func (cm *ConfigManager) mergeEnvVars() {
	if cm.config == nil {
		cm.config = cm.defaultConfig()
	}
	c := cm.config

	if v := os.Getenv("RELAYGATE_MANAGEMENT_KEY"); v != "" {
		c.Security.ManagementKey = v
	}
	if v := os.Getenv("RELAYGATE_MANAGEMENT_READONLY_KEY"); v != "" {
		c.Security.ManagementReadOnlyKey = v
	}
	if v := os.Getenv("RELAYGATE_UPSTREAM_BASE_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("RELAYGATE_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("RELAYGATE_STORAGE_BASE_DIR"); v != "" {
		c.Storage.BaseDir = v
	}
	if v := os.Getenv("RELAYGATE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("RELAYGATE_DEBUG"); v != "" {
		c.Security.Debug = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("RELAYGATE_GIT_PASSWORD"); v != "" {
		c.Storage.GitPassword = v
	}
	if v := os.Getenv("RELAYGATE_REDIS_PASSWORD"); v != "" {
		c.Storage.RedisPassword = v
	}
}

// CheckManagementKey reports whether the provided bearer token matches the
// configured admin secret. A token of a different length is rejected at
// once; equal-length contents are compared in constant time so a prefix
// match cannot be detected through timing.
func CheckManagementKey(token, expected string) bool {
	if expected == "" || token == "" {
		return false
	}
	if len(token) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}
