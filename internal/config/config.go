package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/signon/internal/security/secretbox"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// BaseURL pública del servicio; con ella se arman los redirect_uri
		// (<base_url>/auth/<provider>/callback).
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
			Migrate         bool   `yaml:"migrate"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Checks struct {
		TTL          string `yaml:"ttl"`
		CookieSecure bool   `yaml:"cookie_secure"`
	} `yaml:"checks"`

	Rate struct {
		Enabled     bool   `yaml:"enabled"`
		Window      string `yaml:"window"`
		MaxRequests int    `yaml:"max_requests"`
	} `yaml:"rate"`

	Security struct {
		SecretBoxMasterKey string `yaml:"secretbox_master_key"` // base64(32 bytes); secrets cifrados en YAML
	} `yaml:"security"`

	// ───────── Social Login Providers ─────────
	Providers []Provider `yaml:"providers"`
}

// Provider is one configured upstream provider. Preset names (google, github)
// fill endpoints and sane defaults; a custom entry spells everything out.
type Provider struct {
	ID           string   `yaml:"id"`
	Preset       string   `yaml:"preset"` // google | github | "" (custom)
	Type         string   `yaml:"type"`   // oauth2 | oidc (custom only)
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"` // plano o secretbox
	Scopes       []string `yaml:"scopes"`
	Checks       []string `yaml:"checks"`

	Issuer           string `yaml:"issuer"`
	AuthorizationURL string `yaml:"authorization_url"`
	TokenURL         string `yaml:"token_url"`
	UserinfoURL      string `yaml:"userinfo_url"`
	ExplicitEndpoint bool   `yaml:"explicit_endpoints"`

	RedirectProxyURL string `yaml:"redirect_proxy_url"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "15m"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Checks.TTL == "" {
		c.Checks.TTL = "15m"
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}

	// validate string durations
	for _, d := range []string{c.Cache.Memory.DefaultTTL, c.Checks.TTL, c.Rate.Window} {
		if _, err := time.ParseDuration(d); err != nil {
			return nil, err
		}
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return nil, err
		}
	}

	// Overrides por env + salvaguarda prod
	c.applyEnvOverrides()

	if err := c.decryptSecrets(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	// En prod las cookies de checks siempre van Secure.
	if strings.EqualFold(c.App.Env, "prod") {
		c.Checks.CookieSecure = true
	}

	return &c, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("config: storage.dsn required for postgres driver")
	}
	switch c.Cache.Kind {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown cache kind %q", c.Cache.Kind)
	}
	if c.Cache.Kind == "redis" && strings.TrimSpace(c.Cache.Redis.Addr) == "" {
		return fmt.Errorf("config: cache.redis.addr required for redis cache")
	}

	seen := map[string]bool{}
	for i := range c.Providers {
		p := &c.Providers[i]
		if strings.TrimSpace(p.ID) == "" && p.Preset != "" {
			p.ID = p.Preset
		}
		if p.ID == "" {
			return fmt.Errorf("config: provider #%d has no id", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true
		if p.ClientID == "" {
			return fmt.Errorf("config: provider %q missing client_id", p.ID)
		}
	}
	return nil
}

// CheckTTL returns the parsed checks TTL. Load already validated the string.
func (c *Config) CheckTTL() time.Duration {
	d, _ := time.ParseDuration(c.Checks.TTL)
	return d
}

// RateWindow returns the parsed rate-limit window.
func (c *Config) RateWindow() time.Duration {
	d, _ := time.ParseDuration(c.Rate.Window)
	return d
}

// decryptSecrets opens secretbox-sealed client secrets in place. Plaintext
// values pass through untouched, so dev configs stay simple.
func (c *Config) decryptSecrets() error {
	if k := strings.TrimSpace(c.Security.SecretBoxMasterKey); k != "" && os.Getenv("SECRETBOX_MASTER_KEY") == "" {
		os.Setenv("SECRETBOX_MASTER_KEY", k)
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if !secretbox.LooksEncrypted(p.ClientSecret) {
			continue
		}
		if !secretbox.IsReady() {
			return fmt.Errorf("config: provider %q has an encrypted client_secret but SECRETBOX_MASTER_KEY is not set", p.ID)
		}
		plain, err := secretbox.Decrypt(p.ClientSecret)
		if err != nil {
			return fmt.Errorf("config: decrypt client_secret for %q: %w", p.ID, err)
		}
		p.ClientSecret = plain
	}
	return nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_BASE_URL"); ok {
		c.Server.BaseURL = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}
	if v, ok := getEnvStr("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}
	if v, ok := getEnvBool("POSTGRES_MIGRATE"); ok {
		c.Storage.Postgres.Migrate = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// CHECKS
	if v, ok := getEnvStr("CHECKS_TTL"); ok {
		if _, err := time.ParseDuration(v); err == nil {
			c.Checks.TTL = v
		}
	}
	if v, ok := getEnvBool("CHECKS_COOKIE_SECURE"); ok {
		c.Checks.CookieSecure = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}
	if v, ok := getEnvStr("RATE_WINDOW"); ok {
		if _, err := time.ParseDuration(v); err == nil {
			c.Rate.Window = v
		}
	}

	// Credenciales por provider: <ID>_CLIENT_ID / <ID>_CLIENT_SECRET
	for i := range c.Providers {
		p := &c.Providers[i]
		prefix := strings.ToUpper(strings.ReplaceAll(firstNonEmpty(p.ID, p.Preset), "-", "_"))
		if prefix == "" {
			continue
		}
		if v, ok := getEnvStr(prefix + "_CLIENT_ID"); ok {
			p.ClientID = v
		}
		if v, ok := getEnvStr(prefix + "_CLIENT_SECRET"); ok {
			p.ClientSecret = v
		}
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
