// Package config loads and validates service configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gatekeep.org/internal/auth"
)

// Config holds the service configuration loaded from the environment.
type Config struct {
	// Addr is the address the HTTP server listens on (e.g. :8080).
	Addr string `mapstructure:"GATEKEEP_ADDR"`
	// PostgresDSN is the Postgres connection string.
	PostgresDSN string `mapstructure:"GATEKEEP_PG_DSN"`
	// AuthSecret signs the session credentials (HS256). Required.
	AuthSecret string `mapstructure:"GATEKEEP_AUTH_SECRET"`
	// SessionTTLRaw is the session lifetime (e.g. "24h").
	SessionTTLRaw string `mapstructure:"GATEKEEP_SESSION_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"GATEKEEP_BCRYPT_COST"`
	// SignupRolesRaw is the comma-separated role names granted on self-signup.
	SignupRolesRaw string `mapstructure:"GATEKEEP_SIGNUP_ROLES"`
	// RateLimitPerSecond caps requests per client IP; 0 disables limiting.
	RateLimitPerSecond float64 `mapstructure:"GATEKEEP_RATE_LIMIT"`
	// RateLimitBurst is the limiter burst size.
	RateLimitBurst int `mapstructure:"GATEKEEP_RATE_BURST"`

	viper *viper.Viper
}

// tokenDefaults are the out-of-the-box per-action validities and link routes.
var tokenDefaults = []struct {
	t        auth.ActionType
	key      string
	validity time.Duration
	route    string
}{
	{auth.ActionTypeInvite, "INVITE", 168 * time.Hour, "accept-invite"},
	{auth.ActionTypeValidateEmail, "VALIDATE_EMAIL", 72 * time.Hour, "validate-email"},
	{auth.ActionTypeAcceptTerms, "ACCEPT_TERMS", 168 * time.Hour, "accept-terms"},
	{auth.ActionTypeAcceptPrivacy, "ACCEPT_PRIVACY", 168 * time.Hour, "accept-privacy"},
	{auth.ActionTypeChangePassword, "CHANGE_PASSWORD", 1 * time.Hour, "change-password"},
	{auth.ActionTypeResetPassword, "RESET_PASSWORD", 1 * time.Hour, "reset-password"},
	{auth.ActionTypeChangeEmail, "CHANGE_EMAIL", 24 * time.Hour, "change-email"},
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GATEKEEP_ADDR", ":8080")
	v.SetDefault("GATEKEEP_PG_DSN", "")
	v.SetDefault("GATEKEEP_AUTH_SECRET", "")
	v.SetDefault("GATEKEEP_SESSION_TTL", "24h")
	v.SetDefault("GATEKEEP_BCRYPT_COST", 12)
	v.SetDefault("GATEKEEP_SIGNUP_ROLES", "")
	v.SetDefault("GATEKEEP_RATE_LIMIT", 0.0)
	v.SetDefault("GATEKEEP_RATE_BURST", 20)
	for _, d := range tokenDefaults {
		v.SetDefault("GATEKEEP_"+d.key+"_VALIDITY_HOURS", int(d.validity/time.Hour))
		v.SetDefault("GATEKEEP_"+d.key+"_ROUTE", d.route)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.viper = v

	if cfg.Addr == "" {
		return nil, errors.New("config: GATEKEEP_ADDR must be set")
	}
	if strings.TrimSpace(cfg.AuthSecret) == "" {
		return nil, errors.New("config: GATEKEEP_AUTH_SECRET must be set")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: GATEKEEP_BCRYPT_COST must be between 4 and 31")
	}
	return &cfg, nil
}

// SessionTTL parses the session lifetime. Returns 24h when unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTLRaw)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// SignupRoles returns the role names granted to self-registered accounts.
func (c *Config) SignupRoles() []string {
	if c == nil || c.SignupRolesRaw == "" {
		return nil
	}
	parts := strings.Split(c.SignupRolesRaw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TokenPolicy builds the per-action-type validity and route policy, with
// env overrides (GATEKEEP_<ACTION>_VALIDITY_HOURS, GATEKEEP_<ACTION>_ROUTE).
func (c *Config) TokenPolicy() auth.TokenPolicy {
	policy := auth.TokenPolicy{
		Validity: make(map[auth.ActionType]time.Duration, len(tokenDefaults)),
		Routes:   make(map[auth.ActionType]string, len(tokenDefaults)),
	}
	for _, d := range tokenDefaults {
		hours := d.validity
		route := d.route
		if c.viper != nil {
			if h := c.viper.GetInt("GATEKEEP_" + d.key + "_VALIDITY_HOURS"); h > 0 {
				hours = time.Duration(h) * time.Hour
			}
			if r := strings.TrimSpace(c.viper.GetString("GATEKEEP_" + d.key + "_ROUTE")); r != "" {
				route = r
			}
		}
		policy.Validity[d.t] = hours
		policy.Routes[d.t] = route
	}
	return policy
}

// Clients reads the indexed client registrations: GATEKEEP_CLIENT_<n>_ID and
// GATEKEEP_CLIENT_<n>_URI, starting at 0, stopping at the first gap. Each
// client may additionally override the route and validity per action type
// (GATEKEEP_CLIENT_<n>_<ACTION>_ROUTE, GATEKEEP_CLIENT_<n>_<ACTION>_VALIDITY_HOURS).
func (c *Config) Clients() []auth.Client {
	if c.viper == nil {
		return nil
	}
	var clients []auth.Client
	for i := 0; ; i++ {
		id := strings.TrimSpace(c.viper.GetString(fmt.Sprintf("GATEKEEP_CLIENT_%d_ID", i)))
		if id == "" {
			break
		}
		uri := strings.TrimSpace(c.viper.GetString(fmt.Sprintf("GATEKEEP_CLIENT_%d_URI", i)))
		client := auth.Client{ID: id, URI: strings.TrimRight(uri, "/")}
		for _, d := range tokenDefaults {
			if r := strings.TrimSpace(c.viper.GetString(fmt.Sprintf("GATEKEEP_CLIENT_%d_%s_ROUTE", i, d.key))); r != "" {
				if client.Routes == nil {
					client.Routes = make(map[auth.ActionType]string)
				}
				client.Routes[d.t] = r
			}
			if h := c.viper.GetInt(fmt.Sprintf("GATEKEEP_CLIENT_%d_%s_VALIDITY_HOURS", i, d.key)); h > 0 {
				if client.Validity == nil {
					client.Validity = make(map[auth.ActionType]time.Duration)
				}
				client.Validity[d.t] = time.Duration(h) * time.Hour
			}
		}
		clients = append(clients, client)
	}
	return clients
}
