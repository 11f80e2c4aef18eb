package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the bridge process.
// All values come from env (or an env-file loaded by the process
// runner). No business logic should depend on raw environment
// variables.
type Config struct {
	App   AppConfig
	Daily DailyConfig
	Plivo PlivoConfig
	Agent AgentConfig
}

type AppConfig struct {
	Env  string
	Port int

	// ServerURL is this process's externally reachable base URL; the
	// carrier fetches answer/hangup/fallback callbacks from it.
	ServerURL string

	// UpstreamTimeout bounds every call to the conferencing and
	// carrier APIs so a slow collaborator cannot hang a handler.
	UpstreamTimeout time.Duration
}

type DailyConfig struct {
	APIKey string
	APIURL string

	// SelfSignTokens mints meeting tokens locally instead of calling
	// the token endpoint.
	SelfSignTokens bool
	TokenTTL       time.Duration
}

type PlivoConfig struct {
	AuthID      string
	AuthToken   string
	PhoneNumber string
	APIURL      string
}

type AgentConfig struct {
	// Command is the worker executable started per call.
	Command string
	LogDir  string

	// Readiness timeouts double as the legacy settling delays: short
	// for inbound (the signaling response can go back before the
	// worker finishes joining), longer for outbound (the worker must
	// be in the room before the callee answers).
	ReadyTimeoutInbound  time.Duration
	ReadyTimeoutOutbound time.Duration
}

const (
	defaultDailyAPIURL = "https://api.daily.co/v1"
	defaultPlivoAPIURL = "https://api.plivo.com/v1"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.App.Port = n
	}
	c.App.ServerURL = strings.TrimRight(strings.TrimSpace(os.Getenv("SERVER_URL")), "/")
	c.App.UpstreamTimeout = optionalDuration("UPSTREAM_TIMEOUT", &parseErrs)

	c.Daily.APIKey = os.Getenv("DAILY_API_KEY")
	c.Daily.APIURL = strings.TrimRight(strings.TrimSpace(os.Getenv("DAILY_API_URL")), "/")
	c.Daily.SelfSignTokens = boolEnv("DAILY_SELF_SIGN_TOKENS")
	c.Daily.TokenTTL = optionalDuration("DAILY_TOKEN_TTL", &parseErrs)

	c.Plivo.AuthID = strings.TrimSpace(os.Getenv("PLIVO_AUTH_ID"))
	c.Plivo.AuthToken = os.Getenv("PLIVO_AUTH_TOKEN")
	c.Plivo.PhoneNumber = strings.TrimSpace(os.Getenv("PLIVO_PHONE_NUMBER"))
	c.Plivo.APIURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PLIVO_API_URL")), "/")

	c.Agent.Command = strings.TrimSpace(os.Getenv("AGENT_COMMAND"))
	c.Agent.LogDir = strings.TrimSpace(os.Getenv("AGENT_LOG_DIR"))
	c.Agent.ReadyTimeoutInbound = optionalDuration("AGENT_READY_TIMEOUT_INBOUND", &parseErrs)
	c.Agent.ReadyTimeoutOutbound = optionalDuration("AGENT_READY_TIMEOUT_OUTBOUND", &parseErrs)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.ServerURL == "" {
		errs = append(errs, errors.New("SERVER_URL is required (the carrier must be able to reach this server)"))
	} else if u, err := url.Parse(c.App.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("SERVER_URL must be an absolute URL, got %q", c.App.ServerURL))
	}
	if c.App.UpstreamTimeout <= 0 {
		c.App.UpstreamTimeout = 15 * time.Second
	}

	if c.Daily.APIKey == "" {
		errs = append(errs, errors.New("DAILY_API_KEY is required"))
	}
	if c.Daily.APIURL == "" {
		c.Daily.APIURL = defaultDailyAPIURL
	}

	if c.Plivo.AuthID == "" {
		errs = append(errs, errors.New("PLIVO_AUTH_ID is required"))
	}
	if c.Plivo.AuthToken == "" {
		errs = append(errs, errors.New("PLIVO_AUTH_TOKEN is required"))
	}
	if c.Plivo.PhoneNumber == "" {
		errs = append(errs, errors.New("PLIVO_PHONE_NUMBER is required"))
	}
	if c.Plivo.APIURL == "" {
		c.Plivo.APIURL = defaultPlivoAPIURL
	}

	if c.Agent.Command == "" {
		errs = append(errs, errors.New("AGENT_COMMAND is required"))
	}
	if c.Agent.LogDir == "" {
		c.Agent.LogDir = os.TempDir()
	}
	if c.Agent.ReadyTimeoutInbound <= 0 {
		c.Agent.ReadyTimeoutInbound = 2 * time.Second
	}
	if c.Agent.ReadyTimeoutOutbound <= 0 {
		c.Agent.ReadyTimeoutOutbound = 5 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// CallbackURL builds a carrier callback URL rooted at SERVER_URL.
func (c Config) CallbackURL(path string) string {
	return c.App.ServerURL + path
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalDuration(key string, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a duration (e.g. 5s), got %q", key, v))
		return 0
	}
	return d
}

func boolEnv(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
