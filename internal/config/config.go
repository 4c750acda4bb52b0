// Package config resolves WorkBoard client settings from a YAML file, a
// .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL     = "http://localhost:8000/api"
	DefaultAuthScheme = "Token"
	DefaultTimeout    = 10 * time.Second
	DefaultLogLevel   = "info"
)

type Config struct {
	APIURL     string        `yaml:"api_url"`
	Token      string        `yaml:"token"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	AuthScheme string        `yaml:"auth_scheme"`
	Timeout    time.Duration `yaml:"timeout"`
	LogLevel   string        `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		APIURL:     DefaultAPIURL,
		AuthScheme: DefaultAuthScheme,
		Timeout:    DefaultTimeout,
		LogLevel:   DefaultLogLevel,
	}
}

// Load reads the given dotenv files (".env" when none are named; missing
// files are skipped), then the YAML file named by WORKBOARD_CONFIG, then
// the WORKBOARD_* environment variables.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := defaults()
	if path := os.Getenv("WORKBOARD_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"WORKBOARD_API_URL":     &c.APIURL,
		"WORKBOARD_TOKEN":       &c.Token,
		"WORKBOARD_USERNAME":    &c.Username,
		"WORKBOARD_PASSWORD":    &c.Password,
		"WORKBOARD_AUTH_SCHEME": &c.AuthScheme,
		"WORKBOARD_LOG_LEVEL":   &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("WORKBOARD_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WORKBOARD_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

// Validate checks that the settings can build a working client.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api url %q must be an absolute http(s) URL", c.APIURL)
	}
	switch strings.ToLower(c.AuthScheme) {
	case "token":
		c.AuthScheme = "Token"
	case "bearer":
		c.AuthScheme = "Bearer"
	default:
		return fmt.Errorf("auth scheme %q must be Token or Bearer", c.AuthScheme)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if (c.Username == "") != (c.Password == "") {
		return errors.New("username and password must be set together")
	}
	return nil
}

// HasCredentials reports whether the client should log in itself.
func (c *Config) HasCredentials() bool {
	return c.Token == "" && c.Username != ""
}

// Logger builds a logger at the configured level writing to w.
func (c *Config) Logger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		l.SetLevel(lvl)
	}
	return l
}
