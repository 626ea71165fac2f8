package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full bridge configuration.
type Config struct {
	Logging    Logging    `yaml:"logging"`
	Server     Server     `yaml:"server"`
	Editor     Editor     `yaml:"editor"`
	Completion Completion `yaml:"completion"`
	Vendors    Vendors    `yaml:"vendors"`
}

// Logging configures log output.
type Logging struct {
	Level string `yaml:"level"`
}

// Server describes how to launch the language server.
type Server struct {
	// Path is the server executable. Required for any server-backed
	// command.
	Path string `yaml:"path"`
	// Args are extra arguments appended after the defaults.
	Args []string `yaml:"args"`
	// Env is merged over the inherited environment.
	Env map[string]string `yaml:"env"`
	// InstallDir, when set, gates startup on a usable installation.
	InstallDir string `yaml:"install_dir"`
	// TerminateGrace is how long to wait for a clean shutdown.
	TerminateGrace time.Duration `yaml:"terminate_grace"`
}

// Editor is the identity and network configuration reported to the
// server at startup.
type Editor struct {
	Name            string `yaml:"name"`
	Version         string `yaml:"version"`
	ProxyHost       string `yaml:"proxy_host"`
	ProxyPort       int    `yaml:"proxy_port"`
	ProxyStrictSSL  bool   `yaml:"proxy_strict_ssl"`
	EnterpriseURI   string `yaml:"enterprise_uri"`
	AuthProviderURL string `yaml:"auth_provider_url"`
}

// Completion tunes completion request behavior.
type Completion struct {
	// RetryAttempts bounds retries of transiently failing requests.
	RetryAttempts int `yaml:"retry_attempts"`
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Vendors holds per-vendor chat API settings.
type Vendors struct {
	OpenAI VendorAPI `yaml:"openai"`
	Claude VendorAPI `yaml:"claude"`
	Google VendorAPI `yaml:"google"`
	Ollama VendorAPI `yaml:"ollama"`
}

// VendorAPI is one chat vendor endpoint. APIKey supports ${VAR}
// environment references.
type VendorAPI struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: Logging{Level: "info"},
		Server: Server{
			TerminateGrace: 2 * time.Second,
		},
		Editor: Editor{
			Name:    "copilot-bridge",
			Version: "0.1.0",
		},
		Completion: Completion{
			RetryAttempts: 5,
			RetryDelay:    200 * time.Millisecond,
		},
	}
}

// Load reads the configuration at path, layered over the defaults. A
// missing file is not an error.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads YAML configuration from r, layered over the defaults.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.expandSecrets()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// expandSecrets resolves ${VAR} references in API keys. A reference
// to an unset variable resolves to empty, surfacing as a missing key
// when the vendor is used.
func (c *Config) expandSecrets() {
	for _, v := range []*VendorAPI{
		&c.Vendors.OpenAI, &c.Vendors.Claude, &c.Vendors.Google, &c.Vendors.Ollama,
	} {
		v.APIKey = os.Expand(v.APIKey, os.Getenv)
	}
}

func (c *Config) validate() error {
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Completion.RetryAttempts < 0 {
		return &ValidationError{
			Field:  "completion.retry_attempts",
			Reason: "must not be negative",
		}
	}
	if c.Completion.RetryDelay < 0 {
		return &ValidationError{
			Field:  "completion.retry_delay",
			Reason: "must not be negative",
		}
	}
	if c.Server.TerminateGrace < 0 {
		return &ValidationError{
			Field:  "server.terminate_grace",
			Reason: "must not be negative",
		}
	}
	return nil
}

func parseLevel(level string) (string, error) {
	switch level {
	case "", "debug", "info", "warn", "error":
		return level, nil
	default:
		return "", &ValidationError{
			Field:  "logging.level",
			Reason: fmt.Sprintf("unknown level %q", level),
		}
	}
}
