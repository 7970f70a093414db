package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/mihaisavezi/endpoint-proxy/internal/auth"
)

const (
	DefaultPort           = 6970
	DefaultConfigFilename = "config.json"
	DefaultYAMLFilename   = "config.yaml"
	DefaultHost           = "127.0.0.1"
	DefaultTimeoutSeconds = 120

	// EnvPrefix prefixes every environment override, e.g. EP_PORT.
	EnvPrefix = "EP"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrDuplicateProvider = errors.New("duplicate provider name")
)

// DefaultProviderURLs are the API bases of the built-in providers.
var DefaultProviderURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"cursor":     "https://api2.cursor.sh",
}

// DefaultProviderModels seed the model list of built-in providers that
// configure none.
var DefaultProviderModels = map[string][]string{
	"openai": {
		"gpt-4o",
		"gpt-4o-mini",
		"text-embedding-3-small",
		"text-embedding-3-large",
	},
	"openrouter": {
		"anthropic/claude-3.5-sonnet",
		"openai/gpt-4o",
		"openai/text-embedding-3-small",
		"meta-llama/llama-3.1-70b-instruct",
	},
	"cursor": {
		"gpt-4o",
		"claude-3.5-sonnet",
	},
}

// Provider is one configured upstream connection.
type Provider struct {
	Name           string   `json:"name" yaml:"name"`
	APIBase        string   `json:"api_base_url,omitempty" yaml:"url,omitempty"`
	Models         []string `json:"models,omitempty" yaml:"models,omitempty"`
	ModelWhitelist []string `json:"model_whitelist,omitempty" yaml:"model_whitelist,omitempty"`

	auth.Credentials `yaml:",inline"`
}

// IsModelAllowed reports whether model passes the whitelist. Whitelist
// entries match as substrings; an empty whitelist allows everything.
func (p *Provider) IsModelAllowed(model string) bool {
	if len(p.ModelWhitelist) == 0 {
		return true
	}

	for _, allowed := range p.ModelWhitelist {
		if strings.Contains(model, allowed) {
			return true
		}
	}

	return false
}

// GetAllowedModels returns the configured models that pass the whitelist.
func (p *Provider) GetAllowedModels() []string {
	if len(p.ModelWhitelist) == 0 {
		return p.Models
	}

	var allowed []string
	for _, model := range p.Models {
		if p.IsModelAllowed(model) {
			allowed = append(allowed, model)
		}
	}

	return allowed
}

// HasModel reports whether model is listed for the provider.
func (p *Provider) HasModel(model string) bool {
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}

	return false
}

// ConnectionCredentials returns a copy of the provider credentials with the
// configured API base filled in as the base URL when none is set.
func (p *Provider) ConnectionCredentials() *auth.Credentials {
	creds := p.Credentials.Clone()

	if creds.BaseURL() == "" && p.APIBase != "" {
		if creds.ProviderSpecificData == nil {
			creds.ProviderSpecificData = make(map[string]any, 1)
		}

		creds.ProviderSpecificData[auth.DataKeyBaseURL] = p.APIBase
	}

	return creds
}

type RouterConfig struct {
	Default    string `json:"default" yaml:"default"`
	Embeddings string `json:"embeddings,omitempty" yaml:"embeddings,omitempty"`
}

type Config struct {
	Host           string `json:"HOST,omitempty" yaml:"host,omitempty" envconfig:"HOST"`
	Port           int    `json:"PORT,omitempty" yaml:"port,omitempty" envconfig:"PORT"`
	APIKey         string `json:"APIKEY,omitempty" yaml:"api_key,omitempty" envconfig:"API_KEY"`
	LogLevel       string `json:"LOG_LEVEL,omitempty" yaml:"log_level,omitempty" envconfig:"LOG_LEVEL"`
	LogFile        string `json:"LOG_FILE,omitempty" yaml:"log_file,omitempty" envconfig:"LOG_FILE"`
	LogTokens      bool   `json:"LOG_TOKENS,omitempty" yaml:"log_tokens,omitempty" envconfig:"LOG_TOKENS"`
	TimeoutSeconds int    `json:"TIMEOUT_SECONDS,omitempty" yaml:"timeout_seconds,omitempty" envconfig:"TIMEOUT_SECONDS"`

	Providers []Provider   `json:"Providers" yaml:"providers" ignored:"true"`
	Router    RouterConfig `json:"Router" yaml:"router" ignored:"true"`
}

// FindProvider returns the provider configured under name.
func (c *Config) FindProvider(name string) (*Provider, bool) {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i], true
		}
	}

	return nil, false
}

// Validate checks the invariants the server relies on.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("provider %d: name is required", i))
			continue
		}

		if seen[name] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateProvider, name))
		}

		seen[name] = true
	}

	for _, route := range []string{c.Router.Default, c.Router.Embeddings} {
		if route == "" {
			continue
		}

		provider, _, ok := splitRoute(route)
		if !ok {
			errs = append(errs, fmt.Errorf("router entry %q must be provider/model or provider,model", route))
			continue
		}

		if !seen[provider] {
			errs = append(errs, fmt.Errorf("router entry %q: %w: %s", route, ErrProviderNotFound, provider))
		}
	}

	return errors.Join(errs...)
}

func splitRoute(route string) (string, string, bool) {
	for _, sep := range []string{",", "/"} {
		if provider, model, ok := strings.Cut(route, sep); ok {
			return provider, model, provider != "" && model != ""
		}
	}

	return "", "", false
}

type Manager struct {
	baseDir     string
	configValue atomic.Value
	// mu serializes writes to the config file.
	mu sync.Mutex
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir: baseDir,
	}
}

func (m *Manager) jsonPath() string {
	return filepath.Join(m.baseDir, DefaultConfigFilename)
}

func (m *Manager) yamlPath() string {
	return filepath.Join(m.baseDir, DefaultYAMLFilename)
}

// Load reads the config file, YAML taking precedence over JSON, applies
// defaults and then EP_* environment overrides.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.readFile()
	if err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	m.configValue.Store(cfg)

	return cfg, nil
}

// readFile loads the on-disk config with defaults but without environment
// overrides, so writes never persist values that came from the environment.
func (m *Manager) readFile() (*Config, error) {
	path := m.GetPath()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config

	if filepath.Ext(path) == ".yaml" {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml config: %w", err)
		}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}

	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}

	for i := range cfg.Providers {
		p := &cfg.Providers[i]

		if p.APIBase == "" {
			p.APIBase = DefaultProviderURLs[p.Name]
		}

		if len(p.Models) == 0 {
			p.Models = DefaultProviderModels[p.Name]
		}
	}
}

func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		// Return a config with defaults if loading fails
		return &Config{
			Host:           DefaultHost,
			Port:           DefaultPort,
			TimeoutSeconds: DefaultTimeoutSeconds,
		}
	}

	return cfg
}

// Save writes cfg in the format of the active config file.
func (m *Manager) Save(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.save(cfg)
}

func (m *Manager) save(cfg *Config) error {
	if m.HasYAML() {
		return m.writeYAML(cfg)
	}

	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(m.jsonPath(), data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	m.configValue.Store(cfg)

	return nil
}

func (m *Manager) SaveAsYAML(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writeYAML(cfg)
}

func (m *Manager) writeYAML(cfg *Config) error {
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml config: %w", err)
	}

	if err := os.WriteFile(m.yamlPath(), data, 0600); err != nil {
		return fmt.Errorf("write yaml config file: %w", err)
	}

	m.configValue.Store(cfg)

	return nil
}

// UpdateProvider applies fn to the named provider in the on-disk config,
// writes it back and reloads.
func (m *Manager) UpdateProvider(name string, fn func(p *Provider)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.readFile()
	if err != nil {
		return err
	}

	p, ok := cfg.FindProvider(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	fn(p)

	if err := m.save(cfg); err != nil {
		return err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}

	m.configValue.Store(cfg)

	return nil
}

// Export returns the on-disk config as indented JSON.
func (m *Manager) Export() ([]byte, error) {
	cfg, err := m.readFile()
	if err != nil {
		return nil, err
	}

	return json.MarshalIndent(cfg, "", "  ")
}

// Import replaces the config with a JSON payload after validating it.
func (m *Manager) Import(data []byte) error {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("invalid config payload: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.save(&cfg); err != nil {
		return err
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}

	m.configValue.Store(&cfg)

	return nil
}

// CreateExampleYAML writes an example config listing every built-in provider
// and one compatible endpoint.
func (m *Manager) CreateExampleYAML() error {
	cfg := &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		APIKey:         "your-proxy-api-key-here",
		TimeoutSeconds: DefaultTimeoutSeconds,
		Providers: []Provider{
			{Name: "openai", Credentials: auth.Credentials{APIKey: "your-openai-api-key"}},
			{Name: "openrouter", Credentials: auth.Credentials{APIKey: "your-openrouter-api-key"}},
			{
				Name: "cursor",
				Credentials: auth.Credentials{
					AccessToken:          "your-cursor-access-token",
					RefreshToken:         "your-cursor-refresh-token",
					ProviderSpecificData: map[string]any{auth.DataKeyClientID: "your-cursor-client-id"},
				},
			},
			{
				Name:    "local",
				APIBase: "http://localhost:11434/v1",
				Models:  []string{"nomic-embed-text", "llama3.1"},
			},
		},
		Router: RouterConfig{
			Default:    "openai/gpt-4o",
			Embeddings: "openai/text-embedding-3-small",
		},
	}

	applyDefaults(cfg)

	return m.SaveAsYAML(cfg)
}

// GetPath returns the YAML path when a YAML config exists, else the JSON path.
func (m *Manager) GetPath() string {
	if m.HasYAML() {
		return m.yamlPath()
	}

	return m.jsonPath()
}

func (m *Manager) Exists() bool {
	return m.HasYAML() || m.HasJSON()
}

func (m *Manager) HasYAML() bool {
	_, err := os.Stat(m.yamlPath())
	return err == nil
}

func (m *Manager) HasJSON() bool {
	_, err := os.Stat(m.jsonPath())
	return err == nil
}
