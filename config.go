package federation

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PartitionConfig declares one statically configured partition.
type PartitionConfig struct {
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url" yaml:"url"`
	BearerToken string `json:"bearer_token,omitempty" yaml:"bearer_token,omitempty"`
	Priority    int    `json:"priority" yaml:"priority"`
}

// Config is the top-level configuration of the federation layer. The
// stream source, journal, and archive are optional components, enabled by
// their presence in the file.
type Config struct {
	Coordinator CoordinatorConfig `json:"coordinator" yaml:"coordinator"`
	Dispatcher  DispatcherConfig  `json:"dispatcher" yaml:"dispatcher"`
	Catalog     CatalogConfig     `json:"catalog" yaml:"catalog"`
	Ingest      IngestConfig      `json:"ingest" yaml:"ingest"`
	Stream      *StreamConfig     `json:"stream,omitempty" yaml:"stream,omitempty"`
	Journal     *JournalConfig    `json:"journal,omitempty" yaml:"journal,omitempty"`
	Archive     *ArchiveConfig    `json:"archive,omitempty" yaml:"archive,omitempty"`
	Encryption  EncryptionConfig  `json:"encryption,omitempty" yaml:"encryption,omitempty"`
	Partitions  []PartitionConfig `json:"partitions" yaml:"partitions"`
	Downsample  []DownsampleRule  `json:"downsample,omitempty" yaml:"downsample,omitempty"`
}

// DefaultConfig returns a configuration with every component at its
// defaults and no partitions registered.
func DefaultConfig() Config {
	return Config{
		Coordinator: DefaultCoordinatorConfig(),
		Dispatcher:  DefaultDispatcherConfig(),
		Catalog:     DefaultCatalogConfig(),
		Ingest:      DefaultIngestConfig(),
	}
}

// Validate checks the configuration for inconsistencies that would only
// surface later at serving time.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Partitions))
	for i, p := range c.Partitions {
		if p.Name == "" {
			return fmt.Errorf("partition %d: name is required", i)
		}
		if p.URL == "" {
			return fmt.Errorf("partition %q: url is required", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("partition %q: duplicate name", p.Name)
		}
		seen[p.Name] = true
	}
	for i, rule := range c.Downsample {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("downsample rule %d: %w", i, err)
		}
	}
	if c.Archive != nil && c.Archive.Bucket == "" {
		return errors.New("archive: bucket is required")
	}
	if c.Stream != nil && c.Stream.URL == "" {
		return errors.New("stream: url is required")
	}
	if c.Encryption.Enabled && c.Encryption.Key == "" && c.Encryption.Password == "" {
		return errors.New("encryption: key or password is required")
	}
	return nil
}

// LoadConfig reads and validates a YAML configuration file. Fields absent
// from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ToYAML renders the configuration, for dumping the effective settings.
func (c Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// BuildCatalog registers the configured partitions in a new catalog.
func (c Config) BuildCatalog(client HTTPDoer) (*Catalog, error) {
	catalog := NewCatalog(c.Catalog, client)
	for _, p := range c.Partitions {
		ep := Endpoint{Name: p.Name, URL: p.URL, BearerToken: p.BearerToken}
		if err := catalog.Add(p.Name, ep, p.Priority); err != nil {
			return nil, fmt.Errorf("registering partition %q: %w", p.Name, err)
		}
	}
	return catalog, nil
}
