package federation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"
)

// Partition is one remote partition of the federated store: a named
// endpoint plus routing metadata. Healthy and LastSeen are maintained by
// the catalog's health checks.
type Partition struct {
	Name     string
	Endpoint Endpoint
	Priority int // lower is higher priority
	Healthy  bool
	LastSeen time.Time
}

// CatalogConfig configures the partition catalog.
type CatalogConfig struct {
	// HealthPath is the HTTP path probed on each partition.
	// Default: /health
	HealthPath string `json:"health_path" yaml:"health_path"`

	// CheckInterval is how often the background checker probes partitions.
	// Default: 1m
	CheckInterval time.Duration `json:"check_interval" yaml:"check_interval"`

	// CheckTimeout bounds one health probe.
	// Default: 5s
	CheckTimeout time.Duration `json:"check_timeout" yaml:"check_timeout"`
}

// DefaultCatalogConfig returns the default catalog configuration.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		HealthPath:    "/health",
		CheckInterval: time.Minute,
		CheckTimeout:  5 * time.Second,
	}
}

// Catalog is the registry of remote partitions a coordinator can route
// sub-queries to. It is safe for concurrent use.
type Catalog struct {
	mu         sync.RWMutex
	partitions map[string]*Partition
	config     CatalogConfig
	client     HTTPDoer
}

// NewCatalog creates an empty catalog. A nil client defaults to a plain
// http.Client bounded by the check timeout.
func NewCatalog(config CatalogConfig, client HTTPDoer) *Catalog {
	def := DefaultCatalogConfig()
	if config.HealthPath == "" {
		config.HealthPath = def.HealthPath
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = def.CheckInterval
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = def.CheckTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: config.CheckTimeout}
	}
	return &Catalog{
		partitions: make(map[string]*Partition),
		config:     config,
		client:     client,
	}
}

// Add registers a partition. New partitions start healthy until a probe
// proves otherwise.
func (c *Catalog) Add(name string, ep Endpoint, priority int) error {
	if name == "" {
		return errors.New("federation: partition name is required")
	}
	if ep.URL == "" {
		return errors.New("federation: partition url is required")
	}
	if _, err := url.Parse(ep.URL); err != nil {
		return fmt.Errorf("federation: invalid partition url: %w", err)
	}
	if ep.Name == "" {
		ep.Name = name
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.partitions[name] = &Partition{
		Name:     name,
		Endpoint: ep,
		Priority: priority,
		Healthy:  true,
	}
	return nil
}

// Remove deletes a partition from the catalog.
func (c *Catalog) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.partitions, name)
}

// Get returns a copy of the named partition.
func (c *Catalog) Get(name string) (Partition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.partitions[name]
	if !ok {
		return Partition{}, fmt.Errorf("%w: %s", ErrPartitionNotFound, name)
	}
	return *p, nil
}

// List returns copies of all partitions sorted by ascending priority.
func (c *Catalog) List() []Partition {
	c.mu.RLock()
	out := make([]Partition, 0, len(c.partitions))
	for _, p := range c.partitions {
		out = append(out, *p)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// HealthyPartitions returns the healthy subset of List.
func (c *Catalog) HealthyPartitions() []Partition {
	all := c.List()
	out := all[:0]
	for _, p := range all {
		if p.Healthy {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of registered partitions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.partitions)
}

// MarkHealthy flags a partition as reachable and stamps the sighting.
func (c *Catalog) MarkHealthy(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.partitions[name]; ok {
		p.Healthy = true
		p.LastSeen = time.Now()
	}
}

// MarkUnhealthy flags a partition as unreachable.
func (c *Catalog) MarkUnhealthy(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.partitions[name]; ok {
		p.Healthy = false
	}
}

// CheckHealth probes every partition in parallel and updates their flags.
func (c *Catalog) CheckHealth(ctx context.Context) map[string]bool {
	partitions := c.List()

	results := make(map[string]bool, len(partitions))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range partitions {
		wg.Add(1)
		go func(p Partition) {
			defer wg.Done()
			healthy := c.probe(ctx, p)

			mu.Lock()
			results[p.Name] = healthy
			mu.Unlock()

			if healthy {
				c.MarkHealthy(p.Name)
			} else {
				c.MarkUnhealthy(p.Name)
			}
		}(p)
	}

	wg.Wait()
	return results
}

func (c *Catalog) probe(ctx context.Context, p Partition) bool {
	u, err := url.Parse(p.Endpoint.URL)
	if err != nil {
		return false
	}
	u.Path = c.config.HealthPath

	ctx, cancel := context.WithTimeout(ctx, c.config.CheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false
	}
	if p.Endpoint.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.Endpoint.BearerToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// StartHealthChecker runs periodic health checks until the context ends.
func (c *Catalog) StartHealthChecker(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.config.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CheckHealth(ctx)
			}
		}
	}()
}
