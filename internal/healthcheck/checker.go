package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// A dependency the service needs. A failing critical probe makes the whole
// service unhealthy; a failing non-critical one only degrades it.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// Periodically probes the service's dependencies
type Checker struct {
	mu          sync.RWMutex
	probes      []Probe
	status      map[string]*Status
	interval    time.Duration
	timeout     time.Duration
	maxFailures int
	logger      *slog.Logger
	stopChan    chan struct{}
	running     bool
}

// Holds health checker configuration
type Config struct {
	Probes      []Probe
	Interval    time.Duration // How often to check (default: 15s)
	Timeout     time.Duration // Per-probe timeout (default: 5s)
	MaxFailures int           // Failures before marking unhealthy (default: 2)
	Logger      *slog.Logger
}

func NewChecker(cfg Config) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	checker := &Checker{
		probes:      cfg.Probes,
		status:      make(map[string]*Status, len(cfg.Probes)),
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		maxFailures: cfg.MaxFailures,
		logger:      cfg.Logger.With("component", "healthcheck"),
		stopChan:    make(chan struct{}),
	}

	// Assume healthy until proven otherwise
	for _, p := range cfg.Probes {
		checker.status[p.Name] = &Status{
			Name:      p.Name,
			Critical:  p.Critical,
			IsHealthy: true,
			LastCheck: time.Now(),
		}
	}

	return checker
}

// Begins periodic health checks
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.logger.Info("starting health checks", "probes", len(c.probes), "interval", c.interval)

	c.CheckNow(context.Background())

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.CheckNow(context.Background())
			case <-c.stopChan:
				return
			}
		}
	}()
}

// Stops the health checker
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		close(c.stopChan)
		c.running = false
		c.logger.Info("health checker stopped")
	}
}

// CheckNow runs every probe concurrently and waits for them
func (c *Checker) CheckNow(ctx context.Context) {
	var wg sync.WaitGroup

	for _, probe := range c.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			c.run(ctx, p)
		}(probe)
	}

	wg.Wait()
}

func (c *Checker) run(ctx context.Context, p Probe) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := p.Check(ctx); err != nil {
		c.recordFailure(p.Name, err)
		return
	}
	c.recordSuccess(p.Name)
}

func (c *Checker) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	status := c.status[name]
	status.LastCheck = now
	status.LastSuccess = now
	status.LastError = ""
	status.FailureCount = 0

	if !status.IsHealthy {
		c.logger.Info("dependency recovered", "probe", name)
		status.IsHealthy = true
	}
}

func (c *Checker) recordFailure(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	status := c.status[name]
	status.LastCheck = now
	status.LastFailure = now
	status.LastError = err.Error()
	status.FailureCount++

	if status.IsHealthy && status.FailureCount >= c.maxFailures {
		c.logger.Warn("dependency unhealthy", "probe", name, "failures", status.FailureCount, "error", err)
		status.IsHealthy = false
	}
}

// Return the health status of a specific probe
func (c *Checker) GetStatus(name string) *Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if status, exists := c.status[name]; exists {
		statusCopy := *status
		return &statusCopy
	}

	return nil
}

// Returns health status of all probes
func (c *Checker) GetAllStatus() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statusMap := make(map[string]Status, len(c.status))
	for name, status := range c.status {
		statusMap[name] = *status
	}

	return statusMap
}

// Returns the overall health status
func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	overall := Healthy
	for _, status := range c.status {
		if status.IsHealthy {
			continue
		}
		if status.Critical {
			return Unhealthy
		}
		overall = Degraded
	}

	return overall
}
