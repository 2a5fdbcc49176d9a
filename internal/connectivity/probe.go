package connectivity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Probe is a Provider that polls the record API health endpoint.
type Probe struct {
	url        string
	interval   time.Duration
	httpClient *http.Client
	log        *slog.Logger

	mu     sync.RWMutex
	online bool
	subs   subscribers
}

// NewProbe creates a probe for baseURL + "/healthz". It reports offline
// until the first successful check.
func NewProbe(baseURL string, interval time.Duration, log *slog.Logger) *Probe {
	return &Probe{
		url:        strings.TrimRight(baseURL, "/") + "/healthz",
		interval:   interval,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        log,
	}
}

func (p *Probe) IsOnline() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

func (p *Probe) OnChange(fn func(bool)) func() {
	return p.subs.add(fn)
}

// Check probes once and updates the state.
func (p *Probe) Check(ctx context.Context) bool {
	err := p.ping(ctx)
	online := err == nil

	p.mu.Lock()
	changed := p.online != online
	p.online = online
	p.mu.Unlock()

	if changed {
		if online {
			p.log.Info("remote reachable, going online", "url", p.url)
		} else {
			p.log.Warn("remote unreachable, going offline", "url", p.url, "error", err)
		}
		p.subs.notify(online)
	}
	return online
}

// Run checks immediately and then on every interval until ctx is done.
func (p *Probe) Run(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

func (p *Probe) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("probe: create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe: status %d", resp.StatusCode)
	}
	return nil
}
