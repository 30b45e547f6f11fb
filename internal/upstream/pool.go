package upstream

import (
	"sync"

	"github.com/Desjajja/o2a/internal/config"
)

// Pool holds one client per provider id. It is rebuilt wholesale at startup
// and on apply so every pooled client reflects a single configuration
// snapshot; it is never patched incrementally. The mutex guards membership
// only, never the lifetime of an individual upstream call.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewPool() *Pool {
	return &Pool{clients: make(map[string]*Client)}
}

// Get returns the pooled client for the provider, materializing it on first
// use.
func (p *Pool) Get(provider config.Provider) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[provider.ID]; ok {
		return client
	}

	client := NewClient(provider)
	p.clients[provider.ID] = client

	return client
}

// Rebuild closes every existing client and creates a fresh set from the
// given snapshot, so no client keeps rotated or deleted credentials alive.
func (p *Pool) Rebuild(cfg config.ProxyConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, client := range p.clients {
		client.Close()
	}

	p.clients = make(map[string]*Client, len(cfg.Providers))
	for _, provider := range cfg.Providers {
		p.clients[provider.ID] = NewClient(provider)
	}
}

// Shutdown closes all pooled clients at process teardown.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, client := range p.clients {
		client.Close()
	}

	p.clients = make(map[string]*Client)
}
