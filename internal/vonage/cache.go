package vonage

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/nunutzi10/foam-ai/internal/tenants"
)

// ErrNotConfigured is returned when a tenant has no channel credentials.
var ErrNotConfigured = fmt.Errorf("vonage: tenant has no channel credentials")

// Cache hands out one client per tenant, keeping parsed key material alive
// across webhook deliveries. Entries are dropped when tenant settings change.
type Cache struct {
	mu      sync.Mutex
	clients map[int64]*Client

	hostOverride string
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewCache(log *slog.Logger, hostOverride string, httpClient *http.Client) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		clients:      make(map[int64]*Client),
		hostOverride: hostOverride,
		httpClient:   httpClient,
		logger:       log,
	}
}

// For returns the client for a tenant, building one from its settings on
// first use.
func (c *Cache) For(tenant tenants.Tenant) (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[tenant.ID]; ok {
		return client, nil
	}

	settings := tenant.Settings
	if settings.VonageApplicationID == "" || settings.VonagePrivateKey == "" {
		return nil, ErrNotConfigured
	}

	client, err := NewClient(c.logger, settings.VonageApplicationID, settings.VonagePrivateKey, settings.Production(), c.httpClient)
	if err != nil {
		return nil, err
	}
	if c.hostOverride != "" {
		client.host = c.hostOverride
	}
	c.clients[tenant.ID] = client
	return client, nil
}

// Invalidate drops a tenant's cached client so updated credentials take
// effect on the next send.
func (c *Cache) Invalidate(tenantID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, tenantID)
}
