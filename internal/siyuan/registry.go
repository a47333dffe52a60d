package siyuan

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/account"
)

// defaultTimeout bounds every remote call that carries no tighter
// context deadline.
const defaultTimeout = 30 * time.Second

// Registry hands out one Client per account id. It is owned by the
// composition root and passed to whatever needs per-account clients;
// there is no package-level client state.
type Registry struct {
	cloud  CloudEndpoints
	cache  CacheDirs
	http   *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

func NewRegistry(log *slog.Logger, cloud CloudEndpoints, cache CacheDirs) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		cloud: cloud,
		cache: cache,
		// One transport shared by all per-account clients keeps
		// connection reuse across accounts talking to the same host.
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  log,
		clients: make(map[string]*Client),
	}
}

// Acquire returns the client for the account's id, creating it on
// first use. An existing client gets the fresh account record instead
// of being rebuilt.
func (r *Registry) Acquire(acc account.Account) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[acc.ID]; ok {
		client.SetAccount(acc)
		return client
	}
	client := newClient(r.logger, r.http, r.cloud, r.cache, acc)
	r.clients[acc.ID] = client
	return client
}
