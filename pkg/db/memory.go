package db

import (
	"slices"
	"sync"

	"github.com/netlify/mcp-gateway/pkg/types"
)

// MemoryStore keeps clients for the life of the process. Registrations are lost on restart.
type MemoryStore struct {
	lock    sync.RWMutex
	clients map[string]types.ClientInfo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: map[string]types.ClientInfo{},
	}
}

func (m *MemoryStore) GetClient(clientID string) (*types.ClientInfo, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	client, ok := m.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return cloneClient(client), nil
}

func (m *MemoryStore) StoreClient(client *types.ClientInfo) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.clients[client.ClientID] = *cloneClient(*client)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func cloneClient(c types.ClientInfo) *types.ClientInfo {
	c.RedirectUris = slices.Clone(c.RedirectUris)
	c.Contacts = slices.Clone(c.Contacts)
	c.GrantTypes = slices.Clone(c.GrantTypes)
	c.ResponseTypes = slices.Clone(c.ResponseTypes)
	return &c
}
