package db

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/netlify/mcp-gateway/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDatabaseOperations runs the client store checks against PostgreSQL
func TestDatabaseOperations(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("Skipping database tests: TEST_DATABASE_DSN is not set")
	}
	db, err := New(dsn)
	if err != nil {
		t.Skipf("Skipping database tests: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Logf("Error closing database: %v", err)
		}
	}()

	assert.Equal(t, "postgres", db.dbType)

	t.Run("TestClientOperations", func(t *testing.T) {
		testClientOperations(t, db)
	})
}

func TestMemoryStore(t *testing.T) {
	t.Run("TestClientOperations", func(t *testing.T) {
		testClientOperations(t, NewMemoryStore())
	})

	t.Run("TestReturnsCopies", func(t *testing.T) {
		store := NewMemoryStore()
		client := &types.ClientInfo{ClientID: "c1", RedirectUris: []string{"https://a.example.com/cb"}}
		require.NoError(t, store.StoreClient(client))

		client.RedirectUris[0] = "https://evil.example.com/cb"

		got, err := store.GetClient("c1")
		require.NoError(t, err)
		assert.Equal(t, types.StringSlice{"https://a.example.com/cb"}, got.RedirectUris)

		got.RedirectUris[0] = "https://evil.example.com/cb"
		again, err := store.GetClient("c1")
		require.NoError(t, err)
		assert.Equal(t, types.StringSlice{"https://a.example.com/cb"}, again.RedirectUris)
	})
}

func TestOpen(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	assert.Equal(t, "memory", Type(""))
	assert.Equal(t, "PostgreSQL", Type("postgres://u:p@localhost/db"))
	assert.Equal(t, "PostgreSQL", Type("postgresql://u:p@localhost/db"))
	assert.Equal(t, "SQLite (clients.db)", Type("clients.db"))

	_, err = New("")
	assert.Error(t, err)
}

func testClientOperations(t *testing.T, db ClientStore) {
	clientID := uuid.NewString()

	client := &types.ClientInfo{
		ClientID:                clientID,
		RedirectUris:            []string{"https://test.example.com/callback"},
		ClientName:              "Test Client DB",
		LogoURI:                 "https://test.example.com/logo.png",
		ClientURI:               "https://test.example.com",
		PolicyURI:               "https://test.example.com/policy",
		TosURI:                  "https://test.example.com/tos",
		Contacts:                []string{"admin@test.example.com"},
		GrantTypes:              []string{"authorization_code"},
		ResponseTypes:           []string{"code"},
		RegistrationDate:        time.Now().Unix(),
		TokenEndpointAuthMethod: "none",
	}

	err := db.StoreClient(client)
	require.NoError(t, err)

	retrievedClient, err := db.GetClient(clientID)
	require.NoError(t, err)
	assert.Equal(t, client.ClientID, retrievedClient.ClientID)
	assert.Equal(t, client.RedirectUris, retrievedClient.RedirectUris)
	assert.Equal(t, client.ClientName, retrievedClient.ClientName)
	assert.Equal(t, client.LogoURI, retrievedClient.LogoURI)
	assert.Equal(t, client.ClientURI, retrievedClient.ClientURI)
	assert.Equal(t, client.PolicyURI, retrievedClient.PolicyURI)
	assert.Equal(t, client.TosURI, retrievedClient.TosURI)
	assert.Equal(t, client.Contacts, retrievedClient.Contacts)
	assert.Equal(t, client.GrantTypes, retrievedClient.GrantTypes)
	assert.Equal(t, client.ResponseTypes, retrievedClient.ResponseTypes)
	assert.Equal(t, client.RegistrationDate, retrievedClient.RegistrationDate)
	assert.Equal(t, client.TokenEndpointAuthMethod, retrievedClient.TokenEndpointAuthMethod)

	// Save overwrites an existing registration
	client.ClientName = "Renamed"
	require.NoError(t, db.StoreClient(client))
	retrievedClient, err = db.GetClient(clientID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", retrievedClient.ClientName)

	_, err = db.GetClient("non_existent_client")
	assert.ErrorIs(t, err, ErrClientNotFound)
}
