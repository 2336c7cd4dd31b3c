package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/netlify/mcp-gateway/pkg/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrClientNotFound is returned when no client is registered under the requested ID.
var ErrClientNotFound = errors.New("client not found")

// ClientStore holds dynamically registered OAuth clients.
type ClientStore interface {
	GetClient(clientID string) (*types.ClientInfo, error)
	StoreClient(client *types.ClientInfo) error
	Close() error
}

// Open returns the client store for a DSN. An empty DSN keeps clients in memory, a postgres:// or
// postgresql:// DSN uses PostgreSQL, and anything else is treated as a SQLite file path.
func Open(dsn string) (ClientStore, error) {
	if dsn == "" {
		return NewMemoryStore(), nil
	}
	return New(dsn)
}

// Type describes the backend Open selects for a DSN.
func Type(dsn string) string {
	switch {
	case dsn == "":
		return "memory"
	case isPostgres(dsn):
		return "PostgreSQL"
	default:
		return fmt.Sprintf("SQLite (%s)", dsn)
	}
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Store represents the database connection and operations
type Store struct {
	db     *gorm.DB
	dbType string // "postgres" or "sqlite"
}

// New creates a new database connection and sets up the schema
func New(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var (
		gormDB *gorm.DB
		dbType string
		err    error
	)
	if isPostgres(dsn) {
		gormDB, err = gorm.Open(postgres.Open(dsn), gormConfig)
		dbType = "postgres"
	} else {
		gormDB, err = gorm.Open(sqlite.Open(dsn), gormConfig)
		dbType = "sqlite"
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	database := &Store{db: gormDB, dbType: dbType}

	if err := database.setupSchema(); err != nil {
		return nil, fmt.Errorf("failed to setup schema: %w", err)
	}

	return database, nil
}

// setupSchema creates the necessary tables and handles migrations
func (d *Store) setupSchema() error {
	if err := d.db.AutoMigrate(&types.ClientInfo{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database schema: %w", err)
	}
	return nil
}

// GetClient retrieves a client by ID
func (d *Store) GetClient(clientID string) (*types.ClientInfo, error) {
	var client types.ClientInfo
	err := d.db.First(&client, "client_id = ?", clientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	} else if err != nil {
		return nil, err
	}
	return &client, nil
}

// StoreClient stores a new client or updates an existing one
func (d *Store) StoreClient(client *types.ClientInfo) error {
	// Save is an upsert on the primary key
	return d.db.Save(client).Error
}

// Close closes the database connection
func (d *Store) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
