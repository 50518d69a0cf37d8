package client

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// KeyValue is the row model backing KeyStore.
type KeyValue struct {
	bun.BaseModel `bun:"table:key_values,alias:kv"`
	Key           string     `bun:"key,pk" json:"key"`
	Value         string     `bun:"value,notnull" json:"value"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// KeyStore is durable Storage backed by a local sqlite database, the desktop
// analog of browser local storage. Per the storage policy every failure is
// logged and swallowed: reads behave as misses, writes degrade to no-ops.
type KeyStore struct {
	db     *bun.DB
	logger Logger
}

// NewKeyStore opens (or creates) the sqlite database at dsn and ensures the
// backing table exists.
func NewKeyStore(ctx context.Context, dsn string) (*KeyStore, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.NewCreateTable().
		Model((*KeyValue)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &KeyStore{db: db, logger: defLogger{}}, nil
}

func (s *KeyStore) WithLogger(l Logger) *KeyStore {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *KeyStore) Close() error {
	return s.db.Close()
}

func (s *KeyStore) Get(key string) (string, bool) {
	kv := new(KeyValue)
	err := s.db.NewSelect().
		Model(kv).
		Where("key = ?", key).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn("keystore get %q: %v", key, err)
		}
		return "", false
	}
	return kv.Value, true
}

func (s *KeyStore) Set(key, value string) {
	now := time.Now()
	kv := &KeyValue{Key: key, Value: value, UpdatedAt: &now}
	_, err := s.db.NewInsert().
		Model(kv).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(context.Background())
	if err != nil {
		s.logger.Warn("keystore set %q: %v", key, err)
	}
}

func (s *KeyStore) Delete(key string) {
	_, err := s.db.NewDelete().
		Model((*KeyValue)(nil)).
		Where("key = ?", key).
		Exec(context.Background())
	if err != nil {
		s.logger.Warn("keystore delete %q: %v", key, err)
	}
}
