// Package redis provides a Redis implementation of the registry.Storage interface.
// Records are stored as JSON documents; creates and updates run as Lua scripts so
// the transaction id index and the version check change atomically with the record.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/goregistry/pkg/registry"
)

// Storage implements registry.Storage using Redis
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "registry:")
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{KeyPrefix: "registry:"}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}
	s.loadScripts()
	return s, nil
}

// loadScripts compiles the Lua scripts for atomic writes
func (s *Storage) loadScripts() {
	// KEYS: record, transaction, transaction index
	// ARGV: record JSON, transaction id, registry key
	s.scripts["create"] = redis.NewScript(`
		if redis.call('EXISTS', KEYS[2]) == 1 then
			return 'duplicate'
		end
		if redis.call('EXISTS', KEYS[1]) == 1 then
			return 'exists'
		end
		redis.call('SET', KEYS[1], ARGV[1])
		redis.call('SET', KEYS[2], ARGV[3])
		redis.call('ZADD', KEYS[3], 0, ARGV[2])
		return 'ok'
	`)

	// KEYS: record, new transaction, transaction index
	// ARGV: record JSON, expected version, new transaction id, registry key, transaction key prefix
	s.scripts["update"] = redis.NewScript(`
		local current = redis.call('GET', KEYS[1])
		if not current then
			return 'not_found'
		end
		local cjson = cjson or require('cjson')
		local stored = cjson.decode(current)
		if tonumber(stored.version) ~= tonumber(ARGV[2]) then
			return 'conflict'
		end
		if stored.transaction_id ~= ARGV[3] then
			local owner = redis.call('GET', KEYS[2])
			if owner and owner ~= ARGV[4] then
				return 'duplicate'
			end
			redis.call('DEL', ARGV[5] .. stored.transaction_id)
			redis.call('ZREM', KEYS[3], stored.transaction_id)
			redis.call('SET', KEYS[2], ARGV[4])
			redis.call('ZADD', KEYS[3], 0, ARGV[3])
		end
		redis.call('SET', KEYS[1], ARGV[1])
		return 'ok'
	`)

	// KEYS: record, transaction, transaction index
	// ARGV: record JSON, transaction id, registry key, transaction key prefix
	s.scripts["put"] = redis.NewScript(`
		local current = redis.call('GET', KEYS[1])
		if current then
			local cjson = cjson or require('cjson')
			local stored = cjson.decode(current)
			if stored.transaction_id ~= ARGV[2] then
				redis.call('DEL', ARGV[4] .. stored.transaction_id)
				redis.call('ZREM', KEYS[3], stored.transaction_id)
			end
		end
		redis.call('SET', KEYS[1], ARGV[1])
		redis.call('SET', KEYS[2], ARGV[3])
		redis.call('ZADD', KEYS[3], 0, ARGV[2])
		return 'ok'
	`)
}

// GetRecord implements registry.Storage
func (s *Storage) GetRecord(ctx context.Context, key string) (*registry.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, registry.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// GetRecordByTransaction implements registry.Storage
func (s *Storage) GetRecordByTransaction(ctx context.Context, transactionID string) (*registry.Record, error) {
	key, err := s.client.Get(ctx, s.transactionKey(transactionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, registry.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetRecord(ctx, key)
}

// FindByTransactionPrefix implements registry.Storage.
// The transaction index is a sorted set with equal scores, so a lexicographic
// range returns every transaction id starting with prefix in order.
func (s *Storage) FindByTransactionPrefix(ctx context.Context, prefix string) ([]*registry.Record, error) {
	ids, err := s.client.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "[" + prefix,
		Max: "[" + prefix + "\xff",
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*registry.Record, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	txKeys := make([]string, len(ids))
	for i, id := range ids {
		txKeys[i] = s.transactionKey(id)
	}
	keys, err := s.client.MGet(ctx, txKeys...).Result()
	if err != nil {
		return nil, err
	}

	recordKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if key, ok := k.(string); ok {
			recordKeys = append(recordKeys, s.recordKey(key))
		}
	}
	if len(recordKeys) == 0 {
		return out, nil
	}
	docs, err := s.client.MGet(ctx, recordKeys...).Result()
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		data, ok := doc.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// CreateRecord implements registry.Storage
func (s *Storage) CreateRecord(ctx context.Context, rec *registry.Record) error {
	if rec == nil || rec.Key == "" || rec.TransactionID == "" {
		return fmt.Errorf("%w: key and transaction id are required", registry.ErrInvalidRegistration)
	}

	rec.Version = 1
	data, err := json.Marshal(rec)
	if err != nil {
		rec.Version = 0
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	status, err := s.scripts["create"].Run(ctx, s.client,
		[]string{s.recordKey(rec.Key), s.transactionKey(rec.TransactionID), s.indexKey()},
		string(data), rec.TransactionID, rec.Key,
	).Text()
	if err != nil {
		rec.Version = 0
		return err
	}

	switch status {
	case "ok":
		return nil
	case "duplicate":
		rec.Version = 0
		return registry.ErrDuplicateTransaction
	default:
		rec.Version = 0
		return fmt.Errorf("registry key %q already exists", rec.Key)
	}
}

// UpdateRecord implements registry.Storage
func (s *Storage) UpdateRecord(ctx context.Context, rec *registry.Record) error {
	if rec == nil || rec.Key == "" || rec.TransactionID == "" {
		return fmt.Errorf("%w: key and transaction id are required", registry.ErrInvalidRegistration)
	}

	expected := rec.Version
	rec.Version = expected + 1
	data, err := json.Marshal(rec)
	if err != nil {
		rec.Version = expected
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	status, err := s.scripts["update"].Run(ctx, s.client,
		[]string{s.recordKey(rec.Key), s.transactionKey(rec.TransactionID), s.indexKey()},
		string(data), expected, rec.TransactionID, rec.Key, s.config.KeyPrefix+"transaction:",
	).Text()
	if err != nil {
		rec.Version = expected
		return err
	}

	switch status {
	case "ok":
		return nil
	case "not_found":
		rec.Version = expected
		return registry.ErrRecordNotFound
	case "duplicate":
		rec.Version = expected
		return registry.ErrDuplicateTransaction
	default:
		rec.Version = expected
		return registry.ErrVersionConflict
	}
}

// PutRecord stores rec as-is, keeping its version. It lets the storage act as
// the cache tier of storage/tiered.
func (s *Storage) PutRecord(ctx context.Context, rec *registry.Record) error {
	if rec == nil || rec.Key == "" || rec.TransactionID == "" {
		return fmt.Errorf("%w: key and transaction id are required", registry.ErrInvalidRegistration)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.scripts["put"].Run(ctx, s.client,
		[]string{s.recordKey(rec.Key), s.transactionKey(rec.TransactionID), s.indexKey()},
		string(data), rec.TransactionID, rec.Key, s.config.KeyPrefix+"transaction:",
	).Err()
}

func decodeRecord(data []byte) (*registry.Record, error) {
	var rec registry.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

func (s *Storage) recordKey(key string) string {
	return s.config.KeyPrefix + "record:" + key
}

func (s *Storage) transactionKey(transactionID string) string {
	return s.config.KeyPrefix + "transaction:" + transactionID
}

func (s *Storage) indexKey() string {
	return s.config.KeyPrefix + "transactions"
}

// Close closes the Redis client connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
