package api

import (
	"github.com/ssargent/cabinetdb/pkg/engine"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// IncrementRequest is the body of POST /kv/{key}/increment. Without Default
// or Create a missing key is a 404.
type IncrementRequest struct {
	Delta   int64  `json:"delta"`
	Default *int64 `json:"default,omitempty"`
	Create  bool   `json:"create,omitempty"`
}

// IncrementResponse carries the counter value after an increment.
type IncrementResponse struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

// KeysResponse lists matched keys.
type KeysResponse struct {
	Keys []string `json:"keys"`
}

// StatusResponse describes the open database.
type StatusResponse struct {
	Path     string            `json:"path"`
	Type     string            `json:"type"`
	Count    int64             `json:"count"`
	Size     int64             `json:"size"`
	Encoding string            `json:"encoding"`
	Status   map[string]string `json:"status"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind   string
	Port   int
	APIKey string
	// MaxValueSize caps PUT bodies; zero means 1 MiB.
	MaxValueSize int64
}

// KVStore is the part of *store.DB the API serves.
type KVStore interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Append(key, value []byte) error
	Replace(key, value []byte) (bool, error)
	PutIfAbsent(key, value []byte) (bool, error)
	Remove(key []byte) (bool, error)

	IncrementString(key string, delta int64) (int64, error)
	IncrementOrSetString(key string, delta int64) (int64, error)
	IncrementOrSetDefaultString(key string, delta, def int64) (int64, error)

	MatchPrefixString(prefix string) ([]string, error)
	MatchPrefixStringLimit(prefix string, limit int64) ([]string, error)
	MatchRegexString(pattern string) ([]string, error)
	MatchRegexStringLimit(pattern string, limit int64) ([]string, error)
	MatchSimilarString(origin string, distance int) ([]string, error)
	MatchSimilarStringLimit(origin string, distance int, limit int64) ([]string, error)

	Count() (int64, error)
	SizeInBytes() (int64, error)
	Status() (map[string]string, error)
	Path() (string, error)
	Type() (engine.Type, error)
	Encoding() string
}
