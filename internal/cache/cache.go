// Package cache stores raw responses of remote fetches, partitioned by a tag
// so that the entries of one kind of client can be evicted without touching
// the others.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("cache: entry not found")

// Store is the interface the memberful clients cache their responses in.
//
// note: fault injection point
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(key string) ([]byte, error)
	// Set stores value under key and marks it with tag. Setting an existing key
	// replaces both its value and its tag.
	Set(key, tag string, value []byte) error
	// Evict removes every entry marked with tag and returns how many there were.
	Evict(tag string) (int, error)
}

// HashData returns the hex SHA-256 of the canonical JSON serialization of v,
// i.e. with object keys sorted at every level.
func HashData(v any) (string, error) {
	serialized, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// round trip through `any` so that maps (whose keys encoding/json sorts)
	// replace structs and already serialized raw messages
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var generic any
	err = decoder.Decode(&generic)
	if err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
