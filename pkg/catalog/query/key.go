// Package query implements the shared query cache that sits between the
// catalog client's HTTP operations and its reactive consumers. It provides
// canonical cache keys, request coalescing, staleness tracking, prefix
// invalidation, and poll scheduling for long-running server jobs.
package query

import (
	"bytes"

	"github.com/anand-gl/jsoncanonicalizer"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Key identifies a logical request as an ordered sequence of segments.
// The leading segments name the domain and operation; the optional trailing
// segment is the canonical JSON encoding of the request parameters. A Key is
// also a prefix path, so invalidation can target a whole subtree by supplying
// only the leading segments.
type Key []string

// BuildKey canonicalizes a (domain, operation, params) triple into a stable
// Key. Object parameters are recursively sorted by key name, absent fields
// are dropped, explicit nulls are preserved, and arrays keep caller order.
// Two semantically identical parameter values always produce the same Key
// regardless of construction order. BuildKey performs no network or mutation
// side effects.
func BuildKey(domain string, operation string, params any) (Key, error) {
	key := Key{domain}
	if operation != "" {
		key = append(key, operation)
	}
	return key.WithParams(params)
}

// WithParams returns a copy of the key extended with the canonical JSON
// encoding of params as its final segment. A nil params leaves the key
// unchanged.
func (k Key) WithParams(params any) (Key, error) {
	key := append(Key(nil), k...)
	if params == nil {
		return key, nil
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	// nil pointers and empty optionals marshal to null; treat them as absent
	if bytes.Equal(raw, []byte("null")) {
		return key, nil
	}

	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, err
	}
	return append(key, string(canonical)), nil
}

// MustBuildKey is BuildKey for parameters known to be marshalable.
// It panics on error and is intended for literal keys in invalidation tables.
func MustBuildKey(domain string, operation string, params any) Key {
	key, err := BuildKey(domain, operation, params)
	if err != nil {
		panic(err)
	}
	return key
}

// HasPrefix reports whether the key begins with all segments of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, seg := range prefix {
		if k[i] != seg {
			return false
		}
	}
	return true
}

// Equal reports structural equality of two keys.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

// String returns the canonical string form of the key, used as the map key
// inside the store.
func (k Key) String() string {
	b, err := json.Marshal([]string(k))
	if err != nil {
		// segments are plain strings; marshaling cannot fail
		panic(err)
	}
	return string(b)
}
