package auth

import (
	"errors"
	"sync/atomic"
)

// ErrNoKeys indicates a pool was built without keys.
var ErrNoKeys = errors.New("no API keys configured")

// KeyPool hands out keys round-robin. It is safe for concurrent use.
type KeyPool struct {
	keys []string
	next atomic.Uint64
}

// NewKeyPool creates a pool over a copy of keys.
func NewKeyPool(keys []string) (*KeyPool, error) {
	keys = cleanKeys(keys)
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return &KeyPool{keys: keys}, nil
}

// Next returns the next key and its 1-based position in the pool.
func (p *KeyPool) Next() (key string, position int) {
	n := p.next.Add(1) - 1
	idx := int(n % uint64(len(p.keys)))
	return p.keys[idx], idx + 1
}

// Len returns the number of keys in the pool.
func (p *KeyPool) Len() int {
	return len(p.keys)
}
