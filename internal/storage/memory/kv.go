// Package memory provides an in-process string key-value store.
package memory

import (
	"context"
	"sync"
)

// KV is a mutex-guarded map. The zero value is ready to use.
type KV struct {
	mu   sync.RWMutex
	data map[string]string
}

// New returns an empty KV.
func New() *KV { return &KV{} }

func (kv *KV) Get(_ context.Context, key string) (string, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	v, ok := kv.data[key]
	return v, ok, nil
}

func (kv *KV) Set(_ context.Context, key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.data == nil {
		kv.data = make(map[string]string)
	}
	kv.data[key] = value
	return nil
}

func (kv *KV) Remove(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, key)
	return nil
}
