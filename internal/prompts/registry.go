package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Registry holds embedded prompts by key.
type Registry struct {
	mu       sync.RWMutex
	embedded map[string]EmbeddedPrompt
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{embedded: make(map[string]EmbeddedPrompt)}
}

// Register adds a prompt, computing its hash when unset.
func (r *Registry) Register(p EmbeddedPrompt) {
	if p.Hash == "" {
		p.Hash = HashText(p.Text)
	}
	r.mu.Lock()
	r.embedded[p.Key] = p
	r.mu.Unlock()
}

// Get returns a prompt by key.
func (r *Registry) Get(key string) (EmbeddedPrompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.embedded[key]
	if !ok {
		return EmbeddedPrompt{}, fmt.Errorf("prompt not found: %s", key)
	}
	return p, nil
}

// HashText returns the hex SHA256 of a prompt's text.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
