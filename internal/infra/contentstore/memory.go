package contentstore

import (
	"context"
	"fmt"
	"sync"

	"datatoken/internal/domain"
	"datatoken/internal/usecase"
	"datatoken/pkg/canonical"
)

// Locator addresses a JSON document by the checksum of its canonical form,
// so equivalent encodings share one locator.
func Locator(document []byte) (string, error) {
	sum, err := canonical.ChecksumJSON(document)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	return sum, nil
}

type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, document []byte) (string, error) {
	locator, err := Locator(document)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[locator] = append([]byte(nil), document...)
	return locator, nil
}

func (m *Memory) Get(ctx context.Context, locator string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.entries[locator]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

// Replace overwrites the bytes stored under locator without re-addressing
// them.
func (m *Memory) Replace(locator string, document []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[locator] = append([]byte(nil), document...)
}

var _ usecase.ContentStore = (*Memory)(nil)
