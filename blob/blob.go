package blob

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hivelane/outreach/core"
)

// Store holds document bytes by ref.
type Store interface {
	Put(ctx context.Context, ref string, data []byte, contentType string) error
	Get(ctx context.Context, ref string) (data []byte, contentType string, err error)
	List(ctx context.Context, prefix string) ([]string, error)
}

type object struct {
	data        []byte
	contentType string
}

// Memory is an in-process Store for tests and local runs.
type Memory struct {
	mu      sync.Mutex
	objects map[string]object
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty blob store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]object)}
}

// Put stores data under ref, replacing any previous object.
func (m *Memory) Put(_ context.Context, ref string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[ref] = object{data: cp, contentType: contentType}
	return nil
}

// Get returns the object at ref or core.NotFoundError.
func (m *Memory) Get(_ context.Context, ref string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[ref]
	if !ok {
		return nil, "", &core.NotFoundError{Kind: "blob", CampaignID: ref}
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	return cp, obj.contentType, nil
}

// List returns refs starting with prefix, sorted.
func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for ref := range m.objects {
		if strings.HasPrefix(ref, prefix) {
			out = append(out, ref)
		}
	}
	sort.Strings(out)
	return out, nil
}
