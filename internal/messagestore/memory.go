package messagestore

import (
	"context"
	"sync"

	"github.com/onnwee/dwnd/internal/dwnmodel"
)

// InMemoryStore is a thread-safe, process-local Store implementation, used
// by the unit tests in this repository; cmd/dwnd always uses PostgresStore.
// Grounded on the teacher's InMemoryRepository/InMemoryPostRepository
// shape: a mutex-guarded map (per tenant, keyed by messageCid).
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]*StoredMessage // tenant -> messageCid -> message
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]map[string]*StoredMessage)}
}

func (s *InMemoryStore) Put(_ context.Context, tenant, messageCID string, encoded []byte, indexes map[string]any) error {
	if len(indexes) == 0 {
		return ErrIndexMissingRequiredProperty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[tenant] == nil {
		s.entries[tenant] = make(map[string]*StoredMessage)
	}

	indexesCopy := make(map[string]any, len(indexes))
	for k, v := range indexes {
		indexesCopy[k] = v
	}
	encodedCopy := append([]byte(nil), encoded...)

	s.entries[tenant][messageCID] = &StoredMessage{
		Tenant:     tenant,
		MessageCID: messageCID,
		Encoded:    encodedCopy,
		Indexes:    indexesCopy,
	}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tenant, messageCID string) (*StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.entries[tenant][messageCID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneStoredMessage(msg), nil
}

func (s *InMemoryStore) Query(_ context.Context, tenant string, filters []dwnmodel.FilterSet, opts QueryOptions) ([]*StoredMessage, string, error) {
	s.mu.RLock()
	candidates := make([]candidate, 0, len(s.entries[tenant]))
	byCID := make(map[string]*StoredMessage, len(s.entries[tenant]))
	for cid, msg := range s.entries[tenant] {
		candidates = append(candidates, candidate{messageCID: cid, indexes: msg.Indexes})
		byCID[cid] = msg
	}
	s.mu.RUnlock()

	matched, next := runQuery(candidates, filters, opts)

	out := make([]*StoredMessage, 0, len(matched))
	for _, c := range matched {
		out = append(out, cloneStoredMessage(byCID[c.messageCID]))
	}
	return out, next, nil
}

func (s *InMemoryStore) Delete(_ context.Context, tenant, messageCID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[tenant] == nil {
		return nil
	}
	delete(s.entries[tenant], messageCID)
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]map[string]*StoredMessage)
	return nil
}

func cloneStoredMessage(m *StoredMessage) *StoredMessage {
	out := &StoredMessage{
		Tenant:     m.Tenant,
		MessageCID: m.MessageCID,
		Encoded:    append([]byte(nil), m.Encoded...),
		Indexes:    make(map[string]any, len(m.Indexes)),
	}
	for k, v := range m.Indexes {
		out.Indexes[k] = v
	}
	return out
}
