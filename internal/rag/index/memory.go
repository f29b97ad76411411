package index

import (
	"context"
	"sync"

	"ragdesk/internal/rag"
)

type memoryEntry struct {
	Entry
	seq uint64
}

// Memory is an in-process index for tests and single-node development.
type Memory struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[uint]*memoryEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[uint]*memoryEntry)}
}

func (m *Memory) Upsert(ctx context.Context, entries ...Entry) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		v := append([]float32(nil), e.Vector...)
		if existing, ok := m.entries[e.ChunkID]; ok {
			existing.Entry = e
			existing.Vector = v
			continue
		}
		m.seq++
		stored := &memoryEntry{Entry: e, seq: m.seq}
		stored.Vector = v
		m.entries[e.ChunkID] = stored
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, query []float32, ownerID uint, k int) ([]Candidate, error) {
	ok, err := checkQuery(query, ownerID, k)
	if !ok {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	m.mu.RLock()
	items := make([]ranked, 0, len(m.entries))
	for _, e := range m.entries {
		if e.OwnerID != ownerID || rag.IsZero(e.Vector) {
			continue
		}
		items = append(items, ranked{
			Candidate: Candidate{
				ChunkID:    e.ChunkID,
				DocumentID: e.DocumentID,
				Similarity: rag.Cosine(query, e.Vector),
			},
			seq: e.seq,
		})
	}
	m.mu.RUnlock()

	return candidates(topK(items, k)), nil
}

func (m *Memory) DeleteDocument(ctx context.Context, ownerID, documentID uint) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.OwnerID == ownerID && e.DocumentID == documentID {
			delete(m.entries, id)
		}
	}
	return nil
}

// Len returns the number of stored vectors.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
