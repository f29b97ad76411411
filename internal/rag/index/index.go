// Package index stores chunk vectors per owner and answers owner-scoped
// nearest-neighbour queries by cosine similarity.
package index

import (
	"context"
	"errors"
	"sort"

	"ragdesk/internal/rag"
)

// ContentTypeChunk tags vectors that embed a document chunk.
const ContentTypeChunk = "file_chunk"

var ErrNoOwner = errors.New("search requires an owner")

// Entry is one chunk vector. A zero Vector is stored but never matched.
type Entry struct {
	ChunkID    uint
	DocumentID uint
	OwnerID    uint
	Vector     []float32
}

type Candidate struct {
	ChunkID    uint
	DocumentID uint
	Similarity float64
}

// Index is implemented by every vector backend. Search only ever considers
// vectors whose owner equals ownerID; results are ordered by descending
// similarity with ties in insertion order. Upsert on an existing chunk id
// replaces its vector.
type Index interface {
	Upsert(ctx context.Context, entries ...Entry) error
	Search(ctx context.Context, query []float32, ownerID uint, k int) ([]Candidate, error)
	DeleteDocument(ctx context.Context, ownerID, documentID uint) error
}

// checkQuery validates the common search arguments. ok is false when the
// search trivially has no results.
func checkQuery(query []float32, ownerID uint, k int) (ok bool, err error) {
	if ownerID == 0 {
		return false, rag.NewError(rag.KindScope, rag.StageIndex, ErrNoOwner)
	}
	if k <= 0 || len(query) == 0 || rag.IsZero(query) {
		return false, nil
	}
	return true, nil
}

func unavailable(err error) error {
	return rag.NewError(rag.KindUnavailable, rag.StageIndex, err)
}

type ranked struct {
	Candidate
	seq uint64
}

// topK sorts by similarity, then insertion sequence, and keeps k.
func topK(items []ranked, k int) []ranked {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Similarity != items[j].Similarity {
			return items[i].Similarity > items[j].Similarity
		}
		return items[i].seq < items[j].seq
	})
	if len(items) > k {
		items = items[:k]
	}
	return items
}

func candidates(items []ranked) []Candidate {
	out := make([]Candidate, len(items))
	for i, it := range items {
		out[i] = it.Candidate
	}
	return out
}
