package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragdesk/internal/metrics"
	"ragdesk/internal/model"
	"ragdesk/internal/rag"
	"ragdesk/internal/rag/chunk"
	"ragdesk/internal/rag/embed"
	"ragdesk/internal/rag/extract"
	"ragdesk/internal/rag/index"
	"ragdesk/internal/repository"
	"ragdesk/internal/storage"
)

const (
	DefaultMaxUploadBytes = 10 << 20
	reindexBatchSize      = 64
)

// TextEmbedder is the embedding stage as the services use it.
type TextEmbedder interface {
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) (embed.Batch, error)
}

type UploadInput struct {
	OwnerID  uint
	Filename string
	Content  []byte
	MIMEType string
}

// UploadResult is the outcome of processing one document. A failed pipeline
// is reported here, not as an error.
type UploadResult struct {
	DocumentID uint                 `json:"document_id"`
	Status     model.DocumentStatus `json:"status"`
	ChunkCount int                  `json:"chunk_count"`
	Degraded   int                  `json:"degraded,omitempty"`
	Error      string               `json:"error,omitempty"`
}

type ReindexResult struct {
	Chunks   int `json:"chunks"`
	Degraded int `json:"degraded"`
}

type DocumentService struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	blobs     storage.BlobStore
	extractor *extract.Extractor
	chunker   *chunk.Chunker
	embedder  TextEmbedder
	index     index.Index
	maxBytes  int64
	log       *zap.Logger
}

func NewDocumentService(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	blobs storage.BlobStore,
	extractor *extract.Extractor,
	chunker *chunk.Chunker,
	embedder TextEmbedder,
	idx index.Index,
	maxBytes int64,
	log *zap.Logger,
) *DocumentService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		blobs:     blobs,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     idx,
		maxBytes:  maxBytes,
		log:       log,
	}
}

// ProcessUpload validates the file, stores it and runs extract, chunk, embed
// and index. Boundary rejections return an error before anything is stored.
// Once the document record exists, pipeline failures leave it failed with the
// cause recorded and are reported in the result; only storage and index
// outages are returned as errors.
func (s *DocumentService) ProcessUpload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	filename := strings.TrimSpace(input.Filename)
	if input.OwnerID == 0 || filename == "" {
		return nil, ErrInvalidInput
	}
	if len(input.Content) == 0 {
		return nil, ErrEmptyUpload
	}
	if int64(len(input.Content)) > s.maxBytes {
		return nil, ErrPayloadTooLarge
	}
	mimeType := extract.DetectType(filename, input.MIMEType, input.Content)
	if !s.extractor.Allowed(mimeType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}

	key, err := s.blobs.Put(ctx, input.OwnerID, filename, input.Content)
	if err != nil {
		return nil, err
	}
	doc := &model.Document{
		OwnerID:     input.OwnerID,
		Name:        filename,
		ContentType: mimeType,
		Size:        int64(len(input.Content)),
		BlobKey:     key,
		Status:      model.StatusUploaded,
	}
	if err := s.docRepo.Create(doc); err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.log.Warn("remove orphan blob failed", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}

	return s.process(ctx, doc, input.Content)
}

// Reprocess restarts the pipeline from extraction using the stored file.
func (s *DocumentService) Reprocess(ctx context.Context, ownerID, documentID uint) (*UploadResult, error) {
	doc, err := s.GetDocument(ownerID, documentID)
	if err != nil {
		return nil, err
	}
	content, err := s.blobs.Get(ctx, doc.BlobKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.fail(ctx, doc, fmt.Errorf("stored file is missing"), nil)
		}
		return nil, err
	}
	if err := s.removeDerived(ctx, doc); err != nil {
		return nil, err
	}
	return s.process(ctx, doc, content)
}

func (s *DocumentService) process(ctx context.Context, doc *model.Document, content []byte) (*UploadResult, error) {
	log := s.log.With(zap.Uint("document_id", doc.ID), zap.Uint("owner_id", doc.OwnerID))
	if err := s.docRepo.UpdateStatus(doc.ID, model.StatusProcessing, "", 0); err != nil {
		return nil, err
	}

	sections, err := s.extractor.Extract(ctx, extract.Input{
		Filename: doc.Name,
		MIMEType: doc.ContentType,
		Content:  content,
	})
	if err != nil {
		return s.fail(ctx, doc, err, nil)
	}

	started := time.Now()
	records := chunk.Collect(s.chunker.Sections(sections))
	metrics.ObserveStage(string(rag.StageChunk), started)

	chunks := make([]model.Chunk, len(records))
	texts := make([]string, len(records))
	for i, r := range records {
		chunks[i] = model.Chunk{
			DocumentID: doc.ID,
			OwnerID:    doc.OwnerID,
			Index:      r.Index,
			Content:    r.Content,
			Locator:    r.Locator,
		}
		texts[i] = r.Content
	}
	if err := s.chunkRepo.CreateBatch(chunks); err != nil {
		return s.fail(ctx, doc, err, err)
	}

	batch, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.Warn("some chunks were embedded with the zero vector", zap.Int("degraded", len(batch.Failed)), zap.Error(err))
	}

	entries := make([]index.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = index.Entry{
			ChunkID:    c.ID,
			DocumentID: doc.ID,
			OwnerID:    doc.OwnerID,
			Vector:     batch.Vectors[i],
		}
	}
	if err := s.index.Upsert(ctx, entries...); err != nil {
		return s.fail(ctx, doc, err, err)
	}

	if err := s.docRepo.UpdateStatus(doc.ID, model.StatusProcessed, "", len(chunks)); err != nil {
		return s.fail(ctx, doc, err, err)
	}
	metrics.DocumentProcessed(string(model.StatusProcessed))
	log.Info("document processed", zap.Int("chunks", len(chunks)), zap.Int("degraded", len(batch.Failed)))

	return &UploadResult{
		DocumentID: doc.ID,
		Status:     model.StatusProcessed,
		ChunkCount: len(chunks),
		Degraded:   len(batch.Failed),
	}, nil
}

// fail removes partial chunks and vectors and records cause on the document.
// hard is returned to the caller alongside the result when not nil.
func (s *DocumentService) fail(ctx context.Context, doc *model.Document, cause, hard error) (*UploadResult, error) {
	s.log.Warn("document processing failed",
		zap.Uint("document_id", doc.ID),
		zap.String("kind", rag.KindOf(cause).String()),
		zap.Error(cause),
	)
	if err := s.removeDerived(ctx, doc); err != nil {
		s.log.Error("cleanup after failure failed", zap.Uint("document_id", doc.ID), zap.Error(err))
	}
	if err := s.docRepo.UpdateStatus(doc.ID, model.StatusFailed, cause.Error(), 0); err != nil {
		return nil, errors.Join(hard, err)
	}
	metrics.DocumentProcessed(string(model.StatusFailed))

	return &UploadResult{
		DocumentID: doc.ID,
		Status:     model.StatusFailed,
		Error:      cause.Error(),
	}, hard
}

func (s *DocumentService) removeDerived(ctx context.Context, doc *model.Document) error {
	if err := s.index.DeleteDocument(ctx, doc.OwnerID, doc.ID); err != nil {
		return err
	}
	return s.chunkRepo.DeleteByDocumentID(doc.ID)
}

func (s *DocumentService) ListDocuments(ownerID uint) ([]model.Document, error) {
	if ownerID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docRepo.ListByOwnerID(ownerID)
}

// GetDocument returns ErrDocumentNotFound for documents of other owners.
func (s *DocumentService) GetDocument(ownerID, documentID uint) (*model.Document, error) {
	if ownerID == 0 || documentID == 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndOwnerID(documentID, ownerID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// DeleteDocument removes the document with its chunks, vectors and file.
func (s *DocumentService) DeleteDocument(ctx context.Context, ownerID, documentID uint) error {
	doc, err := s.GetDocument(ownerID, documentID)
	if err != nil {
		return err
	}
	if err := s.removeDerived(ctx, doc); err != nil {
		return err
	}
	if err := s.docRepo.DeleteByIDAndOwnerID(doc.ID, ownerID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, doc.BlobKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("delete blob failed", zap.String("key", doc.BlobKey), zap.Error(err))
	}
	return nil
}

// ReindexAll re-embeds every stored chunk and overwrites its vector. It is
// safe to run repeatedly, for example after changing the embedding model.
func (s *DocumentService) ReindexAll(ctx context.Context) (*ReindexResult, error) {
	result := &ReindexResult{}
	err := s.chunkRepo.EachBatch(reindexBatchSize, func(chunks []model.Chunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		batch, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			s.log.Warn("reindex batch degraded", zap.Int("degraded", len(batch.Failed)), zap.Error(err))
		}
		entries := make([]index.Entry, len(chunks))
		for i, c := range chunks {
			entries[i] = index.Entry{
				ChunkID:    c.ID,
				DocumentID: c.DocumentID,
				OwnerID:    c.OwnerID,
				Vector:     batch.Vectors[i],
			}
		}
		if err := s.index.Upsert(ctx, entries...); err != nil {
			return err
		}
		result.Chunks += len(chunks)
		result.Degraded += len(batch.Failed)
		return nil
	})
	if err != nil {
		return result, err
	}
	s.log.Info("reindex finished", zap.Int("chunks", result.Chunks), zap.Int("degraded", result.Degraded))
	return result, nil
}
