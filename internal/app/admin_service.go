package app

import (
	"ragdesk/internal/model"
	"ragdesk/internal/repository"
)

type AdminService struct {
	userRepo    *repository.UserRepository
	docRepo     *repository.DocumentRepository
	chunkRepo   *repository.ChunkRepository
	messageRepo *repository.MessageRepository
}

type DocumentPage struct {
	Items []model.Document `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

type Stats struct {
	Users     int64                          `json:"users"`
	Documents map[model.DocumentStatus]int64 `json:"documents"`
	Chunks    int64                          `json:"chunks"`
	Messages  int64                          `json:"messages"`
}

func NewAdminService(
	userRepo *repository.UserRepository,
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	messageRepo *repository.MessageRepository,
) *AdminService {
	return &AdminService{
		userRepo:    userRepo,
		docRepo:     docRepo,
		chunkRepo:   chunkRepo,
		messageRepo: messageRepo,
	}
}

// ListAllDocuments pages through every owner's documents, newest first.
// page starts at 1.
func (s *AdminService) ListAllDocuments(page, size int) (*DocumentPage, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	items, total, err := s.docRepo.ListAll((page-1)*size, size)
	if err != nil {
		return nil, err
	}
	return &DocumentPage{Items: items, Total: total, Page: page, Size: size}, nil
}

func (s *AdminService) Stats() (*Stats, error) {
	users, err := s.userRepo.Count()
	if err != nil {
		return nil, err
	}
	docs, err := s.docRepo.CountByStatus()
	if err != nil {
		return nil, err
	}
	chunks, err := s.chunkRepo.Count()
	if err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.Count()
	if err != nil {
		return nil, err
	}
	return &Stats{Users: users, Documents: docs, Chunks: chunks, Messages: messages}, nil
}
