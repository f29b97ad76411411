package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ragdesk/internal/app"
	"ragdesk/internal/transport/http/response"
)

type SearchHandler struct {
	searchService *app.SearchService
	chatService   *app.ChatService
	useReranking  bool
}

type SearchRequest struct {
	Query        string `json:"query" binding:"required,max=2000"`
	K            int    `json:"k" binding:"omitempty,min=1,max=50"`
	UseReranking *bool  `json:"use_reranking"`
}

type ExpandRequest struct {
	Query string `json:"query" binding:"required,max=2000"`
}

func NewSearchHandler(searchService *app.SearchService, chatService *app.ChatService, useReranking bool) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		chatService:   chatService,
		useReranking:  useReranking,
	}
}

func (h *SearchHandler) Search(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	useReranking := h.useReranking
	if req.UseReranking != nil {
		useReranking = *req.UseReranking
	}

	results, err := h.searchService.Search(c.Request.Context(), app.SearchInput{
		Query:        req.Query,
		OwnerID:      userID,
		K:            req.K,
		UseReranking: useReranking,
	})
	if err != nil {
		writeServiceError(c, err, "search failed")
		return
	}
	if results == nil {
		results = []app.SearchResult{}
	}
	response.OK(c, gin.H{"results": results})
}

// Expand returns the query variants the chat path would search with. The
// original query is always first.
func (h *SearchHandler) Expand(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req ExpandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	history, err := h.chatService.RecentTurns(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err, "load history failed")
		return
	}
	response.OK(c, gin.H{"queries": h.chatService.ExpandQuery(c.Request.Context(), req.Query, history)})
}
