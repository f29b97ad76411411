package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ragdesk/internal/app"
	"ragdesk/internal/transport/http/response"
)

type AdminHandler struct {
	adminService    *app.AdminService
	documentService *app.DocumentService
}

func NewAdminHandler(adminService *app.AdminService, documentService *app.DocumentService) *AdminHandler {
	return &AdminHandler{adminService: adminService, documentService: documentService}
}

func (h *AdminHandler) ListDocuments(c *gin.Context) {
	page, err1 := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, err2 := strconv.Atoi(c.DefaultQuery("size", "20"))
	if err1 != nil || err2 != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid paging parameters")
		return
	}

	result, err := h.adminService.ListAllDocuments(page, size)
	if err != nil {
		writeServiceError(c, err, "list documents failed")
		return
	}
	response.OK(c, result)
}

func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminService.Stats()
	if err != nil {
		writeServiceError(c, err, "query stats failed")
		return
	}
	response.OK(c, stats)
}

// Reindex re-embeds every stored chunk. It runs in the request; large
// corpora should use cmd/reindex instead.
func (h *AdminHandler) Reindex(c *gin.Context) {
	result, err := h.documentService.ReindexAll(c.Request.Context())
	if err != nil {
		writeServiceError(c, err, "reindex failed")
		return
	}
	response.OK(c, result)
}
