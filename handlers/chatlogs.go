package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LaithMimi/blendarchatbot2/services"
)

// ListChatLogs handles GET /api/chatlogs
func (h *Handler) ListChatLogs(c *gin.Context) {
	q, err := services.ParseChatLogQuery(
		c.Query("page"),
		c.Query("pageSize"),
		c.Query("searchTerm"),
		c.Query("userId"),
		c.Query("userEmail"),
		c.Query("dateFrom"),
		c.Query("dateTo"),
	)
	if err != nil {
		h.respondError(c, err)
		return
	}

	page, err := h.chatLogs.List(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetChatLog handles GET /api/chatlogs/:sessionId
func (h *Handler) GetChatLog(c *gin.Context) {
	session, err := h.chatLogs.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// DeleteChatLog handles DELETE /api/chatlogs/:sessionId
func (h *Handler) DeleteChatLog(c *gin.Context) {
	if err := h.chatLogs.Delete(c.Request.Context(), c.Param("sessionId")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteAllChatLogs handles DELETE /api/chatlogs
func (h *Handler) DeleteAllChatLogs(c *gin.Context) {
	n, err := h.chatLogs.DeleteAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}
