package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// SPA serves the built frontend for unmatched routes. Unknown /api paths get
// a JSON 404; any other path falls back to index.html.
func (h *Handler) SPA(c *gin.Context) {
	path := c.Request.URL.Path
	if path == "/api" || strings.HasPrefix(path, "/api/") {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Unknown API endpoint"})
		return
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
		return
	}
	if h.staticDir == "" {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
		return
	}

	// Clean against "/" so the result cannot climb out of staticDir
	rel := filepath.FromSlash(filepath.Clean("/" + path))
	candidate := filepath.Join(h.staticDir, rel)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		c.File(candidate)
		return
	}

	index := filepath.Join(h.staticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
		return
	}
	c.File(index)
}
