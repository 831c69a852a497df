package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"simulator-backend/internal/shared/server/respond"
	localstore "simulator-backend/internal/shared/storage/object/local"
)

// registerFileRoutes serves objects of the local store behind signed tokens.
func registerFileRoutes(rg *gin.RouterGroup, store *localstore.Store) {
	rg.GET(strings.TrimPrefix(localstore.FilesRoute, "/api/v1")+"/*key", fileHandler(store))
}

func fileHandler(store *localstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		if err := store.Verify(key, c.Query("token")); err != nil {
			respond.Error(c, http.StatusForbidden, "forbidden", "invalid or expired file link", nil)
			return
		}
		rc, err := store.Open(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to open file", nil)
			return
		}
		defer rc.Close()

		contentType := mime.TypeByExtension(path.Ext(key))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Header("Content-Type", contentType)
		c.Header("Cache-Control", "private, max-age=300")
		c.Status(http.StatusOK)
		_, _ = io.Copy(c.Writer, rc)
	}
}
