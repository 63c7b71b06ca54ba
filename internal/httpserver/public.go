package httpserver

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/onexay/contentvs/internal/publication"
	"github.com/onexay/contentvs/internal/types"
)

// servePublic serves the online view of a publication. Superseded slugs are
// redirected to the current one.
func (h *handler) servePublic(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	slug := c.Param("slug")
	file := strings.TrimPrefix(c.Param("file"), "/")
	target, err := h.svc.ResolvePublic(c.Request.Context(), currentActor(c), id, slug, publication.FormatHTML)
	if err != nil {
		writeError(c, err)
		return
	}
	if target.RedirectSlug != "" {
		c.Redirect(http.StatusMovedPermanently, fmt.Sprintf("/public/%d/%s/%s", id, target.RedirectSlug, file))
		return
	}

	name, err := publicFile(filepath.Dir(target.File), file)
	if err != nil {
		writeError(c, err)
		return
	}
	c.File(name)
}

// publicFile maps a request path below root, refusing anything outside of
// it and the extras directory.
func publicFile(root, rel string) (string, error) {
	if rel == "" {
		rel = "index.html"
	}
	clean := path.Clean("/" + rel)[1:]
	if clean == "" || strings.HasPrefix(clean, publication.ExtraDir+"/") || clean == publication.ExtraDir {
		return "", &types.NotFoundError{Resource: "page", Key: rel}
	}
	name := filepath.Join(root, filepath.FromSlash(clean))
	if r, err := filepath.Rel(root, name); err != nil || strings.HasPrefix(r, "..") {
		return "", &types.NotFoundError{Resource: "page", Key: rel}
	}
	info, err := os.Stat(name)
	if err != nil || info.IsDir() {
		return "", &types.NotFoundError{Resource: "page", Key: rel}
	}
	return name, nil
}

// downloadPublic sends one artifact of a publication as an attachment.
func (h *handler) downloadPublic(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	slug, format := c.Param("slug"), strings.ToLower(c.Param("format"))
	target, err := h.svc.ResolvePublic(c.Request.Context(), currentActor(c), id, slug, format)
	if err != nil {
		writeError(c, err)
		return
	}
	if target.RedirectSlug != "" {
		c.Redirect(http.StatusMovedPermanently, fmt.Sprintf("/download/%d/%s/%s", id, target.RedirectSlug, format))
		return
	}
	c.FileAttachment(target.File, filepath.Base(target.File))
}
