package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onexay/contentvs/internal/service"
)

func (h *handler) askValidation(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	req, ok := bindComment(c)
	if !ok {
		return
	}
	v, err := h.svc.Ask(c.Request.Context(), currentActor(c), id, req.Sha, req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *handler) listValidations(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.ListValidations(c.Request.Context(), currentActor(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) moderationQueue(c *gin.Context) {
	list, err := h.svc.ModerationQueue(c.Request.Context(), currentActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) reserve(c *gin.Context) {
	vid, ok := uintParam(c, "vid")
	if !ok {
		return
	}
	v, err := h.svc.Reserve(c.Request.Context(), currentActor(c), vid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *handler) accept(c *gin.Context) {
	vid, ok := uintParam(c, "vid")
	if !ok {
		return
	}
	req, ok := bindComment(c)
	if !ok {
		return
	}
	published, err := h.svc.Accept(c.Request.Context(), currentActor(c), vid, service.AcceptInput{
		Comment: req.Comment,
		IsMajor: req.IsMajor,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, published)
}

func (h *handler) reject(c *gin.Context) {
	vid, ok := uintParam(c, "vid")
	if !ok {
		return
	}
	req, ok := bindComment(c)
	if !ok {
		return
	}
	v, err := h.svc.Reject(c.Request.Context(), currentActor(c), vid, req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *handler) cancel(c *gin.Context) {
	vid, ok := uintParam(c, "vid")
	if !ok {
		return
	}
	req, ok := bindComment(c)
	if !ok {
		return
	}
	v, err := h.svc.Cancel(c.Request.Context(), currentActor(c), vid, req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *handler) revoke(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	req, ok := bindComment(c)
	if !ok {
		return
	}
	v, err := h.svc.Revoke(c.Request.Context(), currentActor(c), id, req.Comment, req.Sha)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *handler) messages(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	posts, err := h.svc.ModerationMessages(c.Request.Context(), currentActor(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (h *handler) publications(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	rows, err := h.svc.Publications(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
