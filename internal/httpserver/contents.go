package httpserver

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onexay/contentvs/internal/content"
	"github.com/onexay/contentvs/internal/service"
	"github.com/onexay/contentvs/internal/storage"
)

type createRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Licence      string `json:"licence"`
	Type         string `json:"type"`
	Introduction string `json:"introduction"`
	Conclusion   string `json:"conclusion"`
}

func (h *handler) createContent(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid payload"))
		return
	}
	row, err := h.svc.CreateContent(c.Request.Context(), currentActor(c), service.CreateInput{
		Title:        req.Title,
		Description:  req.Description,
		Licence:      req.Licence,
		Type:         req.Type,
		Introduction: req.Introduction,
		Conclusion:   req.Conclusion,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, row)
}

func (h *handler) getContent(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	version, err := h.svc.LoadVersion(c.Request.Context(), currentActor(c), id, c.Query("sha"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, version.Content)
}

func (h *handler) getTree(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	version, err := h.svc.LoadVersion(c.Request.Context(), currentActor(c), id, c.Query("sha"))
	if err != nil {
		writeError(c, err)
		return
	}
	hash, err := version.Tree.ComputeHash(content.RootID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sha":      version.Sha,
		"hash":     hash,
		"manifest": version.Tree.Manifest(),
	})
}

type nodeResponse struct {
	Kind          string   `json:"object"`
	Title         string   `json:"title"`
	Slug          string   `json:"slug"`
	PreviousSlugs []string `json:"previous_slugs,omitempty"`
	Path          []string `json:"path"`
	Hash          string   `json:"hash"`
	Introduction  string   `json:"introduction,omitempty"`
	Conclusion    string   `json:"conclusion,omitempty"`
	Text          string   `json:"text,omitempty"`
	Children      []string `json:"children,omitempty"`
}

func (h *handler) getNode(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	version, err := h.svc.LoadVersion(c.Request.Context(), currentActor(c), id, c.Query("sha"))
	if err != nil {
		writeError(c, err)
		return
	}
	vc := version.Tree
	nodeID, err := vc.Resolve(splitPath(c.Query("path"))...)
	if err != nil {
		writeError(c, err)
		return
	}
	n, _ := vc.Node(nodeID)
	resp := nodeResponse{
		Kind:          n.Kind.String(),
		Title:         n.Title,
		Slug:          n.Slug,
		PreviousSlugs: n.PreviousSlugs,
	}
	resp.Path, _ = vc.Path(nodeID)
	resp.Hash, _ = vc.ComputeHash(nodeID)
	if n.Kind == content.KindExtract {
		resp.Text, _ = vc.Text(nodeID)
	} else {
		resp.Introduction, _ = vc.Introduction(nodeID)
		resp.Conclusion, _ = vc.Conclusion(nodeID)
		for _, child := range n.Children {
			cn, _ := vc.Node(child)
			resp.Children = append(resp.Children, cn.Slug)
		}
	}
	c.JSON(http.StatusOK, resp)
}

type topRequest struct {
	LastHash     string `json:"last_hash"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Licence      string `json:"licence"`
	Introduction string `json:"introduction"`
	Conclusion   string `json:"conclusion"`
}

func (h *handler) updateTop(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req topRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid payload"))
		return
	}
	res, err := h.svc.UpdateTop(c.Request.Context(), currentActor(c), id, service.TopInput{
		LastHash:     req.LastHash,
		Title:        req.Title,
		Description:  req.Description,
		Licence:      req.Licence,
		Introduction: req.Introduction,
		Conclusion:   req.Conclusion,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type nodeRequest struct {
	Path         string `json:"path"`
	LastHash     string `json:"last_hash"`
	Title        string `json:"title"`
	Introduction string `json:"introduction"`
	Conclusion   string `json:"conclusion"`
	Text         string `json:"text"`
}

func (h *handler) bindNode(c *gin.Context) (uint, nodeRequest, bool) {
	var req nodeRequest
	id, ok := uintParam(c, "id")
	if !ok {
		return 0, req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid payload"))
		return 0, req, false
	}
	return id, req, true
}

func (h *handler) editResult(c *gin.Context, status int, res *service.EditResult, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, res)
}

func (h *handler) addContainer(c *gin.Context) {
	id, req, ok := h.bindNode(c)
	if !ok {
		return
	}
	res, err := h.svc.AddContainer(c.Request.Context(), currentActor(c), id, splitPath(req.Path), content.ContainerFields{
		Title: req.Title, Introduction: req.Introduction, Conclusion: req.Conclusion,
	})
	h.editResult(c, http.StatusCreated, res, err)
}

func (h *handler) updateContainer(c *gin.Context) {
	id, req, ok := h.bindNode(c)
	if !ok {
		return
	}
	res, err := h.svc.UpdateContainer(c.Request.Context(), currentActor(c), id, splitPath(req.Path), req.LastHash, content.ContainerFields{
		Title: req.Title, Introduction: req.Introduction, Conclusion: req.Conclusion,
	})
	h.editResult(c, http.StatusOK, res, err)
}

func (h *handler) addExtract(c *gin.Context) {
	id, req, ok := h.bindNode(c)
	if !ok {
		return
	}
	res, err := h.svc.AddExtract(c.Request.Context(), currentActor(c), id, splitPath(req.Path), content.ExtractFields{
		Title: req.Title, Text: req.Text,
	})
	h.editResult(c, http.StatusCreated, res, err)
}

func (h *handler) updateExtract(c *gin.Context) {
	id, req, ok := h.bindNode(c)
	if !ok {
		return
	}
	res, err := h.svc.UpdateExtract(c.Request.Context(), currentActor(c), id, splitPath(req.Path), req.LastHash, content.ExtractFields{
		Title: req.Title, Text: req.Text,
	})
	h.editResult(c, http.StatusOK, res, err)
}

func (h *handler) deleteNode(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.DeleteNode(c.Request.Context(), currentActor(c), id, splitPath(c.Query("path")))
	h.editResult(c, http.StatusOK, res, err)
}

type moveRequest struct {
	Path      string `json:"path"`
	Direction string `json:"direction"`
}

func (h *handler) moveNode(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid payload"))
		return
	}
	res, err := h.svc.MoveNode(c.Request.Context(), currentActor(c), id, splitPath(req.Path), req.Direction)
	h.editResult(c, http.StatusOK, res, err)
}

type shaRequest struct {
	Sha string `json:"sha"`
}

func (h *handler) setBeta(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req shaRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, badRequest("invalid payload"))
			return
		}
	}
	row, err := h.svc.SetBeta(c.Request.Context(), currentActor(c), id, req.Sha)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *handler) unsetBeta(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	row, err := h.svc.UnsetBeta(c.Request.Context(), currentActor(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *handler) history(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(c, badRequest("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	commits, err := h.svc.History(c.Request.Context(), currentActor(c), id, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, commits)
}

func (h *handler) refs(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	branches, tags, err := h.svc.Refs(c.Request.Context(), currentActor(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"branches": branches, "tags": tags})
}

func (h *handler) diff(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	from := c.Query("from")
	if from == "" {
		writeError(c, badRequest("from query parameter required"))
		return
	}
	changes, err := h.svc.Diff(c.Request.Context(), currentActor(c), id, from, c.Query("to"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": c.Query("to"), "changes": changes})
}

func (h *handler) exportContent(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	data, name, err := h.svc.Export(c.Request.Context(), currentActor(c), id, c.Query("sha"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/zip", data)
}

func (h *handler) importContent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.importMaxBytes)
	archive, err := formFile(c, "archive")
	if err != nil {
		writeError(c, err)
		return
	}
	if archive == nil {
		writeError(c, badRequest("archive file is required"))
		return
	}
	images, err := formFile(c, "images")
	if err != nil {
		writeError(c, err)
		return
	}
	in := service.ImportInput{Archive: archive, Images: images, LastHash: c.PostForm("last_hash")}
	if raw := strings.TrimSpace(c.PostForm("content_id")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(c, badRequest("content_id must be a positive integer"))
			return
		}
		in.ContentID = uint(id)
	}
	row, err := h.svc.Import(c.Request.Context(), currentActor(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if in.ContentID == 0 {
		status = http.StatusCreated
	}
	c.JSON(status, row)
}

// formFile reads an optional multipart file.
func formFile(c *gin.Context, field string) ([]byte, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, badRequest("unable to read " + field + ": " + err.Error())
	}
	f, err := header.Open()
	if err != nil {
		return nil, badRequest("unable to read " + field)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, badRequest("unable to read " + field)
	}
	return data, nil
}

type commentRequest struct {
	Comment string `json:"comment"`
	Sha     string `json:"sha"`
	IsMajor bool   `json:"is_major"`
}

func bindComment(c *gin.Context) (commentRequest, bool) {
	var req commentRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid payload"))
		return req, false
	}
	return req, true
}

func (h *handler) deleteContent(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	req, ok := bindComment(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteContent(c.Request.Context(), currentActor(c), id, req.Comment); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type authorRequest struct {
	UserID uint `json:"user_id"`
}

func (h *handler) addAuthor(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req authorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid payload"))
		return
	}
	row, err := h.svc.AddAuthor(c.Request.Context(), currentActor(c), id, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *handler) removeAuthor(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	user, ok := uintParam(c, "user")
	if !ok {
		return
	}
	row, err := h.svc.RemoveAuthor(c.Request.Context(), currentActor(c), id, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

type policyRequest struct {
	HotCommitLimit *int   `json:"hotCommitLimit,omitempty"`
	HotDuration    string `json:"hotDuration,omitempty"`
}

type policyResponse struct {
	Name           string `json:"name"`
	HotCommitLimit int    `json:"hotCommitLimit,omitempty"`
	HotDuration    string `json:"hotDuration,omitempty"`
	Locked         bool   `json:"locked"`
}

func makePolicyResponse(policy storage.RetentionPolicy) policyResponse {
	resp := policyResponse{
		Name:           policy.Repo,
		HotCommitLimit: policy.HotCommitLimit,
		Locked:         policy.Locked,
	}
	if policy.HotDuration > 0 {
		resp.HotDuration = policy.HotDuration.String()
	}
	return resp
}

func (h *handler) setRetention(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid payload"))
		return
	}
	var policy storage.RetentionPolicy
	if req.HotCommitLimit != nil {
		policy.HotCommitLimit = *req.HotCommitLimit
	}
	if req.HotDuration != "" {
		d, err := time.ParseDuration(req.HotDuration)
		if err != nil {
			writeError(c, badRequest("invalid hotDuration"))
			return
		}
		policy.HotDuration = d
	}
	policy, err := h.svc.SetRetention(c.Request.Context(), currentActor(c), id, policy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, makePolicyResponse(policy))
}

func (h *handler) getRetention(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	policy, err := h.svc.GetRetention(c.Request.Context(), currentActor(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, makePolicyResponse(policy))
}
