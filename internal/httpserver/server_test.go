package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/onexay/contentvs/internal/models"
	"github.com/onexay/contentvs/internal/publication"
	"github.com/onexay/contentvs/internal/service"
	"github.com/onexay/contentvs/internal/storage"
)

type client struct {
	t       *testing.T
	handler http.Handler
}

type identity struct {
	id    string
	roles string
}

var (
	anonymous = identity{}
	author    = identity{id: "1"}
	staff     = identity{id: "10", roles: "staff"}
)

func newClient(t *testing.T) *client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))

	svc, err := service.New(service.Deps{
		DB:           db,
		Store:        storage.NewMemoryStore(storage.Options{}),
		Pipeline:     publication.NewPipeline(t.TempDir(), publication.DefaultRegistry(nil), nil),
		ExtraFormats: []string{"md", "zip"},
	})
	require.NoError(t, err)
	return &client{t: t, handler: NewRouter(svc, Options{})}
}

func (cl *client) do(who identity, method, target string, body any) *httptest.ResponseRecorder {
	cl.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(cl.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cl.identify(req, who)
	rec := httptest.NewRecorder()
	cl.handler.ServeHTTP(rec, req)
	return rec
}

func (cl *client) identify(req *http.Request, who identity) {
	if who.id != "" {
		req.Header.Set(headerAuthorID, who.id)
		req.Header.Set(headerAuthorName, "user-"+who.id)
	}
	if who.roles != "" {
		req.Header.Set(headerRoles, who.roles)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// seed creates "Foo" > "Bar" > "Baz" and returns its id.
func (cl *client) seed() uint {
	cl.t.Helper()
	rec := cl.do(author, http.MethodPost, "/api/v1/contents", map[string]string{"title": "Foo", "type": "TUTORIAL"})
	require.Equal(cl.t, http.StatusCreated, rec.Code, rec.Body.String())
	row := decode[models.PublishableContent](cl.t, rec)

	rec = cl.do(author, http.MethodPost, fmt.Sprintf("/api/v1/contents/%d/containers", row.ID), map[string]string{"title": "Bar"})
	require.Equal(cl.t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = cl.do(author, http.MethodPost, fmt.Sprintf("/api/v1/contents/%d/extracts", row.ID), map[string]string{"path": "bar", "title": "Baz", "text": "Hello **world**"})
	require.Equal(cl.t, http.StatusCreated, rec.Code, rec.Body.String())
	return row.ID
}

func (cl *client) publish(id uint) {
	cl.t.Helper()
	rec := cl.do(author, http.MethodPost, fmt.Sprintf("/api/v1/contents/%d/validations", id), map[string]string{"comment": "please"})
	require.Equal(cl.t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decode[models.Validation](cl.t, rec)

	rec = cl.do(staff, http.MethodPost, fmt.Sprintf("/api/v1/validations/%d/reserve", v.ID), nil)
	require.Equal(cl.t, http.StatusOK, rec.Code, rec.Body.String())
	rec = cl.do(staff, http.MethodPost, fmt.Sprintf("/api/v1/validations/%d/accept", v.ID), map[string]any{"comment": "ok", "is_major": true})
	require.Equal(cl.t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	cl := newClient(t)
	rec := cl.do(anonymous, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestErrorMapping(t *testing.T) {
	cl := newClient(t)
	id := cl.seed()

	rec := cl.do(anonymous, http.MethodPost, "/api/v1/contents", map[string]string{"title": "Foo"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = cl.do(identity{id: "abc"}, http.MethodGet, "/api/v1/contents/1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = cl.do(author, http.MethodGet, "/api/v1/contents/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = cl.do(author, http.MethodPut, fmt.Sprintf("/api/v1/contents/%d/extracts", id), map[string]string{"path": "bar/baz", "last_hash": "stale", "title": "Baz"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = cl.do(author, http.MethodPost, fmt.Sprintf("/api/v1/contents/%d/validations", id), map[string]string{"comment": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Contains(t, body["error"], "comment")
}

func TestEditWithHashRoundTrip(t *testing.T) {
	cl := newClient(t)
	id := cl.seed()

	rec := cl.do(author, http.MethodGet, fmt.Sprintf("/api/v1/contents/%d/node?path=bar/baz", id), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	node := decode[nodeResponse](t, rec)
	assert.Equal(t, "extract", node.Kind)
	assert.Equal(t, "Hello **world**", node.Text)
	assert.Equal(t, []string{"bar", "baz"}, node.Path)

	rec = cl.do(author, http.MethodPut, fmt.Sprintf("/api/v1/contents/%d/extracts", id), map[string]string{"path": "bar/baz", "last_hash": node.Hash, "title": "Baz", "text": "Updated"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[service.EditResult](t, rec)
	assert.NotEqual(t, node.Hash, res.Hash)

	rec = cl.do(anonymous, http.MethodGet, fmt.Sprintf("/api/v1/contents/%d/tree", id), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = cl.do(author, http.MethodGet, fmt.Sprintf("/api/v1/contents/%d/history?limit=2", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 2)
}

func TestPublicationIsServed(t *testing.T) {
	cl := newClient(t)
	id := cl.seed()
	cl.publish(id)

	rec := cl.do(anonymous, http.MethodGet, fmt.Sprintf("/public/%d/foo/", id), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Foo")

	rec = cl.do(anonymous, http.MethodGet, fmt.Sprintf("/public/%d/foo/bar.html", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<strong>world</strong>")

	rec = cl.do(anonymous, http.MethodGet, fmt.Sprintf("/public/%d/foo/%s/foo.md", id, publication.ExtraDir), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = cl.do(anonymous, http.MethodGet, fmt.Sprintf("/download/%d/foo/zip", id), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = cl.do(anonymous, http.MethodGet, fmt.Sprintf("/download/%d/foo/md", id), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = cl.do(author, http.MethodGet, fmt.Sprintf("/download/%d/foo/md", id), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "foo.md")
}

func TestRenamedPublicationRedirects(t *testing.T) {
	cl := newClient(t)
	id := cl.seed()
	cl.publish(id)

	rec := cl.do(author, http.MethodGet, fmt.Sprintf("/api/v1/contents/%d/tree", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decode[map[string]any](t, rec)
	rec = cl.do(author, http.MethodPut, fmt.Sprintf("/api/v1/contents/%d", id), map[string]string{"last_hash": tree["hash"].(string), "title": "Foo v2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cl.publish(id)

	rec = cl.do(anonymous, http.MethodGet, fmt.Sprintf("/public/%d/foo/bar.html", id), nil)
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, fmt.Sprintf("/public/%d/foo-v2/bar.html", id), rec.Header().Get("Location"))
}

func TestRevokeOverHTTP(t *testing.T) {
	cl := newClient(t)
	id := cl.seed()
	cl.publish(id)

	rec := cl.do(author, http.MethodPost, fmt.Sprintf("/api/v1/contents/%d/revoke", id), map[string]string{"comment": "mine"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = cl.do(staff, http.MethodPost, fmt.Sprintf("/api/v1/contents/%d/revoke", id), map[string]string{"comment": "bad"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.ValidationPending, decode[models.Validation](t, rec).Status)

	rec = cl.do(anonymous, http.MethodGet, fmt.Sprintf("/public/%d/foo/", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = cl.do(staff, http.MethodGet, "/api/v1/validations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Validation](t, rec), 1)
}

func TestRefsEndpoint(t *testing.T) {
	cl := newClient(t)
	id := cl.seed()
	cl.publish(id)

	rec := cl.do(anonymous, http.MethodGet, fmt.Sprintf("/api/v1/contents/%d/refs", id), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = cl.do(author, http.MethodGet, fmt.Sprintf("/api/v1/contents/%d/refs", id), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	refs := decode[struct {
		Branches []struct {
			Name string `json:"name"`
		} `json:"branches"`
		Tags []struct {
			Name string `json:"name"`
		} `json:"tags"`
	}](t, rec)
	names := make([]string, 0, len(refs.Branches))
	for _, b := range refs.Branches {
		names = append(names, b.Name)
	}
	assert.Contains(t, names, "draft")
	assert.Contains(t, names, "public")
	require.Len(t, refs.Tags, 1)
	assert.Contains(t, refs.Tags[0].Name, "public-")
}

func TestImportAndExport(t *testing.T) {
	cl := newClient(t)
	id := cl.seed()

	rec := cl.do(author, http.MethodGet, fmt.Sprintf("/api/v1/contents/%d/export", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	archive := rec.Body.Bytes()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("archive", "foo.zip")
	require.NoError(t, err)
	_, err = part.Write(archive)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/contents/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	cl.identify(req, author)
	rec = httptest.NewRecorder()
	cl.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "foo-1", decode[models.PublishableContent](t, rec).Slug)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/contents/import", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	cl.identify(req, author)
	rec = httptest.NewRecorder()
	cl.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetentionEndpoints(t *testing.T) {
	cl := newClient(t)
	id := cl.seed()

	rec := cl.do(author, http.MethodPut, fmt.Sprintf("/api/v1/contents/%d/retention", id), map[string]any{"hotCommitLimit": 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = cl.do(staff, http.MethodPut, fmt.Sprintf("/api/v1/contents/%d/retention", id), map[string]any{"hotCommitLimit": 5, "hotDuration": "1h"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	policy := decode[policyResponse](t, rec)
	assert.Equal(t, 5, policy.HotCommitLimit)
	assert.Equal(t, "1h0m0s", policy.HotDuration)
	assert.True(t, policy.Locked)

	rec = cl.do(staff, http.MethodPut, fmt.Sprintf("/api/v1/contents/%d/retention", id), map[string]any{"hotDuration": "soon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = cl.do(author, http.MethodGet, fmt.Sprintf("/api/v1/contents/%d/retention", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decode[policyResponse](t, rec).HotCommitLimit)
}

func TestPublicFileStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, publication.ExtraDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, publication.ExtraDir, "a.md"), []byte("x"), 0o644))

	name, err := publicFile(root, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "index.html"), name)

	name, err = publicFile(root, "../index.html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "index.html"), name)

	for _, rel := range []string{"../../etc/passwd", publication.ExtraDir + "/a.md", publication.ExtraDir, "missing.html"} {
		_, err := publicFile(root, rel)
		assert.Error(t, err, rel)
	}
}
