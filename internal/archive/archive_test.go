package archive

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onexay/contentvs/internal/content"
	"github.com/onexay/contentvs/internal/types"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExportImportRoundTrip(t *testing.T) {
	vc, err := content.New(content.ContainerFields{Title: "Foo", Introduction: "intro"}, content.Meta{Type: content.TypeTutorial}, content.DefaultOptions())
	require.NoError(t, err)
	bar, err := vc.AddContainer(content.RootID, content.ContainerFields{Title: "Bar"})
	require.NoError(t, err)
	_, err = vc.AddExtract(bar, content.ExtractFields{Title: "Baz", Text: "Hello"})
	require.NoError(t, err)
	require.NoError(t, vc.SetAsset("pic.png", []byte{1, 2, 3}))

	data, err := Export(vc)
	require.NoError(t, err)

	imported, err := Import(data, nil, content.DefaultOptions())
	require.NoError(t, err)

	root, err := imported.Node(content.RootID)
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	child, _ := imported.Node(root.Children[0])
	assert.Equal(t, "Bar", child.Title)
	assert.Equal(t, content.KindContainer, child.Kind)
	require.Len(t, child.Children, 1)
	leaf, _ := imported.Node(child.Children[0])
	assert.Equal(t, "Baz", leaf.Title)
	text, _ := imported.Text(leaf.ID)
	assert.Equal(t, "Hello", text)

	pic, ok := imported.Asset("pic.png")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, pic)

	h1, _ := vc.ComputeHash(content.RootID)
	h2, _ := imported.ComputeHash(content.RootID)
	assert.Equal(t, h1, h2, "import(export(T)) must equal T")
}

func TestImportRewritesImagePlaceholders(t *testing.T) {
	data := buildZip(t, map[string]string{
		"manifest.json": `{"version": 2, "type": "ARTICLE", "object": "container", "title": "Pics",
			"children": [{"object": "extract", "title": "Body", "text": "body.md"}]}`,
		"body.md": "![logo](archive:logo.png)",
	})
	images := buildZip(t, map[string]string{"logo.png": "PNG"})

	vc, err := Import(data, images, content.DefaultOptions())
	require.NoError(t, err)
	id, err := vc.Resolve("body")
	require.NoError(t, err)
	text, _ := vc.Text(id)
	assert.Equal(t, "![logo](images/logo.png)", text)
	assert.Equal(t, []string{"logo.png"}, vc.Assets())
}

func TestImportRejectsBrokenArchives(t *testing.T) {
	cases := map[string][]byte{
		"not a zip":        []byte("plain text"),
		"no manifest":      buildZip(t, map[string]string{"a.md": "x"}),
		"bad json":         buildZip(t, map[string]string{"manifest.json": "{"}),
		"future version":   buildZip(t, map[string]string{"manifest.json": `{"version": 3, "title": "T"}`}),
		"missing text":     buildZip(t, map[string]string{"manifest.json": `{"version": 2, "title": "T", "children": [{"object": "extract", "title": "E", "text": "e.md"}]}`}),
		"path traversal":   buildZip(t, map[string]string{"manifest.json": `{"version": 2}`, "../evil.md": "x"}),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			vc, err := Import(data, nil, content.DefaultOptions())
			assert.Nil(t, vc)
			var verr *types.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}
