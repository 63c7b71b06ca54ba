package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onexay/contentvs/internal/types"
)

func newTutorial(t *testing.T) *VersionedContent {
	t.Helper()
	vc, err := New(ContainerFields{Title: "Foo", Introduction: "intro", Conclusion: "outro"}, Meta{Type: TypeTutorial, Licence: "CC BY"}, DefaultOptions())
	require.NoError(t, err)
	return vc
}

func TestTreeStructure(t *testing.T) {
	vc := newTutorial(t)
	assert.Equal(t, "foo", vc.Slug())

	part, err := vc.AddContainer(RootID, ContainerFields{Title: "Bar"})
	require.NoError(t, err)
	chapter, err := vc.AddContainer(part, ContainerFields{Title: "Chapter"})
	require.NoError(t, err)
	extract, err := vc.AddExtract(chapter, ExtractFields{Title: "Baz", Text: "Hello"})
	require.NoError(t, err)

	t.Run("containers are limited in depth", func(t *testing.T) {
		_, err := vc.AddContainer(chapter, ContainerFields{Title: "Too deep"})
		var verr *types.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("levels stay homogeneous", func(t *testing.T) {
		_, err := vc.AddExtract(part, ExtractFields{Title: "Mixed"})
		var verr *types.ValidationError
		assert.ErrorAs(t, err, &verr)

		_, err = vc.AddExtract(extract, ExtractFields{Title: "Child of extract"})
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("sibling slugs are unique", func(t *testing.T) {
		second, err := vc.AddExtract(chapter, ExtractFields{Title: "Baz"})
		require.NoError(t, err)
		n, err := vc.Node(second)
		require.NoError(t, err)
		assert.Equal(t, "baz-1", n.Slug)
		require.NoError(t, vc.Delete(second))
	})

	t.Run("reserved names are avoided", func(t *testing.T) {
		id, err := vc.AddExtract(chapter, ExtractFields{Title: "Introduction"})
		require.NoError(t, err)
		n, _ := vc.Node(id)
		assert.Equal(t, "introduction-1", n.Slug)
		require.NoError(t, vc.Delete(id))

		top, err := vc.AddContainer(RootID, ContainerFields{Title: "Index"})
		require.NoError(t, err)
		n, _ = vc.Node(top)
		assert.Equal(t, "index-1", n.Slug)
		require.NoError(t, vc.Delete(top))
	})

	text, err := vc.Text(extract)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	path, err := vc.Path(extract)
	require.NoError(t, err)
	assert.Equal(t, []string{"bar", "chapter", "baz"}, path)

	resolved, err := vc.Resolve("bar", "chapter", "baz")
	require.NoError(t, err)
	assert.Equal(t, extract, resolved)

	_, err = vc.Resolve("bar", "missing")
	var nf *types.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestArticlesHoldOnlyExtracts(t *testing.T) {
	vc, err := New(ContainerFields{Title: "News"}, Meta{Type: TypeArticle}, DefaultOptions())
	require.NoError(t, err)

	_, err = vc.AddContainer(RootID, ContainerFields{Title: "Part"})
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = vc.AddExtract(RootID, ExtractFields{Title: "Body", Text: "text"})
	assert.NoError(t, err)
}

func TestRetitleKeepsHistoricalSlugs(t *testing.T) {
	vc := newTutorial(t)
	part, err := vc.AddContainer(RootID, ContainerFields{Title: "Bar"})
	require.NoError(t, err)
	extract, err := vc.AddExtract(part, ExtractFields{Title: "Baz", Text: "Hello"})
	require.NoError(t, err)

	require.NoError(t, vc.UpdateContainer(part, ContainerFields{Title: "Bar renamed", Introduction: "new intro"}))
	require.NoError(t, vc.UpdateExtract(extract, ExtractFields{Title: "Qux", Text: "Hello again"}))

	n, err := vc.Node(part)
	require.NoError(t, err)
	assert.Equal(t, "bar-renamed", n.Slug)
	assert.Equal(t, []string{"bar"}, n.PreviousSlugs)

	for _, chain := range [][]string{{"bar", "baz"}, {"bar-renamed", "qux"}, {"bar", "qux"}} {
		id, err := vc.Resolve(chain...)
		require.NoError(t, err, "chain %v", chain)
		assert.Equal(t, extract, id)
	}

	t.Run("cosmetic title edits keep the slug", func(t *testing.T) {
		require.NoError(t, vc.UpdateExtract(extract, ExtractFields{Title: "QUX!", Text: "Hello again"}))
		n, _ := vc.Node(extract)
		assert.Equal(t, "qux", n.Slug)
		assert.Equal(t, "QUX!", n.Title)
	})

	t.Run("slugs survive a snapshot round trip", func(t *testing.T) {
		snap, err := vc.Snapshot()
		require.NoError(t, err)
		loaded, err := Load(snap, DefaultOptions())
		require.NoError(t, err)
		id, err := loaded.Resolve("bar", "baz")
		require.NoError(t, err)
		text, err := loaded.Text(id)
		require.NoError(t, err)
		assert.Equal(t, "Hello again", text)
	})
}

func TestDeleteAndMove(t *testing.T) {
	vc, err := New(ContainerFields{Title: "Article"}, Meta{Type: TypeArticle}, DefaultOptions())
	require.NoError(t, err)
	a, _ := vc.AddExtract(RootID, ExtractFields{Title: "A"})
	b, _ := vc.AddExtract(RootID, ExtractFields{Title: "B"})
	c, _ := vc.AddExtract(RootID, ExtractFields{Title: "C"})

	require.NoError(t, vc.Delete(b))
	root, _ := vc.Node(RootID)
	assert.Equal(t, []NodeID{a, c}, root.Children)

	_, err = vc.Node(b)
	var nf *types.NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.ErrorAs(t, vc.Delete(b), &nf)

	require.NoError(t, vc.MoveUp(c))
	root, _ = vc.Node(RootID)
	assert.Equal(t, []NodeID{c, a}, root.Children)

	var verr *types.ValidationError
	assert.ErrorAs(t, vc.MoveUp(c), &verr)
	assert.ErrorAs(t, vc.MoveDown(a), &verr)
	assert.ErrorAs(t, vc.Delete(RootID), &verr)

	require.NoError(t, vc.MoveDown(c))
	root, _ = vc.Node(RootID)
	assert.Equal(t, []NodeID{a, c}, root.Children)
}

func TestComputeHashGuard(t *testing.T) {
	vc := newTutorial(t)
	part, err := vc.AddContainer(RootID, ContainerFields{Title: "Bar"})
	require.NoError(t, err)
	a, _ := vc.AddExtract(part, ExtractFields{Title: "A", Text: "one"})
	b, _ := vc.AddExtract(part, ExtractFields{Title: "B", Text: "two"})

	before, err := vc.ComputeHash(part)
	require.NoError(t, err)
	again, _ := vc.ComputeHash(part)
	assert.Equal(t, before, again, "hash must be stable")

	require.NoError(t, vc.CheckHash(part, before))

	var conflict *types.ConflictError
	assert.ErrorAs(t, vc.CheckHash(part, ""), &conflict)
	assert.ErrorAs(t, vc.CheckHash(part, "deadbeef"), &conflict)

	require.NoError(t, vc.MoveDown(a))
	reordered, _ := vc.ComputeHash(part)
	assert.NotEqual(t, before, reordered, "child order is part of the hash")
	assert.ErrorAs(t, vc.CheckHash(part, before), &conflict)

	extractHash, _ := vc.ComputeHash(b)
	rootBefore, _ := vc.ComputeHash(RootID)
	require.NoError(t, vc.UpdateExtract(b, ExtractFields{Title: "B", Text: "changed"}))
	after, _ := vc.ComputeHash(b)
	assert.NotEqual(t, extractHash, after)

	rootNow, _ := vc.ComputeHash(RootID)
	assert.NotEqual(t, rootBefore, rootNow, "edits bubble up to the top hash")
}

func TestSnapshotLayout(t *testing.T) {
	vc := newTutorial(t)
	part, _ := vc.AddContainer(RootID, ContainerFields{Title: "Bar", Introduction: "part intro"})
	_, _ = vc.AddExtract(part, ExtractFields{Title: "Baz", Text: "Hello"})
	require.NoError(t, vc.SetAsset("logo.png", []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}))

	snap, err := vc.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"bar/baz.md",
		"bar/introduction.md",
		"conclusion.md",
		"images/logo.png",
		"introduction.md",
		"manifest.json",
	}, snap.Paths())
	assert.Equal(t, "Hello", snap["bar/baz.md"])

	loaded, err := Load(snap, DefaultOptions())
	require.NoError(t, err)
	data, ok := loaded.Asset("logo.png")
	require.True(t, ok)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}, data)

	h1, _ := vc.ComputeHash(RootID)
	h2, _ := loaded.ComputeHash(RootID)
	assert.Equal(t, h1, h2)
	assert.Equal(t, "CC BY", loaded.Licence)
}
