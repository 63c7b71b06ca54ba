package publication

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	epub "github.com/go-shiori/go-epub"
	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/onexay/contentvs/internal/content"
)

// FormatEPUB is the ebook extra.
const FormatEPUB = "epub"

// EpubRenderer packs the tree as an EPUB book: one section per top level
// child, plus the introduction and conclusion of the top container.
type EpubRenderer struct {
	md   goldmark.Markdown
	lang string
}

// NewEpubRenderer returns an EpubRenderer producing XHTML bodies.
func NewEpubRenderer() *EpubRenderer {
	return &EpubRenderer{md: NewMarkdown(gmhtml.WithXHTML()), lang: "fr"}
}

type epubSection struct {
	file  string
	title string
	body  string
}

// Render implements Renderer.
func (r *EpubRenderer) Render(ctx context.Context, in RenderInput, outDir string) (Artifact, error) {
	vc := in.Content
	sections, err := r.sections(vc)
	if err != nil {
		return Artifact{}, err
	}
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}

	book, err := epub.NewEpub(vc.Title())
	if err != nil {
		return Artifact{}, fmt.Errorf("create epub: %w", err)
	}
	book.SetLang(r.lang)
	if in.Sha != "" {
		book.SetIdentifier("urn:sha:" + in.Sha)
	}

	images, err := r.addImages(book, vc)
	if err != nil {
		return Artifact{}, err
	}
	for _, s := range sections {
		body := s.body
		for ref, internal := range images {
			body = strings.ReplaceAll(body, `"`+ref+`"`, `"`+internal+`"`)
		}
		if _, err := book.AddSection(body, s.title, s.file, ""); err != nil {
			return Artifact{}, fmt.Errorf("add section %s: %w", s.file, err)
		}
	}

	var buf bytes.Buffer
	if _, err := book.WriteTo(&buf); err != nil {
		return Artifact{}, fmt.Errorf("write epub: %w", err)
	}
	name := in.Slug + ".epub"
	if err := os.WriteFile(filepath.Join(outDir, name), buf.Bytes(), 0o644); err != nil {
		return Artifact{}, err
	}
	return Artifact{Format: FormatEPUB, Path: name, Size: int64(buf.Len())}, nil
}

// addImages embeds the committed images. It returns the internal path of
// each image keyed by the reference used in bodies.
func (r *EpubRenderer) addImages(book *epub.Epub, vc *content.VersionedContent) (map[string]string, error) {
	names := vc.Assets()
	if len(names) == 0 {
		return nil, nil
	}
	tmp, err := os.MkdirTemp("", "contentvs-epub-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	refs := make(map[string]string, len(names))
	for _, name := range names {
		data, _ := vc.Asset(name)
		local := filepath.Join(tmp, filepath.Base(name))
		if err := os.WriteFile(local, data, 0o644); err != nil {
			return nil, err
		}
		internal, err := book.AddImage(local, filepath.Base(name))
		if err != nil {
			return nil, fmt.Errorf("add image %s: %w", name, err)
		}
		refs["images/"+name] = internal
	}
	return refs, nil
}

// sections splits the book at the top level.
func (r *EpubRenderer) sections(vc *content.VersionedContent) ([]epubSection, error) {
	root, err := vc.Node(content.RootID)
	if err != nil {
		return nil, err
	}
	var out []epubSection
	add := func(title, source string) error {
		var body bytes.Buffer
		fmt.Fprintf(&body, "<h1>%s</h1>\n", escapeText(title))
		if err := r.md.Convert([]byte(source), &body); err != nil {
			return fmt.Errorf("convert markdown: %w", err)
		}
		out = append(out, epubSection{
			file:  fmt.Sprintf("ch%03d.xhtml", len(out)),
			title: title,
			body:  body.String(),
		})
		return nil
	}

	if intro, _ := vc.Introduction(content.RootID); intro != "" {
		if err := add("Introduction", intro); err != nil {
			return nil, err
		}
	}
	for _, child := range root.Children {
		n, err := vc.Node(child)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		if err := flattenBody(&b, vc, n); err != nil {
			return nil, err
		}
		if err := add(n.Title, b.String()); err != nil {
			return nil, err
		}
	}
	if concl, _ := vc.Conclusion(content.RootID); concl != "" {
		if err := add("Conclusion", concl); err != nil {
			return nil, err
		}
	}
	return out, nil
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeText(s string) string {
	return textEscaper.Replace(s)
}
