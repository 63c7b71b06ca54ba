package publication

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"strings"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"

	"github.com/onexay/contentvs/internal/content"
)

// NewMarkdown builds the goldmark instance shared by the HTML and EPUB
// renderers. Raw HTML in bodies is escaped.
func NewMarkdown(opts ...renderer.Option) goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(opts...),
	)
}

// HTMLRenderer writes the online view: index.html for the top container and
// one page per nested container.
type HTMLRenderer struct {
	md goldmark.Markdown
}

// NewHTMLRenderer returns an HTMLRenderer with the default markdown setup.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{md: NewMarkdown()}
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<base href="{{.Base}}">
<title>{{.Title}}</title>
</head>
<body>
<article>
<h1>{{.Title}}</h1>
{{if .Introduction}}<section class="introduction">{{.Introduction}}</section>
{{end}}{{if .Links}}<nav><ol>
{{range .Links}}<li><a href="{{.Href}}">{{.Title}}</a></li>
{{end}}</ol></nav>
{{end}}{{range .Sections}}<section id="{{.Slug}}">
<h2>{{.Title}}</h2>
{{.Body}}
</section>
{{end}}{{if .Conclusion}}<section class="conclusion">{{.Conclusion}}</section>
{{end}}</article>
</body>
</html>
`))

type pageLink struct {
	Href  string
	Title string
}

type pageSection struct {
	Slug  string
	Title string
	Body  template.HTML
}

type page struct {
	Base         string
	Title        string
	Introduction template.HTML
	Conclusion   template.HTML
	Links        []pageLink
	Sections     []pageSection
}

// Render implements Renderer.
func (r *HTMLRenderer) Render(ctx context.Context, in RenderInput, outDir string) (Artifact, error) {
	var total int64
	err := in.Content.Walk(func(n content.Node) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.Kind != content.KindContainer {
			return nil
		}
		name, data, err := r.renderPage(in.Content, n)
		if err != nil {
			return err
		}
		total += int64(len(data))
		return writeFile(filepath.Join(outDir, filepath.FromSlash(name)), data)
	})
	if err != nil {
		return Artifact{}, err
	}

	size, err := copyAssets(in.Content, filepath.Join(outDir, "images"))
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Format: FormatHTML, Path: "index.html", Size: total + size}, nil
}

// PageName returns the file holding a container page.
func PageName(vc *content.VersionedContent, id content.NodeID) (string, error) {
	if id == content.RootID {
		return "index.html", nil
	}
	chain, err := vc.Path(id)
	if err != nil {
		return "", err
	}
	return path.Join(chain...) + ".html", nil
}

func (r *HTMLRenderer) renderPage(vc *content.VersionedContent, n content.Node) (string, []byte, error) {
	name, err := PageName(vc, n.ID)
	if err != nil {
		return "", nil, err
	}
	p := page{
		Base:  strings.Repeat("../", strings.Count(name, "/")),
		Title: n.Title,
	}
	if p.Base == "" {
		p.Base = "./"
	}
	intro, _ := vc.Introduction(n.ID)
	concl, _ := vc.Conclusion(n.ID)
	if p.Introduction, err = r.toHTML(intro); err != nil {
		return "", nil, err
	}
	if p.Conclusion, err = r.toHTML(concl); err != nil {
		return "", nil, err
	}

	for _, childID := range n.Children {
		child, err := vc.Node(childID)
		if err != nil {
			return "", nil, err
		}
		if child.Kind == content.KindContainer {
			href, err := PageName(vc, childID)
			if err != nil {
				return "", nil, err
			}
			p.Links = append(p.Links, pageLink{Href: href, Title: child.Title})
			continue
		}
		text, _ := vc.Text(childID)
		body, err := r.toHTML(text)
		if err != nil {
			return "", nil, err
		}
		p.Sections = append(p.Sections, pageSection{Slug: child.Slug, Title: child.Title, Body: body})
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return "", nil, fmt.Errorf("render page %s: %w", name, err)
	}
	return name, buf.Bytes(), nil
}

func (r *HTMLRenderer) toHTML(source string) (template.HTML, error) {
	if strings.TrimSpace(source) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

func writeFile(name string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	return os.WriteFile(name, data, 0o644)
}

func copyAssets(vc *content.VersionedContent, dir string) (int64, error) {
	var total int64
	for _, name := range vc.Assets() {
		data, _ := vc.Asset(name)
		if err := writeFile(filepath.Join(dir, name), data); err != nil {
			return 0, err
		}
		total += int64(len(data))
	}
	return total, nil
}
