package publication

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/onexay/contentvs/internal/content"
)

// FormatMarkdown is the single-file markdown extra.
const FormatMarkdown = "md"

// MarkdownRenderer flattens the tree into one markdown document.
type MarkdownRenderer struct{}

// Render implements Renderer.
func (MarkdownRenderer) Render(ctx context.Context, in RenderInput, outDir string) (Artifact, error) {
	doc, err := FlattenMarkdown(in.Content)
	if err != nil {
		return Artifact{}, err
	}
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	name := in.Slug + ".md"
	if err := writeFile(filepath.Join(outDir, name), []byte(doc)); err != nil {
		return Artifact{}, err
	}
	return Artifact{Format: FormatMarkdown, Path: name, Size: int64(len(doc))}, nil
}

// FlattenMarkdown renders the whole tree as one markdown document, titles
// becoming headings by depth.
func FlattenMarkdown(vc *content.VersionedContent) (string, error) {
	var b strings.Builder
	if err := flatten(&b, vc, content.RootID); err != nil {
		return "", err
	}
	return b.String(), nil
}

func flatten(b *strings.Builder, vc *content.VersionedContent, id content.NodeID) error {
	n, err := vc.Node(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "%s %s\n\n", strings.Repeat("#", min(n.Depth+1, 6)), n.Title)
	return flattenBody(b, vc, n)
}

// flattenBody writes everything below the node heading.
func flattenBody(b *strings.Builder, vc *content.VersionedContent, n content.Node) error {
	if n.Kind == content.KindExtract {
		text, err := vc.Text(n.ID)
		if err != nil {
			return err
		}
		writeBlock(b, text)
		return nil
	}

	intro, err := vc.Introduction(n.ID)
	if err != nil {
		return err
	}
	writeBlock(b, intro)
	for _, child := range n.Children {
		if err := flatten(b, vc, child); err != nil {
			return err
		}
	}
	concl, err := vc.Conclusion(n.ID)
	if err != nil {
		return err
	}
	writeBlock(b, concl)
	return nil
}

func writeBlock(b *strings.Builder, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b.WriteString(text)
	b.WriteString("\n\n")
}
