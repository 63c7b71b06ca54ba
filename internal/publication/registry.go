// Package publication renders a content snapshot into public artifacts.
package publication

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/onexay/contentvs/internal/content"
)

// FormatHTML is the mandatory online view.
const FormatHTML = "html"

// RenderInput is everything a renderer may read.
type RenderInput struct {
	// ContentID owns the publication directory.
	ContentID uint
	Content   *content.VersionedContent
	// Slug is the public slug the artifacts are published under.
	Slug string
	// Sha is the commit being published.
	Sha string
}

// Artifact describes one produced file or directory.
type Artifact struct {
	Format string
	// Path is relative to the output directory handed to the renderer.
	Path string
	Size int64
}

// Renderer produces one format from a content tree into outDir.
type Renderer interface {
	Render(ctx context.Context, in RenderInput, outDir string) (Artifact, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, in RenderInput, outDir string) (Artifact, error)

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, in RenderInput, outDir string) (Artifact, error) {
	return f(ctx, in, outDir)
}

// Registry maps format names to renderers. It is passed explicitly to the
// pipeline; tests clone it and swap entries without touching other users.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{renderers: make(map[string]Renderer)}
}

// Register adds or replaces the renderer for format.
func (r *Registry) Register(format string, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[normalizeFormat(format)] = renderer
}

// Unregister removes a format.
func (r *Registry) Unregister(format string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.renderers, normalizeFormat(format))
}

// Get returns the renderer for format.
func (r *Registry) Get(format string) (Renderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[normalizeFormat(format)]
	return renderer, ok
}

// Formats lists registered formats in lexical order.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	formats := make([]string, 0, len(r.renderers))
	for f := range r.renderers {
		formats = append(formats, f)
	}
	slices.Sort(formats)
	return formats
}

// Clone returns an independent copy.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewRegistry()
	for f, renderer := range r.renderers {
		out.renderers[f] = renderer
	}
	return out
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}

// DefaultRegistry wires every built-in renderer. pdfCommand may be empty to
// leave PDF unsupported.
func DefaultRegistry(pdfCommand []string) *Registry {
	r := NewRegistry()
	r.Register(FormatHTML, NewHTMLRenderer())
	r.Register(FormatMarkdown, MarkdownRenderer{})
	r.Register(FormatEPUB, NewEpubRenderer())
	r.Register(FormatZip, ZipRenderer{})
	if len(pdfCommand) > 0 {
		r.Register(FormatPDF, LatexPdfRenderer{Command: pdfCommand})
	}
	return r
}
