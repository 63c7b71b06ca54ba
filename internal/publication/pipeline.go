package publication

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/types"
)

// ExtraDir holds the downloadable artifacts below a publication directory.
const ExtraDir = "extra_contents"

// Pipeline writes publications below a public root. Every content owns
// <root>/<content id>, with one directory per public slug below it: the HTML
// view at its top and extras under ExtraDir.
type Pipeline struct {
	root     string
	registry *Registry
	mirror   Mirror
}

// NewPipeline builds a pipeline. mirror may be nil.
func NewPipeline(root string, registry *Registry, mirror Mirror) *Pipeline {
	return &Pipeline{root: root, registry: registry, mirror: mirror}
}

// Registry returns the renderers used by the pipeline.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

func (p *Pipeline) contentDir(contentID uint) string {
	return filepath.Join(p.root, strconv.FormatUint(uint64(contentID), 10))
}

// Dir returns the publication directory of slug for a content.
func (p *Pipeline) Dir(contentID uint, slug string) string {
	return filepath.Join(p.contentDir(contentID), slug)
}

// mirrorName is the remote prefix of a publication directory.
func mirrorName(contentID uint, slug string) string {
	return path.Join(strconv.FormatUint(uint64(contentID), 10), slug)
}

// Staged is a rendered online view waiting to replace the live directory.
type Staged struct {
	p         *Pipeline
	contentID uint
	slug      string
	staging   string
	backup    string
	installed bool
}

// Stage renders the online view of in next to its publication directory.
// Nothing public changes until Install.
func (p *Pipeline) Stage(ctx context.Context, in RenderInput) (*Staged, error) {
	if in.ContentID == 0 {
		return nil, &types.ValidationError{Message: "publication needs a content id"}
	}
	if in.Slug == "" || strings.ContainsAny(in.Slug, `/\`) || strings.HasPrefix(in.Slug, ".") {
		return nil, &types.ValidationError{Message: fmt.Sprintf("invalid public slug %q", in.Slug)}
	}
	renderer, ok := p.registry.Get(FormatHTML)
	if !ok {
		return nil, errors.New("no html renderer registered")
	}
	parent := p.contentDir(in.ContentID)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("create publication root: %w", err)
	}

	staging := filepath.Join(parent, ".staging-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, err
	}
	if _, err := renderer.Render(ctx, in, staging); err != nil {
		_ = os.RemoveAll(staging)
		return nil, fmt.Errorf("render html: %w", err)
	}
	return &Staged{p: p, contentID: in.ContentID, slug: in.Slug, staging: staging}, nil
}

// Dir is where the staged view is installed.
func (s *Staged) Dir() string {
	return s.p.Dir(s.contentID, s.slug)
}

// Install swaps the staged view in. The previous directory is kept aside until
// Commit or Discard.
func (s *Staged) Install() error {
	if s.installed {
		return nil
	}
	target := s.Dir()
	backup := filepath.Join(filepath.Dir(target), ".old-"+uuid.NewString())
	hadOld := true
	if err := os.Rename(target, backup); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("move previous publication: %w", err)
		}
		hadOld = false
	}
	if err := os.Rename(s.staging, target); err != nil {
		if hadOld {
			_ = os.Rename(backup, target)
		}
		return fmt.Errorf("install publication: %w", err)
	}
	if hadOld {
		s.backup = backup
	}
	s.installed = true
	return nil
}

// Commit drops the previous directory and mirrors the installed one.
func (s *Staged) Commit(ctx context.Context) {
	if s.backup != "" {
		_ = os.RemoveAll(s.backup)
		s.backup = ""
	}
	s.p.sync(ctx, s.contentID, s.slug)
}

// Discard throws the staged view away and puts back the directory that was
// live before Install.
func (s *Staged) Discard() {
	if !s.installed {
		_ = os.RemoveAll(s.staging)
		return
	}
	target := s.Dir()
	_ = os.RemoveAll(target)
	if s.backup != "" {
		if err := os.Rename(s.backup, target); err != nil {
			logger.Errorw("publication_restore_failed", "content_id", s.contentID, "slug", s.slug, "error", err)
		}
		s.backup = ""
	}
	s.installed = false
}

// Publish renders the online view and replaces the publication directory of
// in.Slug in one step. Extras from an earlier publication are dropped.
func (p *Pipeline) Publish(ctx context.Context, in RenderInput) (string, error) {
	staged, err := p.Stage(ctx, in)
	if err != nil {
		return "", err
	}
	if err := staged.Install(); err != nil {
		staged.Discard()
		return "", err
	}
	staged.Commit(ctx)
	return staged.Dir(), nil
}

// BuildExtras renders the requested formats into ExtraDir. It is best effort:
// a missing renderer or a failing one is logged and its artifact is simply
// absent. The produced artifacts are returned.
func (p *Pipeline) BuildExtras(ctx context.Context, in RenderInput, formats []string) []Artifact {
	dir := filepath.Join(p.Dir(in.ContentID, in.Slug), ExtraDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warnw("publication_extra_failed", "content_id", in.ContentID, "slug", in.Slug, "error", err)
		return nil
	}
	if _, err := copyAssets(in.Content, filepath.Join(dir, "images")); err != nil {
		logger.Warnw("publication_extra_images_failed", "content_id", in.ContentID, "slug", in.Slug, "error", err)
	}

	var out []Artifact
	for _, format := range formats {
		format = normalizeFormat(format)
		if format == FormatHTML {
			continue
		}
		renderer, ok := p.registry.Get(format)
		if !ok {
			logger.Warnw("publication_extra_unsupported", "content_id", in.ContentID, "slug", in.Slug, "format", format)
			continue
		}
		artifact, err := renderer.Render(ctx, in, dir)
		if err != nil {
			logger.Warnw("publication_extra_failed", "content_id", in.ContentID, "slug", in.Slug, "format", format, "error", err)
			_ = os.Remove(filepath.Join(dir, in.Slug+"."+format))
			continue
		}
		logger.Infow("publication_extra_built", "content_id", in.ContentID, "slug", in.Slug, "format", format, "size", artifact.Size)
		out = append(out, artifact)
	}
	p.sync(ctx, in.ContentID, in.Slug)
	return out
}

// Remove deletes the publication directory of slug.
func (p *Pipeline) Remove(ctx context.Context, contentID uint, slug string) error {
	if slug == "" {
		return nil
	}
	if err := os.RemoveAll(p.Dir(contentID, slug)); err != nil {
		return fmt.Errorf("remove publication %d/%s: %w", contentID, slug, err)
	}
	if p.mirror != nil {
		if err := p.mirror.Remove(ctx, mirrorName(contentID, slug)); err != nil {
			logger.Warnw("publication_mirror_failed", "content_id", contentID, "slug", slug, "error", err)
		}
	}
	return nil
}

// RemoveContent deletes every publication directory of a content.
func (p *Pipeline) RemoveContent(ctx context.Context, contentID uint) error {
	if err := os.RemoveAll(p.contentDir(contentID)); err != nil {
		return fmt.Errorf("remove publications of %d: %w", contentID, err)
	}
	if p.mirror != nil {
		if err := p.mirror.Remove(ctx, strconv.FormatUint(uint64(contentID), 10)); err != nil {
			logger.Warnw("publication_mirror_failed", "content_id", contentID, "error", err)
		}
	}
	return nil
}

// ArtifactPath returns the file serving format for slug, or NotFound when it
// has not been produced.
func (p *Pipeline) ArtifactPath(contentID uint, slug, format string) (string, error) {
	format = normalizeFormat(format)
	dir := p.Dir(contentID, slug)
	var name string
	if format == FormatHTML {
		name = filepath.Join(dir, "index.html")
	} else {
		name = filepath.Join(dir, ExtraDir, slug+"."+format)
	}
	info, err := os.Stat(name)
	if err != nil || info.IsDir() {
		return "", &types.NotFoundError{Resource: "artifact", Key: fmt.Sprintf("%d/%s.%s", contentID, slug, format)}
	}
	return name, nil
}

func (p *Pipeline) sync(ctx context.Context, contentID uint, slug string) {
	if p.mirror == nil {
		return
	}
	if err := p.mirror.Sync(ctx, mirrorName(contentID, slug), p.Dir(contentID, slug)); err != nil {
		logger.Warnw("publication_mirror_failed", "content_id", contentID, "slug", slug, "error", err)
	}
}
