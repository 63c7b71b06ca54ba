package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"github.com/onexay/contentvs/internal/authz"
	"github.com/onexay/contentvs/internal/config"
	"github.com/onexay/contentvs/internal/content"
	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/models"
	"github.com/onexay/contentvs/internal/publication"
	"github.com/onexay/contentvs/internal/queue"
	"github.com/onexay/contentvs/internal/storage"
	"github.com/onexay/contentvs/internal/types"
)

// publish renders sha and records the publication. ready runs once the
// publication guard is held and may still refuse; inTx runs inside the
// transaction that stores the publication row. The new online view goes live
// before the transaction and is rolled back with it.
func (s *Service) publish(ctx context.Context, c *models.PublishableContent, sha string, isMajor bool, ready func() error, inTx func(tx *gorm.DB) error) (*models.PublishedContent, error) {
	release, err := s.guard.Acquire(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if ready != nil {
		if err := ready(); err != nil {
			return nil, err
		}
	}
	fresh, err := s.getContent(c.ID)
	if err != nil {
		return nil, err
	}
	*c = *fresh

	vc, err := s.checkout(ctx, c, sha)
	if err != nil {
		return nil, err
	}
	slug := vc.Slug()
	staged, err := s.pipeline.Stage(ctx, publication.RenderInput{ContentID: c.ID, Content: vc, Slug: slug, Sha: sha})
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", slug, err)
	}
	if err := staged.Install(); err != nil {
		staged.Discard()
		return nil, fmt.Errorf("publish %s: %w", slug, err)
	}

	now := s.now()
	var (
		published *models.PublishedContent
		oldSlug   string
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		pubs := s.publications.WithTx(tx)
		current, err := pubs.GetCurrent(c.ID)
		if err != nil {
			return err
		}
		base := current
		if base == nil {
			if base, err = pubs.GetFirst(c.ID); err != nil {
				return err
			}
		}

		if current != nil && current.ContentPublicSlug == slug {
			published = current
		} else {
			published = &models.PublishedContent{ContentID: c.ID, ContentPublicSlug: slug}
			if current != nil {
				oldSlug = current.ContentPublicSlug
			}
		}
		published.PublicationDate = now
		published.UpdateDate = nil
		if base != nil {
			published.UpdateDate = &now
			if !isMajor {
				published.PublicationDate = base.PublicationDate
			}
		}
		published.ContentType = c.Type
		published.ShaPublic = sha
		published.AuthorIDs = slices.Clone(c.AuthorIDs)
		published.ProdPath = staged.Dir()
		published.MustRedirect = false

		if published.ID == 0 {
			err = pubs.Create(published)
		} else {
			err = pubs.Update(published)
		}
		if err != nil {
			return err
		}
		if err := pubs.MarkRedirect(c.ID, published.ID); err != nil {
			return err
		}

		c.ShaPublic = strPtr(sha)
		c.ShaValidation = nil
		if err := s.contents.WithTx(tx).Update(c); err != nil {
			return err
		}
		if inTx != nil {
			return inTx(tx)
		}
		return nil
	})
	if err != nil {
		staged.Discard()
		*c = *fresh
		return nil, fmt.Errorf("record publication: %w", err)
	}
	staged.Commit(ctx)

	if oldSlug != "" && oldSlug != slug {
		if err := s.pipeline.Remove(ctx, c.ID, oldSlug); err != nil {
			logger.Warnw("publication_remove_failed", "content_id", c.ID, "slug", oldSlug, "error", err)
		}
	}
	s.markPublic(ctx, c, published)
	s.scheduleExtras(ctx, c, published, vc)
	logger.Infow("content_published", "content_id", c.ID, "published_id", published.ID, "slug", slug, "sha", sha)
	return published, nil
}

// markPublic moves the public branch and tags the published commit.
func (s *Service) markPublic(ctx context.Context, c *models.PublishableContent, p *models.PublishedContent) {
	if _, err := s.store.UpsertBranch(ctx, storage.BranchRequest{Repo: c.RepoName, Name: BranchPublic, Commit: p.ShaPublic}); err != nil {
		logger.Warnw("publication_branch_failed", "content_id", c.ID, "error", err)
	}
	_, err := s.store.CreateTag(ctx, storage.TagRequest{
		Repo:   c.RepoName,
		Name:   "public-" + p.ShaPublic,
		Commit: p.ShaPublic,
		Note:   p.ContentPublicSlug,
	})
	var conflict *types.ConflictError
	if err != nil && !errors.As(err, &conflict) {
		logger.Warnw("publication_tag_failed", "content_id", c.ID, "error", err)
	}
}

func (s *Service) scheduleExtras(ctx context.Context, c *models.PublishableContent, p *models.PublishedContent, vc *content.VersionedContent) {
	if len(s.extraFormats) == 0 {
		return
	}
	switch s.extraPolicy {
	case config.ExtraPolicyNothing:
	case config.ExtraPolicyQueue:
		err := s.queue.EnqueueExtraContents(queue.ExtraContentsPayload{
			ContentID:   c.ID,
			PublishedID: p.ID,
			Sha:         p.ShaPublic,
			Slug:        p.ContentPublicSlug,
			Formats:     s.extraFormats,
		})
		if err != nil {
			logger.Warnw("publication_extra_enqueue_failed", "content_id", c.ID, "error", err)
		}
	default:
		in := publication.RenderInput{ContentID: c.ID, Content: vc, Slug: p.ContentPublicSlug, Sha: p.ShaPublic}
		s.pipeline.BuildExtras(ctx, in, s.extraFormats)
	}
}

// GenerateExtras builds deferred extras. Payloads for a version that is no
// longer public are dropped.
func (s *Service) GenerateExtras(ctx context.Context, payload queue.ExtraContentsPayload) error {
	c, err := s.contents.GetByID(payload.ContentID)
	if err != nil {
		return err
	}
	if c == nil || deref(c.ShaPublic) != payload.Sha {
		logger.Debugw("publication_extra_stale", "content_id", payload.ContentID, "sha", payload.Sha)
		return nil
	}
	release, err := s.guard.Acquire(ctx, c.ID)
	if err != nil {
		return err
	}
	defer release()

	vc, err := s.checkout(ctx, c, payload.Sha)
	if err != nil {
		return err
	}
	formats := payload.Formats
	if len(formats) == 0 {
		formats = s.extraFormats
	}
	s.pipeline.BuildExtras(ctx, publication.RenderInput{ContentID: c.ID, Content: vc, Slug: payload.Slug, Sha: payload.Sha}, formats)
	return nil
}

// PublicTarget is what a public URL resolves to.
type PublicTarget struct {
	Published *models.PublishedContent
	// RedirectSlug is set when the requested slug was superseded.
	RedirectSlug string
	// File is the artifact on disk, empty for redirects.
	File string
}

// ResolvePublic maps a public URL to an artifact or to the slug it moved to.
func (s *Service) ResolvePublic(_ context.Context, actor types.Actor, contentID uint, slug, format string) (*PublicTarget, error) {
	if format == "" {
		format = publication.FormatHTML
	}
	row, err := s.publications.GetLatestBySlug(contentID, slug)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &types.NotFoundError{Resource: "publication", Key: fmt.Sprintf("%d/%s", contentID, slug)}
	}
	if row.MustRedirect {
		current, err := s.publications.GetCurrent(contentID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, &types.NotFoundError{Resource: "publication", Key: fmt.Sprintf("%d/%s", contentID, slug)}
		}
		return &PublicTarget{Published: current, RedirectSlug: current.ContentPublicSlug}, nil
	}

	if format == publication.FormatMarkdown {
		c, err := s.getContent(contentID)
		if err != nil {
			return nil, err
		}
		if !c.IsAuthor(actor.ID) && !s.authz.Can(actor, authz.ActionDownloadMD) {
			return nil, &types.ForbiddenError{Action: authz.ActionDownloadMD, Reason: "the markdown source is reserved to authors and staff"}
		}
	}
	file, err := s.pipeline.ArtifactPath(contentID, row.ContentPublicSlug, format)
	if err != nil {
		return nil, err
	}
	return &PublicTarget{Published: row, File: file}, nil
}

// Publications lists every publication event of a content.
func (s *Service) Publications(_ context.Context, contentID uint) ([]models.PublishedContent, error) {
	if _, err := s.getContent(contentID); err != nil {
		return nil, err
	}
	return s.publications.ListByContent(contentID)
}
