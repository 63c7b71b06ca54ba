package service

import (
	"context"
	"fmt"

	"github.com/onexay/contentvs/internal/archive"
	"github.com/onexay/contentvs/internal/content"
	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/models"
	"github.com/onexay/contentvs/internal/types"
)

// Export zips a content at sha, the draft when empty.
func (s *Service) Export(ctx context.Context, actor types.Actor, id uint, sha string) ([]byte, string, error) {
	version, err := s.LoadVersion(ctx, actor, id, sha)
	if err != nil {
		return nil, "", err
	}
	data, err := archive.Export(version.Tree)
	if err != nil {
		return nil, "", err
	}
	return data, version.Tree.Slug() + ".zip", nil
}

// ImportInput carries an uploaded archive. ContentID zero creates a new
// content; otherwise the draft of that content is replaced and LastHash must
// match its top container.
type ImportInput struct {
	ContentID uint
	LastHash  string
	Archive   []byte
	Images    []byte
}

// Import validates the archive completely before touching anything.
func (s *Service) Import(ctx context.Context, actor types.Actor, in ImportInput) (*models.PublishableContent, error) {
	if actor.IsAnonymous() {
		return nil, &types.ForbiddenError{Action: "content.import", Reason: "authentication required"}
	}
	vc, err := archive.Import(in.Archive, in.Images, s.opts)
	if err != nil {
		return nil, err
	}
	if in.ContentID == 0 {
		c, err := s.createFromTree(ctx, actor, vc, "Importation")
		if err != nil {
			return nil, err
		}
		logger.Infow("content_imported", "content_id", c.ID, "slug", c.Slug)
		return c, nil
	}

	_, err = s.edit(ctx, actor, in.ContentID, "content.import", "Importation d'une archive", func(current *content.VersionedContent) (content.NodeID, error) {
		if err := current.CheckHash(content.RootID, in.LastHash); err != nil {
			return 0, err
		}
		if vc.Type != current.Type {
			return 0, &types.ValidationError{Message: fmt.Sprintf("cannot replace a %s with a %s", current.Type, vc.Type)}
		}
		*current = *vc
		return content.RootID, nil
	})
	if err != nil {
		return nil, err
	}
	return s.getContent(in.ContentID)
}
