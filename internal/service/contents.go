package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/onexay/contentvs/internal/authz"
	"github.com/onexay/contentvs/internal/content"
	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/models"
	"github.com/onexay/contentvs/internal/storage"
	"github.com/onexay/contentvs/internal/types"
)

// CreateInput carries the fields of a new content.
type CreateInput struct {
	Title        string
	Description  string
	Licence      string
	Type         string
	Introduction string
	Conclusion   string
}

// Version is a content tree checked out at one commit.
type Version struct {
	Content *models.PublishableContent
	Sha     string
	Tree    *content.VersionedContent
}

// EditResult reports the commit produced by an edit and the edited node.
type EditResult struct {
	Sha  string   `json:"sha"`
	Path []string `json:"path"`
	Hash string   `json:"hash"`
}

// CreateContent stores a new content with the actor as single author.
func (s *Service) CreateContent(ctx context.Context, actor types.Actor, in CreateInput) (*models.PublishableContent, error) {
	if actor.IsAnonymous() {
		return nil, &types.ForbiddenError{Action: "content.create", Reason: "authentication required"}
	}
	kind, err := content.ParseType(in.Type)
	if err != nil {
		return nil, err
	}
	vc, err := content.New(content.ContainerFields{
		Title:        in.Title,
		Introduction: in.Introduction,
		Conclusion:   in.Conclusion,
	}, content.Meta{Description: in.Description, Licence: in.Licence, Type: kind}, s.opts)
	if err != nil {
		return nil, err
	}
	return s.createFromTree(ctx, actor, vc, "Creation")
}

func (s *Service) createFromTree(ctx context.Context, actor types.Actor, vc *content.VersionedContent, message string) (*models.PublishableContent, error) {
	if err := s.assignUniqueSlug(vc, 0); err != nil {
		return nil, err
	}
	c := &models.PublishableContent{
		RepoName:  uuid.NewString(),
		AuthorIDs: []uint{actor.ID},
	}
	sha, err := s.commit(ctx, actor, c, vc, message)
	if err != nil {
		return nil, err
	}
	c.ShaDraft = sha
	syncRow(c, vc)
	if err := s.contents.Create(c); err != nil {
		_ = s.store.DeleteRepo(ctx, c.RepoName)
		return nil, fmt.Errorf("create content: %w", err)
	}
	logger.Infow("content_created", "content_id", c.ID, "slug", c.Slug, "actor_id", actor.ID)
	return c, nil
}

// assignUniqueSlug makes the top slug unique across contents.
func (s *Service) assignUniqueSlug(vc *content.VersionedContent, contentID uint) error {
	var lookupErr error
	slug := content.UniqueSlug(vc.Slug(), func(candidate string) bool {
		exists, err := s.contents.SlugExists(candidate, contentID)
		if err != nil {
			lookupErr = err
			return false
		}
		return exists
	}, s.opts.MaxSlugLength)
	if lookupErr != nil {
		return lookupErr
	}
	if slug == vc.Slug() {
		return nil
	}
	return vc.SetSlug(content.RootID, slug)
}

// commit writes the tree on top of the current draft.
func (s *Service) commit(ctx context.Context, actor types.Actor, c *models.PublishableContent, vc *content.VersionedContent, message string) (string, error) {
	files, err := vc.Snapshot()
	if err != nil {
		return "", err
	}
	result, err := s.store.Commit(ctx, storage.CommitRequest{
		Repo:       c.RepoName,
		Branch:     storage.DefaultBranch,
		Parent:     c.ShaDraft,
		Files:      files,
		Message:    message,
		AuthorName: actorName(actor),
		AuthorID:   fmt.Sprint(actor.ID),
	})
	if err != nil {
		return "", err
	}
	return result.CommitHash, nil
}

func actorName(actor types.Actor) string {
	if actor.Username != "" {
		return actor.Username
	}
	return fmt.Sprintf("user-%d", actor.ID)
}

func syncRow(c *models.PublishableContent, vc *content.VersionedContent) {
	c.Title = vc.Title()
	c.Slug = vc.Slug()
	c.Description = vc.Description
	c.Licence = vc.Licence
	c.Type = string(vc.Type)
}

// GetContent returns the content row.
func (s *Service) GetContent(_ context.Context, id uint) (*models.PublishableContent, error) {
	return s.getContent(id)
}

// canRead decides whether the actor may load sha of c. The public version is
// open to everyone and the beta to any signed-in user. Authors and staff read
// anything, including the history when sha is empty.
func (s *Service) canRead(actor types.Actor, c *models.PublishableContent, sha string) error {
	if sha != "" && sha == deref(c.ShaPublic) {
		return nil
	}
	if sha != "" && sha == deref(c.ShaBeta) && !actor.IsAnonymous() {
		return nil
	}
	if c.IsAuthor(actor.ID) || s.authz.Can(actor, authz.ActionViewDraft) {
		return nil
	}
	return &types.ForbiddenError{Action: authz.ActionViewDraft, Reason: "this version is not public"}
}

// LoadVersion checks out a content at sha, the draft when sha is empty.
func (s *Service) LoadVersion(ctx context.Context, actor types.Actor, id uint, sha string) (*Version, error) {
	c, err := s.getContent(id)
	if err != nil {
		return nil, err
	}
	if sha == "" {
		sha = c.ShaDraft
	}
	if err := s.canRead(actor, c, sha); err != nil {
		return nil, err
	}
	vc, err := s.checkout(ctx, c, sha)
	if err != nil {
		return nil, err
	}
	return &Version{Content: c, Sha: sha, Tree: vc}, nil
}

func (s *Service) checkout(ctx context.Context, c *models.PublishableContent, sha string) (*content.VersionedContent, error) {
	_, files, err := s.store.Checkout(ctx, c.RepoName, sha)
	if err != nil {
		return nil, err
	}
	return content.Load(files, s.opts)
}

// edit loads the draft, applies fn and commits the result. fn returns the
// node whose path and hash are reported.
func (s *Service) edit(ctx context.Context, actor types.Actor, id uint, action, message string, fn func(vc *content.VersionedContent) (content.NodeID, error)) (*EditResult, error) {
	c, err := s.getContent(id)
	if err != nil {
		return nil, err
	}
	if err := requireAuthor(actor, c, action); err != nil {
		return nil, err
	}
	vc, err := s.checkout(ctx, c, c.ShaDraft)
	if err != nil {
		return nil, err
	}
	node, err := fn(vc)
	if err != nil {
		return nil, err
	}
	if err := s.assignUniqueSlug(vc, c.ID); err != nil {
		return nil, err
	}

	sha, err := s.commit(ctx, actor, c, vc, message)
	if err != nil {
		return nil, err
	}
	c.ShaDraft = sha
	syncRow(c, vc)
	if err := s.contents.Update(c); err != nil {
		return nil, fmt.Errorf("update content: %w", err)
	}

	result := &EditResult{Sha: sha}
	if _, err := vc.Node(node); err == nil {
		result.Path, _ = vc.Path(node)
		result.Hash, _ = vc.ComputeHash(node)
	}
	logger.Infow("content_edited", "content_id", c.ID, "sha", sha, "action", action, "actor_id", actor.ID)
	return result, nil
}

// TopInput edits the top container and the metadata of a content.
type TopInput struct {
	LastHash     string
	Title        string
	Description  string
	Licence      string
	Introduction string
	Conclusion   string
}

// UpdateTop edits the top container. LastHash must match its current hash.
func (s *Service) UpdateTop(ctx context.Context, actor types.Actor, id uint, in TopInput) (*EditResult, error) {
	return s.edit(ctx, actor, id, "content.edit", "Modification du contenu", func(vc *content.VersionedContent) (content.NodeID, error) {
		if err := vc.CheckHash(content.RootID, in.LastHash); err != nil {
			return 0, err
		}
		if err := vc.UpdateContainer(content.RootID, content.ContainerFields{
			Title:        in.Title,
			Introduction: in.Introduction,
			Conclusion:   in.Conclusion,
		}); err != nil {
			return 0, err
		}
		vc.Description = in.Description
		vc.Licence = in.Licence
		return content.RootID, nil
	})
}

// AddContainer appends a container below the node at parentPath.
func (s *Service) AddContainer(ctx context.Context, actor types.Actor, id uint, parentPath []string, fields content.ContainerFields) (*EditResult, error) {
	return s.edit(ctx, actor, id, "content.add_container", "Nouveau conteneur", func(vc *content.VersionedContent) (content.NodeID, error) {
		parent, err := vc.Resolve(parentPath...)
		if err != nil {
			return 0, err
		}
		return vc.AddContainer(parent, fields)
	})
}

// AddExtract appends an extract below the container at parentPath.
func (s *Service) AddExtract(ctx context.Context, actor types.Actor, id uint, parentPath []string, fields content.ExtractFields) (*EditResult, error) {
	return s.edit(ctx, actor, id, "content.add_extract", "Nouvel extrait", func(vc *content.VersionedContent) (content.NodeID, error) {
		parent, err := vc.Resolve(parentPath...)
		if err != nil {
			return 0, err
		}
		return vc.AddExtract(parent, fields)
	})
}

// UpdateContainer edits the container at path.
func (s *Service) UpdateContainer(ctx context.Context, actor types.Actor, id uint, path []string, lastHash string, fields content.ContainerFields) (*EditResult, error) {
	return s.edit(ctx, actor, id, "content.edit_container", "Modification du conteneur", func(vc *content.VersionedContent) (content.NodeID, error) {
		node, err := vc.Resolve(path...)
		if err != nil {
			return 0, err
		}
		if err := vc.CheckHash(node, lastHash); err != nil {
			return 0, err
		}
		return node, vc.UpdateContainer(node, fields)
	})
}

// UpdateExtract edits the extract at path.
func (s *Service) UpdateExtract(ctx context.Context, actor types.Actor, id uint, path []string, lastHash string, fields content.ExtractFields) (*EditResult, error) {
	return s.edit(ctx, actor, id, "content.edit_extract", "Modification de l'extrait", func(vc *content.VersionedContent) (content.NodeID, error) {
		node, err := vc.Resolve(path...)
		if err != nil {
			return 0, err
		}
		if err := vc.CheckHash(node, lastHash); err != nil {
			return 0, err
		}
		return node, vc.UpdateExtract(node, fields)
	})
}

// DeleteNode removes the node at path from the draft. Earlier commits keep it.
func (s *Service) DeleteNode(ctx context.Context, actor types.Actor, id uint, path []string) (*EditResult, error) {
	return s.edit(ctx, actor, id, "content.delete_node", "Suppression de "+strings.Join(path, "/"), func(vc *content.VersionedContent) (content.NodeID, error) {
		if len(path) == 0 {
			return 0, &types.ValidationError{Message: "the top container cannot be deleted"}
		}
		node, err := vc.Resolve(path...)
		if err != nil {
			return 0, err
		}
		parent, err := vc.Node(node)
		if err != nil {
			return 0, err
		}
		return parent.Parent, vc.Delete(node)
	})
}

// Move directions.
const (
	MoveUp   = "up"
	MoveDown = "down"
)

// MoveNode swaps the node at path with a sibling.
func (s *Service) MoveNode(ctx context.Context, actor types.Actor, id uint, path []string, direction string) (*EditResult, error) {
	return s.edit(ctx, actor, id, "content.move_node", "Déplacement de "+strings.Join(path, "/"), func(vc *content.VersionedContent) (content.NodeID, error) {
		node, err := vc.Resolve(path...)
		if err != nil {
			return 0, err
		}
		switch direction {
		case MoveUp:
			return node, vc.MoveUp(node)
		case MoveDown:
			return node, vc.MoveDown(node)
		default:
			return 0, &types.ValidationError{Message: fmt.Sprintf("unknown direction %q", direction)}
		}
	})
}

// SetBeta opens sha to signed-in readers. The beta branch follows it.
func (s *Service) SetBeta(ctx context.Context, actor types.Actor, id uint, sha string) (*models.PublishableContent, error) {
	c, err := s.getContent(id)
	if err != nil {
		return nil, err
	}
	if err := requireAuthor(actor, c, "content.beta"); err != nil {
		return nil, err
	}
	if sha == "" {
		sha = c.ShaDraft
	}
	if _, err := s.store.UpsertBranch(ctx, storage.BranchRequest{Repo: c.RepoName, Name: BranchBeta, Commit: sha}); err != nil {
		return nil, err
	}
	c.ShaBeta = strPtr(sha)
	if err := s.contents.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

// UnsetBeta closes the beta.
func (s *Service) UnsetBeta(_ context.Context, actor types.Actor, id uint) (*models.PublishableContent, error) {
	c, err := s.getContent(id)
	if err != nil {
		return nil, err
	}
	if err := requireAuthor(actor, c, "content.beta"); err != nil {
		return nil, err
	}
	c.ShaBeta = nil
	if err := s.contents.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

// History lists the commits of a content, newest first.
func (s *Service) History(ctx context.Context, actor types.Actor, id uint, limit int) ([]types.Commit, error) {
	c, err := s.getContent(id)
	if err != nil {
		return nil, err
	}
	if err := s.canRead(actor, c, ""); err != nil {
		return nil, err
	}
	return s.store.ListCommits(ctx, storage.ListCommitsOptions{Repo: c.RepoName, Descending: true, Limit: limit}), nil
}

// Refs lists the lifecycle branches (draft, beta, public) and the publication
// tags of a content.
func (s *Service) Refs(ctx context.Context, actor types.Actor, id uint) ([]types.Branch, []types.Tag, error) {
	c, err := s.getContent(id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.canRead(actor, c, ""); err != nil {
		return nil, nil, err
	}
	return s.store.ListBranches(ctx, c.RepoName), s.store.ListTags(ctx, c.RepoName), nil
}

// Diff compares two commits of a content.
func (s *Service) Diff(ctx context.Context, actor types.Actor, id uint, from, to string) ([]types.FileChange, error) {
	c, err := s.getContent(id)
	if err != nil {
		return nil, err
	}
	if err := s.canRead(actor, c, ""); err != nil {
		return nil, err
	}
	if to == "" {
		to = c.ShaDraft
	}
	return s.store.Diff(ctx, c.RepoName, from, to)
}

// AddAuthor grants authorship to userID.
func (s *Service) AddAuthor(_ context.Context, actor types.Actor, id, userID uint) (*models.PublishableContent, error) {
	c, err := s.getContent(id)
	if err != nil {
		return nil, err
	}
	if err := requireAuthor(actor, c, "content.authors"); err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, &types.ValidationError{Message: "author id is required"}
	}
	if c.IsAuthor(userID) {
		return c, nil
	}
	c.AuthorIDs = append(c.AuthorIDs, userID)
	if err := s.contents.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveAuthor withdraws authorship. The last author cannot leave.
func (s *Service) RemoveAuthor(_ context.Context, actor types.Actor, id, userID uint) (*models.PublishableContent, error) {
	c, err := s.getContent(id)
	if err != nil {
		return nil, err
	}
	if err := requireAuthor(actor, c, "content.authors"); err != nil {
		return nil, err
	}
	if !c.IsAuthor(userID) {
		return nil, &types.NotFoundError{Resource: "author", Key: fmt.Sprint(userID)}
	}
	if len(c.AuthorIDs) == 1 {
		return nil, &types.ValidationError{Message: "a content needs at least one author"}
	}
	kept := c.AuthorIDs[:0]
	for _, a := range c.AuthorIDs {
		if a != userID {
			kept = append(kept, a)
		}
	}
	c.AuthorIDs = kept
	if err := s.contents.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetRetention changes how many commits of a content stay in the hot store.
func (s *Service) SetRetention(ctx context.Context, actor types.Actor, id uint, policy storage.RetentionPolicy) (storage.RetentionPolicy, error) {
	c, err := s.getContent(id)
	if err != nil {
		return storage.RetentionPolicy{}, err
	}
	if err := s.authz.Require(actor, authz.ActionDeleteAny, "retention is managed by staff"); err != nil {
		return storage.RetentionPolicy{}, err
	}
	policy.Repo = c.RepoName
	return s.store.SetPolicy(ctx, policy)
}

// GetRetention returns the retention policy of a content.
func (s *Service) GetRetention(ctx context.Context, actor types.Actor, id uint) (storage.RetentionPolicy, error) {
	c, err := s.getContent(id)
	if err != nil {
		return storage.RetentionPolicy{}, err
	}
	if err := s.canRead(actor, c, ""); err != nil {
		return storage.RetentionPolicy{}, err
	}
	return s.store.GetPolicy(ctx, c.RepoName)
}

// DeleteContent removes a content with its history, publications and
// moderation records. An open validation requires a comment, sent to its
// validator.
func (s *Service) DeleteContent(ctx context.Context, actor types.Actor, id uint, comment string) error {
	c, err := s.getContent(id)
	if err != nil {
		return err
	}
	if !c.IsAuthor(actor.ID) && !s.authz.Can(actor, authz.ActionDeleteAny) {
		return &types.ForbiddenError{Action: authz.ActionDeleteAny, Reason: "only the authors may delete a content"}
	}
	active, err := s.validations.GetActiveByContent(c.ID)
	if err != nil {
		return err
	}
	if active != nil {
		if comment, err = requireComment(comment, "deleting a content under validation"); err != nil {
			return err
		}
		if active.ValidatorID != nil {
			if err := s.notifier.NotifyUser(ctx, *active.ValidatorID,
				fmt.Sprintf("Le contenu « %s » a été supprimé par son auteur : %s", c.Title, comment)); err != nil {
				logger.Warnw("content_delete_notify_failed", "content_id", c.ID, "error", err)
			}
		}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.validations.WithTx(tx).DeleteByContent(c.ID); err != nil {
			return err
		}
		if err := s.publications.WithTx(tx).DeleteByContent(c.ID); err != nil {
			return err
		}
		if err := s.messages.WithTx(tx).DeleteByContent(c.ID); err != nil {
			return err
		}
		return s.contents.WithTx(tx).Delete(c.ID)
	})
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}

	if err := s.pipeline.RemoveContent(ctx, c.ID); err != nil {
		logger.Warnw("content_delete_public_failed", "content_id", c.ID, "error", err)
	}
	if err := s.store.DeleteRepo(ctx, c.RepoName); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete history: %w", err)
	}
	logger.Infow("content_deleted", "content_id", c.ID, "actor_id", actor.ID)
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFoundError
	return errors.As(err, &nf)
}
