package service

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"github.com/onexay/contentvs/internal/authz"
	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/models"
	"github.com/onexay/contentvs/internal/queue"
	"github.com/onexay/contentvs/internal/types"
)

func closedValidation(v *models.Validation) error {
	return &types.ConflictError{
		Resource: "validation",
		Key:      fmt.Sprint(v.ID),
		Hint:     "the validation is already " + v.Status,
	}
}

// postModeration writes text into the moderation topic of c. Participants are
// the authors plus extra.
func (s *Service) postModeration(tx *gorm.DB, c *models.PublishableContent, from uint, extra []uint, text string) error {
	msgs := s.messages.WithTx(tx)
	participants := append(slices.Clone(c.AuthorIDs), extra...)
	topic, err := msgs.EnsureTopic(c.ID, fmt.Sprintf("Validation de « %s »", c.Title), participants)
	if err != nil {
		return fmt.Errorf("moderation topic: %w", err)
	}
	if _, err := msgs.AddPost(topic.ID, from, text); err != nil {
		return fmt.Errorf("moderation post: %w", err)
	}
	return nil
}

// Ask opens a validation cycle on sha (the draft when empty). Any open cycle
// of the content is cancelled first.
func (s *Service) Ask(ctx context.Context, actor types.Actor, contentID uint, sha, comment string) (*models.Validation, error) {
	c, err := s.getContent(contentID)
	if err != nil {
		return nil, err
	}
	if err := requireAuthor(actor, c, "validation.ask"); err != nil {
		return nil, err
	}
	if comment, err = requireComment(comment, "asking for validation"); err != nil {
		return nil, err
	}
	if sha == "" {
		sha = c.ShaDraft
	}
	if _, err := s.store.GetCommit(ctx, c.RepoName, sha); err != nil {
		return nil, err
	}

	previous, err := s.validations.GetActiveByContent(c.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	v := &models.Validation{
		ContentID:     c.ID,
		Version:       sha,
		Status:        models.ValidationPending,
		CommentAuthor: comment,
		DatePropose:   now,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.validations.WithTx(tx).CancelActive(c.ID, now); err != nil {
			return err
		}
		if err := s.validations.WithTx(tx).Create(v); err != nil {
			return err
		}
		c.ShaValidation = strPtr(sha)
		if err := s.contents.WithTx(tx).Update(c); err != nil {
			return err
		}
		if previous != nil && previous.ValidatorID != nil {
			text := fmt.Sprintf("Une nouvelle version a été proposée à la validation, la réservation précédente est annulée.\n\n%s", comment)
			return s.postModeration(tx, c, actor.ID, []uint{*previous.ValidatorID}, text)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ask validation: %w", err)
	}
	logger.Infow("validation_asked", "content_id", c.ID, "validation_id", v.ID, "version", sha)
	s.announce(ctx, c, v)
	return v, nil
}

// announce tells moderators about a new request, through the queue when it is
// enabled.
func (s *Service) announce(ctx context.Context, c *models.PublishableContent, v *models.Validation) {
	if s.queue.Enabled() {
		err := s.queue.EnqueueNotifyModerators(queue.NotifyModeratorsPayload{ContentID: c.ID, ValidationID: v.ID})
		if err == nil {
			return
		}
		logger.Warnw("validation_notify_enqueue_failed", "validation_id", v.ID, "error", err)
	}
	if err := s.notifier.NotifyModerators(ctx, c, v); err != nil {
		logger.Warnw("validation_notify_failed", "validation_id", v.ID, "error", err)
	}
}

// NotifyModerators sends the announcement of an open validation. Closed
// validations are skipped.
func (s *Service) NotifyModerators(ctx context.Context, validationID uint) error {
	v, err := s.getValidation(validationID)
	if err != nil {
		return err
	}
	if !v.IsActive() {
		return nil
	}
	c, err := s.getContent(v.ContentID)
	if err != nil {
		return err
	}
	return s.notifier.NotifyModerators(ctx, c, v)
}

// Reserve claims a pending validation for the actor. Reserving a validation
// the actor already holds releases it.
func (s *Service) Reserve(_ context.Context, actor types.Actor, validationID uint) (*models.Validation, error) {
	if err := s.authz.Require(actor, authz.ActionReserve, "only validators may reserve"); err != nil {
		return nil, err
	}
	v, err := s.getValidation(validationID)
	if err != nil {
		return nil, err
	}
	if !v.IsActive() {
		return nil, closedValidation(v)
	}

	switch {
	case v.Status == models.ValidationPendingReserved && v.ValidatorID != nil && *v.ValidatorID == actor.ID:
		v.Status = models.ValidationPending
		v.ValidatorID = nil
		v.DateReserve = nil
	case v.Status == models.ValidationPendingReserved:
		return nil, &types.ConflictError{
			Resource: "validation",
			Key:      fmt.Sprint(v.ID),
			Hint:     "already reserved by another validator",
		}
	default:
		now := s.now()
		id := actor.ID
		v.Status = models.ValidationPendingReserved
		v.ValidatorID = &id
		v.DateReserve = &now
	}
	if err := s.validations.Update(v); err != nil {
		return nil, err
	}
	logger.Infow("validation_reserved", "validation_id", v.ID, "status", v.Status, "actor_id", actor.ID)
	return v, nil
}

// reservedBy loads an open validation held by the actor.
func (s *Service) reservedBy(actor types.Actor, validationID uint, action string) (*models.Validation, error) {
	v, err := s.getValidation(validationID)
	if err != nil {
		return nil, err
	}
	if !v.IsActive() {
		return nil, closedValidation(v)
	}
	if v.Status != models.ValidationPendingReserved || v.ValidatorID == nil || *v.ValidatorID != actor.ID {
		return nil, &types.ForbiddenError{Action: action, Reason: "the validation must be reserved by you"}
	}
	return v, nil
}

// stillReserved re-reads a validation inside tx so that two decisions on the
// same reservation cannot both be recorded.
func (s *Service) stillReserved(tx *gorm.DB, validationID uint) error {
	v, err := s.validations.WithTx(tx).GetByID(validationID)
	if err != nil {
		return err
	}
	if v == nil {
		return &types.NotFoundError{Resource: "validation", Key: fmt.Sprint(validationID)}
	}
	if v.Status != models.ValidationPendingReserved {
		return closedValidation(v)
	}
	return nil
}

// AcceptInput carries the decision of a validator.
type AcceptInput struct {
	Comment string
	IsMajor bool
}

// Accept publishes the version under validation.
func (s *Service) Accept(ctx context.Context, actor types.Actor, validationID uint, in AcceptInput) (*models.PublishedContent, error) {
	if err := s.authz.Require(actor, authz.ActionAccept, "only validators may accept"); err != nil {
		return nil, err
	}
	comment, err := requireComment(in.Comment, "accepting")
	if err != nil {
		return nil, err
	}
	v, err := s.reservedBy(actor, validationID, authz.ActionAccept)
	if err != nil {
		return nil, err
	}
	c, err := s.getContent(v.ContentID)
	if err != nil {
		return nil, err
	}

	ready := func() error {
		fresh, err := s.reservedBy(actor, validationID, authz.ActionAccept)
		if err != nil {
			return err
		}
		v = fresh
		return nil
	}
	published, err := s.publish(ctx, c, v.Version, in.IsMajor, ready, func(tx *gorm.DB) error {
		if err := s.stillReserved(tx, v.ID); err != nil {
			return err
		}
		now := s.now()
		v.Status = models.ValidationAccept
		v.CommentValidator = comment
		v.DateValidation = &now
		if err := s.validations.WithTx(tx).Update(v); err != nil {
			return err
		}
		text := fmt.Sprintf("Félicitations, « %s » a été publié.\n\n%s", c.Title, comment)
		return s.postModeration(tx, c, actor.ID, []uint{actor.ID}, text)
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("validation_accepted", "validation_id", v.ID, "content_id", c.ID, "is_major", in.IsMajor)
	return published, nil
}

// Reject closes a reserved validation without publishing.
func (s *Service) Reject(ctx context.Context, actor types.Actor, validationID uint, comment string) (*models.Validation, error) {
	if err := s.authz.Require(actor, authz.ActionReject, "only validators may reject"); err != nil {
		return nil, err
	}
	comment, err := requireComment(comment, "rejecting")
	if err != nil {
		return nil, err
	}
	v, err := s.reservedBy(actor, validationID, authz.ActionReject)
	if err != nil {
		return nil, err
	}
	c, err := s.getContent(v.ContentID)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.stillReserved(tx, v.ID); err != nil {
			return err
		}
		now := s.now()
		v.Status = models.ValidationReject
		v.CommentValidator = comment
		v.DateValidation = &now
		if err := s.validations.WithTx(tx).Update(v); err != nil {
			return err
		}
		c.ShaValidation = nil
		if err := s.contents.WithTx(tx).Update(c); err != nil {
			return err
		}
		text := fmt.Sprintf("Désolé, « %s » n'a malheureusement pas passé l'étape de validation.\n\n%s", c.Title, comment)
		return s.postModeration(tx, c, actor.ID, []uint{actor.ID}, text)
	})
	if err != nil {
		return nil, fmt.Errorf("reject validation: %w", err)
	}
	for _, author := range c.AuthorIDs {
		if err := s.notifier.NotifyUser(ctx, author, fmt.Sprintf("« %s » a été refusé", c.Title)); err != nil {
			logger.Warnw("validation_reject_notify_failed", "validation_id", v.ID, "user_id", author, "error", err)
		}
	}
	logger.Infow("validation_rejected", "validation_id", v.ID, "content_id", c.ID)
	return v, nil
}

// Cancel lets an author withdraw an open request. The validator holding it,
// if any, is told in the moderation topic.
func (s *Service) Cancel(_ context.Context, actor types.Actor, validationID uint, comment string) (*models.Validation, error) {
	v, err := s.getValidation(validationID)
	if err != nil {
		return nil, err
	}
	c, err := s.getContent(v.ContentID)
	if err != nil {
		return nil, err
	}
	if err := requireAuthor(actor, c, "validation.cancel"); err != nil {
		return nil, err
	}
	if !v.IsActive() {
		return nil, closedValidation(v)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		now := s.now()
		v.Status = models.ValidationCancel
		v.DateValidation = &now
		if err := s.validations.WithTx(tx).Update(v); err != nil {
			return err
		}
		c.ShaValidation = nil
		if err := s.contents.WithTx(tx).Update(c); err != nil {
			return err
		}
		if v.ValidatorID == nil {
			return nil
		}
		text := fmt.Sprintf("La demande de validation de « %s » a été annulée par son auteur.", c.Title)
		if comment != "" {
			text += "\n\n" + comment
		}
		return s.postModeration(tx, c, actor.ID, []uint{*v.ValidatorID}, text)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel validation: %w", err)
	}
	logger.Infow("validation_cancelled", "validation_id", v.ID, "content_id", c.ID)
	return v, nil
}

// Revoke takes a publication offline and reopens a validation on the version
// that was public. sha, when set, must be that version.
func (s *Service) Revoke(ctx context.Context, actor types.Actor, contentID uint, comment, sha string) (*models.Validation, error) {
	if err := s.authz.Require(actor, authz.ActionRevoke, "only staff may revoke"); err != nil {
		return nil, err
	}
	c, err := s.getContent(contentID)
	if err != nil {
		return nil, err
	}
	if c.IsAuthor(actor.ID) {
		return nil, &types.ForbiddenError{Action: authz.ActionRevoke, Reason: "authors cannot revoke their own content"}
	}
	if comment, err = requireComment(comment, "revoking"); err != nil {
		return nil, err
	}
	if c.ShaPublic == nil {
		return nil, &types.ValidationError{Message: "the content is not published"}
	}
	public := *c.ShaPublic
	if sha != "" && sha != public {
		return nil, &types.ConflictError{Resource: "publication", Key: sha, Hint: "this version is no longer the public one"}
	}

	release, err := s.guard.Acquire(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.publications.GetCurrent(c.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	v := &models.Validation{
		ContentID:        c.ID,
		Version:          public,
		Status:           models.ValidationPending,
		CommentValidator: comment,
		DatePropose:      now,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if current != nil {
			if err := s.publications.WithTx(tx).Delete(current.ID); err != nil {
				return err
			}
		}
		if _, err := s.validations.WithTx(tx).CancelActive(c.ID, now); err != nil {
			return err
		}
		if err := s.validations.WithTx(tx).Create(v); err != nil {
			return err
		}
		c.ShaPublic = nil
		c.ShaValidation = strPtr(public)
		if err := s.contents.WithTx(tx).Update(c); err != nil {
			return err
		}
		text := fmt.Sprintf("« %s » a été dépublié.\n\n%s", c.Title, comment)
		return s.postModeration(tx, c, actor.ID, []uint{actor.ID}, text)
	})
	if err != nil {
		return nil, fmt.Errorf("revoke publication: %w", err)
	}
	if current != nil {
		if err := s.pipeline.Remove(ctx, c.ID, current.ContentPublicSlug); err != nil {
			logger.Warnw("publication_remove_failed", "content_id", c.ID, "slug", current.ContentPublicSlug, "error", err)
		}
	}
	logger.Infow("validation_revoked", "content_id", c.ID, "validation_id", v.ID, "actor_id", actor.ID)
	return v, nil
}

// ListValidations returns the cycles of a content to its authors and staff.
func (s *Service) ListValidations(_ context.Context, actor types.Actor, contentID uint) ([]models.Validation, error) {
	c, err := s.getContent(contentID)
	if err != nil {
		return nil, err
	}
	if err := s.canRead(actor, c, ""); err != nil {
		return nil, err
	}
	return s.validations.ListByContent(c.ID)
}

// ModerationQueue lists open validations for validators.
func (s *Service) ModerationQueue(_ context.Context, actor types.Actor) ([]models.Validation, error) {
	if err := s.authz.Require(actor, authz.ActionReserve, "only validators see the queue"); err != nil {
		return nil, err
	}
	return s.validations.ListActive()
}

// ModerationMessages returns the moderation conversation of a content.
func (s *Service) ModerationMessages(_ context.Context, actor types.Actor, contentID uint) ([]models.PrivatePost, error) {
	c, err := s.getContent(contentID)
	if err != nil {
		return nil, err
	}
	if err := s.canRead(actor, c, ""); err != nil {
		return nil, err
	}
	return s.messages.ListPosts(c.ID)
}
