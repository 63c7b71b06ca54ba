// Package service is the content engine: drafting, moderation and publication
// of versioned contents.
package service

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/onexay/contentvs/internal/authz"
	"github.com/onexay/contentvs/internal/config"
	"github.com/onexay/contentvs/internal/content"
	"github.com/onexay/contentvs/internal/models"
	"github.com/onexay/contentvs/internal/publication"
	"github.com/onexay/contentvs/internal/queue"
	"github.com/onexay/contentvs/internal/repository"
	"github.com/onexay/contentvs/internal/storage"
	"github.com/onexay/contentvs/internal/types"
)

// Branches maintained in every content history besides the draft.
const (
	BranchBeta   = "beta"
	BranchPublic = "public"
)

// Deps groups what the engine is built from.
type Deps struct {
	DB           *gorm.DB
	Store        storage.Store
	Authz        *authz.Service
	Pipeline     *publication.Pipeline
	Guard        publication.Guard
	Queue        *queue.Client
	Notifier     Notifier
	Content      content.Options
	ExtraPolicy  string
	ExtraFormats []string
	Clock        func() time.Time
}

// Service implements the content engine operations.
type Service struct {
	db           *gorm.DB
	store        storage.Store
	contents     *repository.GormContentRepository
	validations  *repository.GormValidationRepository
	publications *repository.GormPublicationRepository
	messages     *repository.GormMessageRepository
	authz        *authz.Service
	pipeline     *publication.Pipeline
	guard        publication.Guard
	queue        *queue.Client
	notifier     Notifier
	opts         content.Options
	extraPolicy  string
	extraFormats []string
	clock        func() time.Time
}

// New builds the engine. Missing optional dependencies get in-process
// defaults.
func New(deps Deps) (*Service, error) {
	if deps.DB == nil || deps.Store == nil || deps.Pipeline == nil {
		return nil, fmt.Errorf("service requires a database, a store and a pipeline")
	}
	s := &Service{
		db:           deps.DB,
		store:        deps.Store,
		contents:     repository.NewContentRepository(deps.DB),
		validations:  repository.NewValidationRepository(deps.DB),
		publications: repository.NewPublicationRepository(deps.DB),
		messages:     repository.NewMessageRepository(deps.DB),
		authz:        deps.Authz,
		pipeline:     deps.Pipeline,
		guard:        deps.Guard,
		queue:        deps.Queue,
		notifier:     deps.Notifier,
		opts:         deps.Content,
		extraPolicy:  strings.ToUpper(strings.TrimSpace(deps.ExtraPolicy)),
		extraFormats: deps.ExtraFormats,
		clock:        deps.Clock,
	}
	if s.authz == nil {
		az, err := authz.NewService(nil)
		if err != nil {
			return nil, err
		}
		s.authz = az
	}
	if s.guard == nil {
		s.guard = publication.NewMemoryGuard()
	}
	if s.queue == nil {
		s.queue = queue.NewClient(nil)
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{}
	}
	if s.opts == (content.Options{}) {
		s.opts = content.DefaultOptions()
	}
	if s.extraPolicy == "" {
		s.extraPolicy = config.ExtraPolicySync
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

// Authz exposes the role checks to the transport layer.
func (s *Service) Authz() *authz.Service {
	return s.authz
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// getContent loads a content row or fails with NotFound.
func (s *Service) getContent(id uint) (*models.PublishableContent, error) {
	c, err := s.contents.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, &types.NotFoundError{Resource: "content", Key: fmt.Sprint(id)}
	}
	return c, nil
}

func (s *Service) getValidation(id uint) (*models.Validation, error) {
	v, err := s.validations.GetByID(id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &types.NotFoundError{Resource: "validation", Key: fmt.Sprint(id)}
	}
	return v, nil
}

func requireAuthor(actor types.Actor, c *models.PublishableContent, action string) error {
	if actor.IsAnonymous() {
		return &types.ForbiddenError{Action: action, Reason: "authentication required"}
	}
	if !c.IsAuthor(actor.ID) {
		return &types.ForbiddenError{Action: action, Reason: "only the authors may do this"}
	}
	return nil
}

func requireComment(comment, what string) (string, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return "", &types.ValidationError{Message: what + " requires a comment"}
	}
	return comment, nil
}

func strPtr(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
