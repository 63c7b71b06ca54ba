package models

import (
	"slices"
	"time"
)

// PublishableContent is the relational anchor of one content. It owns a
// repository in the commit store and only points into its history.
type PublishableContent struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	Slug          string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"slug"`
	Title         string    `gorm:"type:varchar(200);not null" json:"title"`
	Description   string    `gorm:"type:varchar(500)" json:"description"`
	Type          string    `gorm:"type:varchar(20);not null;index" json:"type"`
	Licence       string    `gorm:"type:varchar(80)" json:"licence"`
	AuthorIDs     []uint    `gorm:"serializer:json" json:"author_ids"`
	RepoName      string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	ShaDraft      string    `gorm:"type:varchar(64);not null" json:"sha_draft"`
	ShaBeta       *string   `gorm:"type:varchar(64)" json:"sha_beta,omitempty"`
	ShaValidation *string   `gorm:"type:varchar(64)" json:"sha_validation,omitempty"`
	ShaPublic     *string   `gorm:"type:varchar(64)" json:"sha_public,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName sets the table name.
func (PublishableContent) TableName() string {
	return "publishable_contents"
}

// IsAuthor reports whether userID is among the current authors.
func (c *PublishableContent) IsAuthor(userID uint) bool {
	return userID != 0 && slices.Contains(c.AuthorIDs, userID)
}

// Validation statuses.
const (
	ValidationPending         = "PENDING"
	ValidationPendingReserved = "PENDING_V"
	ValidationAccept          = "ACCEPT"
	ValidationReject          = "REJECT"
	ValidationCancel          = "CANCEL"
)

// Validation is one moderation cycle of a content.
type Validation struct {
	ID               uint       `gorm:"primarykey" json:"id"`
	ContentID        uint       `gorm:"not null;index" json:"content_id"`
	Version          string     `gorm:"type:varchar(64);not null" json:"version"`
	Status           string     `gorm:"type:varchar(10);not null;index" json:"status"`
	CommentAuthor    string     `gorm:"type:text" json:"comment_author"`
	ValidatorID      *uint      `gorm:"index" json:"validator_id,omitempty"`
	CommentValidator string     `gorm:"type:text" json:"comment_validator"`
	DatePropose      time.Time  `json:"date_propose"`
	DateReserve      *time.Time `json:"date_reserve,omitempty"`
	DateValidation   *time.Time `json:"date_validation,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName sets the table name.
func (Validation) TableName() string {
	return "validations"
}

// IsActive reports whether the cycle is still open.
func (v *Validation) IsActive() bool {
	return v.Status == ValidationPending || v.Status == ValidationPendingReserved
}

// PublishedContent records one publication event.
type PublishedContent struct {
	ID                uint       `gorm:"primarykey" json:"id"`
	ContentID         uint       `gorm:"not null;index" json:"content_id"`
	ContentType       string     `gorm:"type:varchar(20);not null" json:"content_type"`
	ContentPublicSlug string     `gorm:"type:varchar(100);not null;index" json:"content_public_slug"`
	ShaPublic         string     `gorm:"type:varchar(64);not null" json:"sha_public"`
	AuthorIDs         []uint     `gorm:"serializer:json" json:"author_ids"`
	PublicationDate   time.Time  `gorm:"index" json:"publication_date"`
	UpdateDate        *time.Time `json:"update_date,omitempty"`
	MustRedirect      bool       `gorm:"default:false;index" json:"must_redirect"`
	ProdPath          string     `gorm:"type:varchar(500)" json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName sets the table name.
func (PublishedContent) TableName() string {
	return "published_contents"
}

// PrivateTopic is the moderation conversation attached to a content.
type PrivateTopic struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	ContentID      uint      `gorm:"not null;uniqueIndex" json:"content_id"`
	Title          string    `gorm:"type:varchar(200);not null" json:"title"`
	ParticipantIDs []uint    `gorm:"serializer:json" json:"participant_ids"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName sets the table name.
func (PrivateTopic) TableName() string {
	return "private_topics"
}

// PrivatePost is one message of a moderation conversation.
type PrivatePost struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	TopicID   uint      `gorm:"not null;index" json:"topic_id"`
	AuthorID  uint      `gorm:"not null" json:"author_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName sets the table name.
func (PrivatePost) TableName() string {
	return "private_posts"
}
