package repository

import (
	"errors"
	"slices"

	"gorm.io/gorm"

	"github.com/onexay/contentvs/internal/models"
)

// MessageRepository stores the moderation conversation of each content.
type MessageRepository interface {
	EnsureTopic(contentID uint, title string, participants []uint) (*models.PrivateTopic, error)
	GetTopic(contentID uint) (*models.PrivateTopic, error)
	AddPost(topicID, authorID uint, text string) (*models.PrivatePost, error)
	ListPosts(contentID uint) ([]models.PrivatePost, error)
	DeleteByContent(contentID uint) error
	WithTx(tx *gorm.DB) *GormMessageRepository
}

// GormMessageRepository is the gorm implementation.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a message repository.
func NewMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormMessageRepository) WithTx(tx *gorm.DB) *GormMessageRepository {
	if tx == nil {
		return r
	}
	return &GormMessageRepository{db: tx}
}

// GetTopic returns the moderation topic of a content, or nil.
func (r *GormMessageRepository) GetTopic(contentID uint) (*models.PrivateTopic, error) {
	var topic models.PrivateTopic
	if err := r.db.Where("content_id = ?", contentID).First(&topic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &topic, nil
}

// EnsureTopic returns the content's topic, creating it or adding missing
// participants.
func (r *GormMessageRepository) EnsureTopic(contentID uint, title string, participants []uint) (*models.PrivateTopic, error) {
	topic, err := r.GetTopic(contentID)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		topic = &models.PrivateTopic{ContentID: contentID, Title: title, ParticipantIDs: uniqueIDs(participants)}
		if err := r.db.Create(topic).Error; err != nil {
			return nil, err
		}
		return topic, nil
	}
	merged := uniqueIDs(append(slices.Clone(topic.ParticipantIDs), participants...))
	if len(merged) != len(topic.ParticipantIDs) {
		topic.ParticipantIDs = merged
		if err := r.db.Save(topic).Error; err != nil {
			return nil, err
		}
	}
	return topic, nil
}

// AddPost appends a message to a topic.
func (r *GormMessageRepository) AddPost(topicID, authorID uint, text string) (*models.PrivatePost, error) {
	post := &models.PrivatePost{TopicID: topicID, AuthorID: authorID, Text: text}
	if err := r.db.Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// ListPosts returns the conversation of a content, oldest first.
func (r *GormMessageRepository) ListPosts(contentID uint) ([]models.PrivatePost, error) {
	var posts []models.PrivatePost
	err := r.db.Joins("JOIN private_topics ON private_topics.id = private_posts.topic_id").
		Where("private_topics.content_id = ?", contentID).
		Order("private_posts.id asc").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// DeleteByContent removes the topic and its posts.
func (r *GormMessageRepository) DeleteByContent(contentID uint) error {
	topic, err := r.GetTopic(contentID)
	if err != nil || topic == nil {
		return err
	}
	if err := r.db.Where("topic_id = ?", topic.ID).Delete(&models.PrivatePost{}).Error; err != nil {
		return err
	}
	return r.db.Delete(topic).Error
}

func uniqueIDs(ids []uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
