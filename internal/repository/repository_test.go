package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/onexay/contentvs/internal/models"
)

func setupRepositoryTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}

func createContent(t *testing.T, repo *GormContentRepository, slug string) *models.PublishableContent {
	t.Helper()
	content := &models.PublishableContent{
		Slug:      slug,
		Title:     slug,
		Type:      "TUTORIAL",
		AuthorIDs: []uint{1, 2},
		RepoName:  uuid.NewString(),
		ShaDraft:  "abc",
	}
	if err := repo.Create(content); err != nil {
		t.Fatalf("create content failed: %v", err)
	}
	return content
}

func TestContentRepository(t *testing.T) {
	db := setupRepositoryTest(t)
	repo := NewContentRepository(db)
	content := createContent(t, repo, "foo")

	got, err := repo.GetBySlug("foo")
	if err != nil || got == nil {
		t.Fatalf("get by slug failed: %v", err)
	}
	if len(got.AuthorIDs) != 2 || got.AuthorIDs[1] != 2 {
		t.Fatalf("author ids not round tripped: %v", got.AuthorIDs)
	}
	if !got.IsAuthor(1) || got.IsAuthor(3) {
		t.Fatalf("unexpected author check")
	}

	exists, err := repo.SlugExists("foo", 0)
	if err != nil || !exists {
		t.Fatalf("expected slug to exist: %v", err)
	}
	exists, err = repo.SlugExists("foo", content.ID)
	if err != nil || exists {
		t.Fatalf("expected slug to be free for its owner: %v", err)
	}

	sha := "def"
	got.ShaPublic = &sha
	if err := repo.Update(got); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got.ShaPublic = nil
	if err := repo.Update(got); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	reloaded, _ := repo.GetByID(content.ID)
	if reloaded.ShaPublic != nil {
		t.Fatalf("expected sha_public to be cleared")
	}

	if err := repo.Delete(content.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	missing, err := repo.GetByID(content.ID)
	if err != nil || missing != nil {
		t.Fatalf("expected nil after delete, got %v %v", missing, err)
	}
}

func TestValidationRepositoryActiveCycle(t *testing.T) {
	db := setupRepositoryTest(t)
	repo := NewValidationRepository(db)

	first := &models.Validation{ContentID: 7, Version: "a", Status: models.ValidationPending, DatePropose: time.Now()}
	if err := repo.Create(first); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	active, err := repo.GetActiveByContent(7)
	if err != nil || active == nil || active.ID != first.ID {
		t.Fatalf("expected the pending validation, got %v %v", active, err)
	}

	n, err := repo.CancelActive(7, time.Now())
	if err != nil || n != 1 {
		t.Fatalf("expected one cancelled validation, got %d %v", n, err)
	}
	active, err = repo.GetActiveByContent(7)
	if err != nil || active != nil {
		t.Fatalf("expected no active validation, got %v %v", active, err)
	}

	cancelled, _ := repo.GetByID(first.ID)
	if cancelled.Status != models.ValidationCancel || cancelled.DateValidation == nil {
		t.Fatalf("unexpected cancelled row: %+v", cancelled)
	}

	queue, err := repo.ListActive()
	if err != nil || len(queue) != 0 {
		t.Fatalf("expected empty queue, got %d %v", len(queue), err)
	}
}

func TestPublicationRepositoryRedirects(t *testing.T) {
	db := setupRepositoryTest(t)
	repo := NewPublicationRepository(db)

	old := &models.PublishedContent{ContentID: 3, ContentType: "ARTICLE", ContentPublicSlug: "old", ShaPublic: "a", PublicationDate: time.Now()}
	if err := repo.Create(old); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	fresh := &models.PublishedContent{ContentID: 3, ContentType: "ARTICLE", ContentPublicSlug: "new", ShaPublic: "b", PublicationDate: old.PublicationDate}
	if err := repo.Create(fresh); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.MarkRedirect(3, fresh.ID); err != nil {
		t.Fatalf("mark redirect failed: %v", err)
	}

	current, err := repo.GetCurrent(3)
	if err != nil || current == nil || current.ID != fresh.ID {
		t.Fatalf("expected the fresh publication to be current, got %v %v", current, err)
	}
	bySlug, err := repo.GetLatestBySlug(3, "old")
	if err != nil || bySlug == nil || !bySlug.MustRedirect {
		t.Fatalf("expected old slug to redirect, got %+v %v", bySlug, err)
	}
	first, _ := repo.GetFirst(3)
	if first.ID != old.ID {
		t.Fatalf("expected first publication to be the old one")
	}

	if err := repo.DeleteByContent(3); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	rows, _ := repo.ListByContent(3)
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestMessageRepository(t *testing.T) {
	db := setupRepositoryTest(t)
	repo := NewMessageRepository(db)

	topic, err := repo.EnsureTopic(5, "Moderation", []uint{1, 1, 2})
	if err != nil {
		t.Fatalf("ensure topic failed: %v", err)
	}
	if len(topic.ParticipantIDs) != 2 {
		t.Fatalf("expected deduplicated participants, got %v", topic.ParticipantIDs)
	}
	again, err := repo.EnsureTopic(5, "ignored", []uint{9})
	if err != nil || again.ID != topic.ID || len(again.ParticipantIDs) != 3 {
		t.Fatalf("expected the same topic with a new participant, got %+v %v", again, err)
	}

	if _, err := repo.AddPost(topic.ID, 9, "first"); err != nil {
		t.Fatalf("add post failed: %v", err)
	}
	if _, err := repo.AddPost(topic.ID, 1, "second"); err != nil {
		t.Fatalf("add post failed: %v", err)
	}
	posts, err := repo.ListPosts(5)
	if err != nil || len(posts) != 2 || posts[0].Text != "first" {
		t.Fatalf("unexpected posts: %+v %v", posts, err)
	}

	if err := repo.DeleteByContent(5); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	posts, _ = repo.ListPosts(5)
	if len(posts) != 0 {
		t.Fatalf("expected no posts after delete")
	}
}
