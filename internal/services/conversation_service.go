// Package services provides the business logic layer.
//
// This file implements the ConversationService, which manages the lifecycle
// of conversations. It validates and normalizes titles, coordinates
// repository operations for creating, listing (with pagination), renaming,
// and deleting conversations, and exposes the per-conversation enrichment
// listings (recommendations, next steps). Title handling is intentionally
// minimal here because automatic title derivation from the opening message
// happens in TurnService.
//
// Service-level errors (e.g., ErrConversationNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/ymzhao/go-car-advisor/internal/domain"
	"github.com/ymzhao/go-car-advisor/internal/repo"
)

// ConversationRepo defines the repository contract required by
// ConversationService. Implementations are responsible for persistence of
// conversation aggregates.
type ConversationRepo interface {
	CreateConversation(ctx context.Context, db *gorm.DB, userID, sessionID, title, language string) (*domain.Conversation, error)
	GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error)
	CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error)
	ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error)
	UpdateConversationTitle(ctx context.Context, db *gorm.DB, id, title string) error
	DeleteConversation(ctx context.Context, db *gorm.DB, id string) error
}

// gormConversationRepo adapts the free functions in repo to ConversationRepo.
type gormConversationRepo struct{}

func (gormConversationRepo) CreateConversation(ctx context.Context, db *gorm.DB, userID, sessionID, title, language string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, userID, sessionID, title, language)
}
func (gormConversationRepo) GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}
func (gormConversationRepo) ListConversations(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	return repo.ListConversations(ctx, db, userID)
}
func (gormConversationRepo) CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountConversations(ctx, db, userID)
}
func (gormConversationRepo) ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error) {
	return repo.ListConversationsPage(ctx, db, userID, offset, limit)
}
func (gormConversationRepo) UpdateConversationTitle(ctx context.Context, db *gorm.DB, id, title string) error {
	return repo.UpdateConversationTitle(ctx, db, id, title)
}
func (gormConversationRepo) DeleteConversation(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteConversation(ctx, db, id)
}

// ConversationService provides conversation-level operations such as
// creating, listing, renaming, and deleting conversations.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the conversation repository used by this service.
	Repo ConversationRepo

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewConversationService constructs a ConversationService with sane defaults.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{
		DB:          db,
		Repo:        gormConversationRepo{},
		TitleMaxLen: 60,
	}
}

// Create inserts a new conversation owned by userID with the provided title
// and language. Titles are normalized, trimmed, clipped, and a default
// fallback is applied.
func (s *ConversationService) Create(ctx context.Context, userID, sessionID, title, language string) (*domain.Conversation, error) {
	language = canonicalLanguage(language)
	if language == "" {
		language = domain.LangEnglish
	}
	if !domain.ValidLanguage(language) {
		return nil, ErrInvalidLanguage
	}
	title = normalizeTitle(title)
	if title == "" {
		title = "New conversation"
	}
	return s.Repo.CreateConversation(ctx, s.DB, userID, sessionID, s.clip(title), language)
}

// Get fetches a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := s.Repo.GetConversation(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// ListPage returns a page of conversations for a user (paginated). It
// applies defaults for invalid page/pageSize and returns the total count.
func (s *ConversationService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountConversations(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}

	items, err := s.Repo.ListConversationsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// UpdateTitle renames a conversation. Falls back to "Untitled" if the new
// title is blank.
func (s *ConversationService) UpdateTitle(ctx context.Context, id, title string) error {
	title = normalizeTitle(title)
	if title == "" {
		title = "Untitled"
	}
	if err := s.Repo.UpdateConversationTitle(ctx, s.DB, id, s.clip(title)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// Delete soft-deletes a conversation.
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	if err := s.Repo.DeleteConversation(ctx, s.DB, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// ListMessagesPage returns paginated messages for a conversation.
func (s *ConversationService) ListMessagesPage(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), conversationID, offset, pageSize)
	return items, total, err
}

// ListRecommendations returns all recommendations derived for a conversation.
func (s *ConversationService) ListRecommendations(ctx context.Context, conversationID string) ([]domain.Recommendation, error) {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}
	return repo.ListRecommendations(s.DB.WithContext(ctx), conversationID)
}

// ListNextSteps returns all suggested next steps for a conversation.
func (s *ConversationService) ListNextSteps(ctx context.Context, conversationID string) ([]domain.NextStep, error) {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}
	return repo.ListNextSteps(s.DB.WithContext(ctx), conversationID)
}

// clip truncates a title to the configured maximum rune length.
func (s *ConversationService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	s = whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
	return s
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
