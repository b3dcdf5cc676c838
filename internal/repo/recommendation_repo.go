// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Recommendation
// and NextStep rows, both derived from a single assistant turn.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ymzhao/go-car-advisor/internal/domain"
)

// CreateRecommendation inserts a recommendation row. The owning assistant
// message must already exist; with foreign keys enabled the database rejects
// orphaned rows.
func CreateRecommendation(db *gorm.DB, conversationID, messageID, carID string, score int, reasonEN, reasonZH string) (*domain.Recommendation, error) {
	r := &domain.Recommendation{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		MessageID:      messageID,
		CarID:          carID,
		MatchScore:     score,
		ReasonEN:       reasonEN,
		ReasonZH:       reasonZH,
		CreatedAt:      time.Now().UTC(),
	}
	return r, db.Create(r).Error
}

// ListRecommendations returns all recommendations for a conversation,
// newest first, best match first within a turn.
func ListRecommendations(db *gorm.DB, conversationID string) ([]domain.Recommendation, error) {
	var out []domain.Recommendation
	err := db.
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, match_score DESC").
		Find(&out).Error
	return out, err
}

// ListRecommendationsForMessage returns the recommendations derived from one
// assistant message, best match first.
func ListRecommendationsForMessage(db *gorm.DB, messageID string) ([]domain.Recommendation, error) {
	var out []domain.Recommendation
	err := db.
		Where("message_id = ?", messageID).
		Order("match_score DESC").
		Find(&out).Error
	return out, err
}

// CreateNextStep inserts a next-step row for an assistant turn.
func CreateNextStep(db *gorm.DB, ns *domain.NextStep) (*domain.NextStep, error) {
	if ns.ID == "" {
		ns.ID = uuid.NewString()
	}
	if ns.CreatedAt.IsZero() {
		ns.CreatedAt = time.Now().UTC()
	}
	return ns, db.Create(ns).Error
}

// ListNextStepsForMessage returns the next steps derived from one assistant
// message, higher priority first.
func ListNextStepsForMessage(db *gorm.DB, messageID string) ([]domain.NextStep, error) {
	var out []domain.NextStep
	err := db.
		Where("message_id = ?", messageID).
		Order("CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END").
		Find(&out).Error
	return out, err
}

// ListNextSteps returns all next steps for a conversation, newest first,
// higher priority first within a turn (high < low lexicographically, so the
// explicit CASE keeps the intended order).
func ListNextSteps(db *gorm.DB, conversationID string) ([]domain.NextStep, error) {
	var out []domain.NextStep
	err := db.
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Order("CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END").
		Find(&out).Error
	return out, err
}
