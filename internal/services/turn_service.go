// Package services provides the business logic layer.
//
// This file implements the TurnService, the orchestrator that owns one
// advisory turn end to end: it resolves or creates the conversation,
// persists the inbound user message, builds bounded model context, invokes
// the model (single-shot or streamed), derives recommendations and next
// steps from the reply, and persists the assistant message plus its derived
// rows in one transaction.
//
// Failure semantics: the user message write is the only fatal persistence
// step. A model failure produces a localized fallback reply with an error
// flag in metadata; the turn still succeeds. Enrichment and assistant-side
// persistence failures are logged and degrade the response instead of
// failing a turn that already has an answer.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// conversation/user identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ymzhao/go-car-advisor/internal/domain"
	"github.com/ymzhao/go-car-advisor/internal/llm"
	"github.com/ymzhao/go-car-advisor/internal/prompt"
	"github.com/ymzhao/go-car-advisor/internal/recommend"
	"github.com/ymzhao/go-car-advisor/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// defaultTitleNew is the placeholder eligible for auto-titling.
	defaultTitleNew      = "New conversation"
	defaultTitleUntitled = "Untitled"

	// derivedTitleRunes bounds titles derived from the opening message.
	derivedTitleRunes = 50
)

// ModelClient is the generation contract the orchestrator depends on. Both
// llm.Client and llm.SingleShotStreamer satisfy it.
type ModelClient interface {
	Generate(ctx context.Context, p prompt.Prompt) (string, error)
	GenerateStream(ctx context.Context, p prompt.Prompt, fn func(fragment string) error) (string, error)
	Name() string
}

// TurnRequest is one inbound user utterance plus its routing context.
type TurnRequest struct {
	ConversationID string
	UserID         string
	SessionID      string
	Language       string
	Message        string
	Preferences    *prompt.Preferences
	ViewedCar      *prompt.ViewedCar
}

// TurnMeta is the response metadata for one turn.
type TurnMeta struct {
	Model         string `json:"model,omitempty"`
	TokenEstimate int    `json:"token_estimate,omitempty"`
	Error         bool   `json:"error,omitempty"`
}

// TurnResult is the unified response for one turn.
type TurnResult struct {
	ConversationID  string                  `json:"conversation_id"`
	MessageID       string                  `json:"message_id,omitempty"`
	Text            string                  `json:"text"`
	Timestamp       time.Time               `json:"timestamp"`
	Recommendations []domain.Recommendation `json:"recommendations"`
	NextSteps       []domain.NextStep       `json:"next_steps"`
	Meta            TurnMeta                `json:"meta"`
}

// TurnService orchestrates advisory turns.
type TurnService struct {
	DB      *gorm.DB
	Model   ModelClient
	Catalog recommend.Catalog

	// HistoryWindow bounds how many prior messages feed the prompt.
	HistoryWindow int
	// MaxPromptRunes caps inbound message length.
	MaxPromptRunes int
}

// NewTurnService constructs a TurnService with default bounds.
func NewTurnService(db *gorm.DB, model ModelClient, catalog recommend.Catalog) *TurnService {
	return &TurnService{
		DB:             db,
		Model:          model,
		Catalog:        catalog,
		HistoryWindow:  prompt.DefaultWindow,
		MaxPromptRunes: 4000,
	}
}

// Answer runs one turn in single-shot mode.
func (s *TurnService) Answer(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	tr := otel.Tracer("services/TurnService")
	ctx, span := tr.Start(ctx, "Answer",
		trace.WithAttributes(
			attribute.String("conversation.id", req.ConversationID),
			attribute.String("user.id", req.UserID),
		),
	)
	defer span.End()

	return s.run(ctx, req, false, func(p prompt.Prompt) (string, error) {
		return s.Model.Generate(ctx, p)
	})
}

// AnswerStream runs one turn in incremental mode, feeding reply fragments to
// fn in order. If the caller cancels mid-stream, the turn aborts without
// persisting partial assistant text (the user message remains). A model
// failure that is not a cancellation falls back exactly like Answer.
func (s *TurnService) AnswerStream(ctx context.Context, req TurnRequest, fn func(fragment string) error) (*TurnResult, error) {
	tr := otel.Tracer("services/TurnService")
	ctx, span := tr.Start(ctx, "AnswerStream",
		trace.WithAttributes(
			attribute.String("conversation.id", req.ConversationID),
			attribute.String("user.id", req.UserID),
		),
	)
	defer span.End()

	return s.run(ctx, req, true, func(p prompt.Prompt) (string, error) {
		return s.Model.GenerateStream(ctx, p, fn)
	})
}

// run drives the turn state machine with the supplied invocation mode.
// streamed marks the persisted assistant metadata so an incremental reply
// stays distinguishable from a buffered one after the fact.
func (s *TurnService) run(ctx context.Context, req TurnRequest, streamed bool, invoke func(prompt.Prompt) (string, error)) (*TurnResult, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(msg) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}
	lang := canonicalLanguage(req.Language)
	if lang == "" {
		lang = domain.LangEnglish
	}
	if !domain.ValidLanguage(lang) {
		return nil, ErrInvalidLanguage
	}

	conv, err := s.resolveConversation(ctx, req, msg, lang)
	if err != nil {
		return nil, err
	}

	// The user message is written before the model call so a model failure
	// never loses the user's input. Its failure is fatal to the turn.
	userMeta := domain.MessageMeta{Kind: domain.MetaKindUser}
	if v := req.ViewedCar; v != nil {
		userMeta.UserContext = strings.TrimSpace(v.Make + " " + v.Model)
	}
	userMsg, err := repo.CreateMessage(s.DB.WithContext(ctx), conv.ID, domain.RoleUser, msg, userMeta)
	if err != nil {
		return nil, fmt.Errorf("%w: persist user message: %v", ErrStorage, err)
	}

	p := prompt.Assemble(prompt.Input{
		Language:    conv.Language,
		Preferences: req.Preferences,
		ViewedCar:   req.ViewedCar,
		History:     s.history(ctx, conv.ID, userMsg.ID),
		UserMessage: msg,
	})

	text, genErr := invoke(p)
	if genErr != nil && ctx.Err() != nil {
		// Caller went away mid-stream; do not persist partial assistant text.
		return nil, genErr
	}

	var (
		meta    domain.MessageMeta
		matches []recommend.Match
		steps   []recommend.StepProposal
	)
	if genErr != nil {
		log.Warn().Err(genErr).Str("conversation_id", conv.ID).Msg("model call failed; using fallback reply")
		text = fallbackText(conv.Language)
		meta = domain.MessageMeta{Kind: domain.MetaKindError, Model: s.Model.Name(), Error: true, Streamed: streamed}
	} else {
		kind := domain.MetaKindModel
		if streamed {
			kind = domain.MetaKindStream
		}
		meta = domain.MessageMeta{
			Kind:          kind,
			Model:         s.Model.Name(),
			TokenEstimate: llm.EstimateTokens(text),
			Streamed:      streamed,
		}
		keywords := recommend.Extract(text)
		matches = recommend.MatchCatalog(ctx, s.Catalog, keywords)
		steps = recommend.SuggestNextSteps(matches)
	}

	result := &TurnResult{
		ConversationID:  conv.ID,
		Text:            text,
		Timestamp:       time.Now().UTC(),
		Recommendations: []domain.Recommendation{},
		NextSteps:       []domain.NextStep{},
		Meta:            TurnMeta{Model: meta.Model, TokenEstimate: meta.TokenEstimate, Error: meta.Error},
	}

	// Assistant message first, derived rows after, in one transaction.
	// A failure here degrades the response but does not re-fail a turn
	// that already has an answer.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		assistant, err := repo.CreateMessage(tx, conv.ID, domain.RoleAssistant, text, meta)
		if err != nil {
			return err
		}
		result.MessageID = assistant.ID
		result.Timestamp = assistant.CreatedAt

		for _, m := range matches {
			rec, err := repo.CreateRecommendation(tx, conv.ID, assistant.ID, m.Car.ID, m.Score, m.ReasonEN, m.ReasonZH)
			if err != nil {
				return err
			}
			result.Recommendations = append(result.Recommendations, *rec)
		}
		for _, sp := range steps {
			ns := &domain.NextStep{
				ConversationID: conv.ID,
				MessageID:      assistant.ID,
				TitleEN:        sp.TitleEN,
				TitleZH:        sp.TitleZH,
				DescriptionEN:  sp.DescriptionEN,
				DescriptionZH:  sp.DescriptionZH,
				Priority:       sp.Priority,
				ActionType:     sp.ActionType,
			}
			if _, err := repo.CreateNextStep(tx, ns); err != nil {
				return err
			}
			result.NextSteps = append(result.NextSteps, *ns)
		}

		if shouldAutoTitle(conv.Title) {
			if gen := deriveTitle(msg); gen != "" {
				if uerr := tx.Model(&domain.Conversation{}).Where("id = ?", conv.ID).Update("title", gen).Error; uerr == nil {
					conv.Title = gen
				}
			}
		}
		return repo.TouchConversation(ctx, tx, conv.ID)
	})
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID).Msg("assistant persistence failed; returning degraded turn")
		result.MessageID = ""
		result.Recommendations = []domain.Recommendation{}
		result.NextSteps = []domain.NextStep{}
	}

	return result, nil
}

// resolveConversation loads the addressed conversation or creates a new one.
// An unknown id falls through to creation rather than erroring.
func (s *TurnService) resolveConversation(ctx context.Context, req TurnRequest, msg, lang string) (*domain.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := repo.GetConversation(ctx, s.DB, req.ConversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: load conversation: %v", ErrStorage, err)
		}
	}
	conv, err := repo.CreateConversation(ctx, s.DB, req.UserID, req.SessionID, deriveTitle(msg), lang)
	if err != nil {
		return nil, fmt.Errorf("%w: create conversation: %v", ErrStorage, err)
	}
	return conv, nil
}

// history returns the windowed prior messages, excluding the just-written
// user message. A read failure degrades to an empty history rather than
// failing the turn.
func (s *TurnService) history(ctx context.Context, conversationID, excludeID string) []domain.Message {
	n := s.HistoryWindow
	if n <= 0 {
		n = prompt.DefaultWindow
	}
	recent, err := repo.ListRecentMessages(s.DB.WithContext(ctx), conversationID, n+1)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("history read failed; prompting without context")
		return nil
	}
	hist := make([]domain.Message, 0, len(recent))
	for _, m := range recent {
		if m.ID != excludeID {
			hist = append(hist, m)
		}
	}
	windowed, err := prompt.Window(hist, n)
	if err != nil {
		return nil
	}
	return windowed
}

// fallbackText is the localized apology used when the model call fails.
func fallbackText(lang string) string {
	if lang == domain.LangChinese {
		return "抱歉，我现在无法回复您。请稍后再试。"
	}
	return "Sorry, I am having trouble responding right now. Please try again in a moment."
}

// shouldAutoTitle reports whether the current title is a placeholder.
func shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(defaultTitleNew) || t == strings.ToLower(defaultTitleUntitled)
}

// deriveTitle truncates the opening message into a conversation title.
func deriveTitle(msg string) string {
	msg = normalizeTitle(msg)
	if utf8.RuneCountInString(msg) <= derivedTitleRunes {
		return msg
	}
	return string([]rune(msg)[:derivedTitleRunes-3]) + "..."
}
