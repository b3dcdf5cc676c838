package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ymzhao/go-car-advisor/internal/domain"
	"github.com/ymzhao/go-car-advisor/internal/llm"
	"github.com/ymzhao/go-car-advisor/internal/repo"
)

func TestAnswer_NewConversation_DerivesTitle(t *testing.T) {
	fm := &fakeModel{text: "A compact sedan would fit that budget well."}
	svc, db := newTestTurnService(t, fm)

	res, err := svc.Answer(context.Background(), TurnRequest{
		UserID:   "u1",
		Language: domain.LangEnglish,
		Message:  "I need a reliable car under $20,000 CAD for family use",
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.ConversationID == "" || res.MessageID == "" || res.Text == "" {
		t.Fatalf("incomplete result: %+v", res)
	}

	conv, err := repo.GetConversation(context.Background(), db, res.ConversationID)
	if err != nil {
		t.Fatalf("load conversation: %v", err)
	}
	if conv.Title != "I need a reliable car under $20,000 CAD for fam..." {
		t.Fatalf("derived title = %q", conv.Title)
	}

	// Both sides of the turn are in the log, user first.
	msgs, err := repo.ListMessages(db, res.ConversationID, 0)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("messages: len=%d err=%v", len(msgs), err)
	}
	if msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Fatalf("wrong roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if res.Meta.Model != "fake-model" || res.Meta.Error {
		t.Fatalf("unexpected meta: %+v", res.Meta)
	}
	if res.Meta.TokenEstimate != llm.EstimateTokens(fm.text) {
		t.Fatalf("token estimate = %d", res.Meta.TokenEstimate)
	}
}

func TestAnswer_ShortMessageTitleKeptWhole(t *testing.T) {
	fm := &fakeModel{text: "ok"}
	svc, db := newTestTurnService(t, fm)

	res, err := svc.Answer(context.Background(), TurnRequest{Message: "Best hybrid?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	conv, _ := repo.GetConversation(context.Background(), db, res.ConversationID)
	if conv.Title != "Best hybrid?" {
		t.Fatalf("title = %q", conv.Title)
	}
	if conv.Language != domain.LangEnglish {
		t.Fatalf("language should default to en, got %q", conv.Language)
	}
}

func TestAnswer_ResumesExistingConversation(t *testing.T) {
	fm := &fakeModel{text: "noted"}
	svc, db := newTestTurnService(t, fm)
	ctx := context.Background()

	first, err := svc.Answer(ctx, TurnRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	second, err := svc.Answer(ctx, TurnRequest{ConversationID: first.ConversationID, Message: "more details please"})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Fatalf("conversation changed between turns")
	}

	total, err := repo.CountConversations(ctx, db, "")
	if err != nil || total != 1 {
		t.Fatalf("expected 1 conversation, got %d (err=%v)", total, err)
	}
	msgs, _ := repo.ListMessages(db, first.ConversationID, 0)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages after two turns, got %d", len(msgs))
	}
}

func TestAnswer_UnknownConversationIDCreatesNew(t *testing.T) {
	fm := &fakeModel{text: "sure"}
	svc, _ := newTestTurnService(t, fm)

	res, err := svc.Answer(context.Background(), TurnRequest{
		ConversationID: "no-such-conversation",
		Message:        "hi",
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.ConversationID == "" || res.ConversationID == "no-such-conversation" {
		t.Fatalf("expected a fresh conversation, got %q", res.ConversationID)
	}
}

func TestAnswer_InputValidation(t *testing.T) {
	fm := &fakeModel{text: "x"}
	svc, _ := newTestTurnService(t, fm)
	ctx := context.Background()

	if _, err := svc.Answer(ctx, TurnRequest{Message: "   "}); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}

	svc.MaxPromptRunes = 5
	if _, err := svc.Answer(ctx, TurnRequest{Message: "this is too long"}); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
	svc.MaxPromptRunes = 0

	if _, err := svc.Answer(ctx, TurnRequest{Message: "hi", Language: "fr"}); !errors.Is(err, ErrInvalidLanguage) {
		t.Fatalf("expected ErrInvalidLanguage, got %v", err)
	}
	if fm.calls != 0 {
		t.Fatalf("model must not be invoked for invalid input")
	}
}

func TestAnswer_ModelFailureFallsBack(t *testing.T) {
	for _, tc := range []struct {
		lang string
		want string
	}{
		{domain.LangEnglish, "Sorry"},
		{domain.LangChinese, "抱歉"},
	} {
		fm := &fakeModel{err: llm.ErrModelFailure}
		svc, db := newTestTurnService(t, fm)

		res, err := svc.Answer(context.Background(), TurnRequest{Language: tc.lang, Message: "help me pick a car"})
		if err != nil {
			t.Fatalf("turn must not fail on model error, got %v", err)
		}
		if !res.Meta.Error {
			t.Fatalf("meta.error not set")
		}
		if !strings.HasPrefix(res.Text, tc.want) {
			t.Fatalf("fallback not localized for %s: %q", tc.lang, res.Text)
		}
		if len(res.Recommendations) != 0 || len(res.NextSteps) != 0 {
			t.Fatalf("no enrichment expected on failure")
		}

		// The user's message survived the failure.
		msgs, _ := repo.ListMessages(db, res.ConversationID, 0)
		if len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[0].Content != "help me pick a car" {
			t.Fatalf("user message lost: %+v", msgs)
		}
		if !msgs[1].Meta.Error || msgs[1].Meta.Kind != domain.MetaKindError {
			t.Fatalf("persisted fallback lacks error meta: %+v", msgs[1].Meta)
		}
	}
}

func TestAnswer_DerivesRecommendationsAndNextSteps(t *testing.T) {
	fm := &fakeModel{text: "I recommend the Toyota RAV4, a great SUV for families."}
	svc, db := newTestTurnService(t, fm)

	res, err := svc.Answer(context.Background(), TurnRequest{Message: "family car?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(res.Recommendations) == 0 {
		t.Fatalf("expected recommendations for Toyota/SUV reply")
	}
	if len(res.Recommendations) > 5 {
		t.Fatalf("recommendation cap exceeded: %d", len(res.Recommendations))
	}
	for _, r := range res.Recommendations {
		if r.MessageID != res.MessageID {
			t.Fatalf("recommendation references wrong message: %+v", r)
		}
		if _, err := repo.GetMessage(db, r.MessageID); err != nil {
			t.Fatalf("recommendation references unpersisted message: %v", err)
		}
	}
	if len(res.NextSteps) == 0 || res.NextSteps[0].ActionType != domain.ActionVisit {
		t.Fatalf("expected next steps led by a test-drive suggestion: %+v", res.NextSteps)
	}

	stored, err := repo.ListRecommendationsForMessage(db, res.MessageID)
	if err != nil || len(stored) != len(res.Recommendations) {
		t.Fatalf("stored recommendations mismatch: %d vs %d (err=%v)", len(stored), len(res.Recommendations), err)
	}
}

func TestAnswer_HistoryIsWindowed(t *testing.T) {
	fm := &fakeModel{text: "ok"}
	svc, _ := newTestTurnService(t, fm)
	svc.HistoryWindow = 2
	ctx := context.Background()

	first, err := svc.Answer(ctx, TurnRequest{Message: "turn one"})
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	for _, m := range []string{"turn two", "turn three"} {
		if _, err := svc.Answer(ctx, TurnRequest{ConversationID: first.ConversationID, Message: m}); err != nil {
			t.Fatalf("turn %q: %v", m, err)
		}
	}

	// Last assembled prompt: at most 2 history turns plus the new utterance.
	if got := len(fm.lastInput.Turns); got != 3 {
		t.Fatalf("expected 3 prompt turns (2 history + new), got %d", got)
	}
	if fm.lastInput.Turns[2].Content != "turn three" {
		t.Fatalf("new utterance not last: %+v", fm.lastInput.Turns)
	}
}

func TestAnswerStream_DeliversFragments(t *testing.T) {
	fm := &fakeModel{text: "hello world", fragments: []string{"hello", " ", "world"}}
	svc, db := newTestTurnService(t, fm)

	var got []string
	res, err := svc.AnswerStream(context.Background(), TurnRequest{Message: "hi"}, func(f string) error {
		got = append(got, f)
		return nil
	})
	if err != nil {
		t.Fatalf("AnswerStream: %v", err)
	}
	if strings.Join(got, "") != "hello world" || res.Text != "hello world" {
		t.Fatalf("stream mismatch: %v vs %q", got, res.Text)
	}
	if res.MessageID == "" {
		t.Fatalf("assistant message not persisted")
	}

	// The stored metadata records the delivery mode.
	var assistant domain.Message
	if err := db.Where("id = ?", res.MessageID).First(&assistant).Error; err != nil {
		t.Fatalf("load assistant message: %v", err)
	}
	if assistant.Meta.Kind != domain.MetaKindStream || !assistant.Meta.Streamed {
		t.Fatalf("streamed meta = %+v; want kind %q with streamed set", assistant.Meta, domain.MetaKindStream)
	}
}

func TestAnswer_BufferedMetaIsNotMarkedStreamed(t *testing.T) {
	fm := &fakeModel{text: "a buffered reply"}
	svc, db := newTestTurnService(t, fm)

	res, err := svc.Answer(context.Background(), TurnRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	var assistant domain.Message
	if err := db.Where("id = ?", res.MessageID).First(&assistant).Error; err != nil {
		t.Fatalf("load assistant message: %v", err)
	}
	if assistant.Meta.Kind != domain.MetaKindModel || assistant.Meta.Streamed {
		t.Fatalf("buffered meta = %+v; want kind %q without streamed", assistant.Meta, domain.MetaKindModel)
	}
}

func TestAnswerStream_CancellationLeavesNoPartialAssistantText(t *testing.T) {
	fm := &fakeModel{text: "a b c", fragments: []string{"a ", "b ", "c"}}
	svc, db := newTestTurnService(t, fm)

	ctx, cancel := context.WithCancel(context.Background())
	delivered := 0
	_, err := svc.AnswerStream(ctx, TurnRequest{Message: "hi"}, func(string) error {
		delivered++
		if delivered == 1 {
			cancel()
		}
		return nil
	})
	if err == nil {
		t.Fatalf("expected error after cancellation")
	}

	// User message persisted, assistant text not.
	var msgs []domain.Message
	if err := db.Find(&msgs).Error; err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != domain.RoleUser {
		t.Fatalf("expected only the user message, got %+v", msgs)
	}
}

func TestAnswer_TouchBumpsConversation(t *testing.T) {
	fm := &fakeModel{text: "ok"}
	svc, db := newTestTurnService(t, fm)
	ctx := context.Background()

	first, err := svc.Answer(ctx, TurnRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}

	// Backdate so the bump is unambiguous regardless of timestamp precision.
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Model(&domain.Conversation{}).Where("id = ?", first.ConversationID).UpdateColumn("updated_at", old).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	if _, err := svc.Answer(ctx, TurnRequest{ConversationID: first.ConversationID, Message: "again"}); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	after, _ := repo.GetConversation(ctx, db, first.ConversationID)
	if !after.UpdatedAt.After(old) {
		t.Fatalf("UpdatedAt not bumped: %v", after.UpdatedAt)
	}
}
