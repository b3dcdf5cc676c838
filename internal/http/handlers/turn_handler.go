// Turn HTTP handlers.
//
// This file exposes the advisory turn endpoints:
//   - POST /turns                     (new conversation)
//   - POST /conversations/{id}/turns  (existing conversation)
//
// A turn accepts one user message and returns the assistant reply together
// with derived recommendations and next steps. Delivery is either a single
// JSON response or, when the client asks for it (?stream=1 or
// Accept: text/event-stream), a Server-Sent Events stream of `fragment`
// events terminated by one `done` event carrying the full result. A model
// failure mid-stream emits an `error` event before `done`.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, conversation, key), the handler returns the
// recorded turn and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ymzhao/go-car-advisor/internal/prompt"
	"github.com/ymzhao/go-car-advisor/internal/repo"
	"github.com/ymzhao/go-car-advisor/internal/services"
)

// SSE event names used by the streaming turn endpoint.
const (
	sseEventFragment = "fragment"
	sseEventDone     = "done"
	sseEventError    = "error"
)

//
// DTOs
//

// TurnPreferences carries optional structured buying preferences.
type TurnPreferences struct {
	Budget   string   `json:"budget,omitempty" example:"under $20,000"`
	BodyType string   `json:"body_type,omitempty" example:"SUV"`
	Brand    string   `json:"brand,omitempty" example:"Toyota"`
	Features []string `json:"features,omitempty"`
}

// TurnViewedCar identifies the catalog entry the user is looking at.
type TurnViewedCar struct {
	Make  string `json:"make" example:"Toyota"`
	Model string `json:"model" example:"RAV4"`
}

// PostTurnRequest is the JSON payload for one advisory turn.
type PostTurnRequest struct {
	// Message is the user utterance. It must be non-empty.
	Message string `json:"message" binding:"required,min=1" example:"I need a reliable car under $20,000 CAD for family use"`
	// Language selects the reply language ("en" or "zh"); defaults to en.
	Language string `json:"language" example:"en"`
	// Preferences optionally refine the advice.
	Preferences *TurnPreferences `json:"preferences,omitempty"`
	// ViewedCar optionally names the car the user is currently viewing.
	ViewedCar *TurnViewedCar `json:"viewed_car,omitempty"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxPromptRunes inspects the concrete TurnService for a configured
// message-length limit. If unavailable, it returns a conservative fallback.
func discoverMaxPromptRunes(turnSvc TurnService) int {
	const fallback = 4000
	if ts, ok := turnSvc.(*services.TurnService); ok {
		if ts.MaxPromptRunes > 0 {
			return ts.MaxPromptRunes
		}
	}
	return fallback
}

// turnDB exposes the concrete turn service's DB handle for idempotency
// bookkeeping, when available.
func (h *Handlers) turnDB() *gorm.DB {
	if svc, ok := h.turnSvc.(*services.TurnService); ok {
		return svc.DB
	}
	return nil
}

// wantsStream reports whether the client asked for SSE delivery.
func wantsStream(c *gin.Context) bool {
	if c.Query("stream") == "1" {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

// setSSEHeaders prepares the response for Server-Sent Events delivery.
func setSSEHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

// sendSSE writes one event and flushes it to the client immediately.
func sendSSE(c *gin.Context, event string, data any) {
	c.SSEvent(event, data)
	c.Writer.Flush()
}

// toTurnRequest maps the transport payload to the service request.
func toTurnRequest(c *gin.Context, conversationID string, req PostTurnRequest, message string) services.TurnRequest {
	out := services.TurnRequest{
		ConversationID: conversationID,
		UserID:         userID(c),
		SessionID:      sessionID(c),
		Language:       req.Language,
		Message:        message,
	}
	if p := req.Preferences; p != nil {
		out.Preferences = &prompt.Preferences{
			Budget:   p.Budget,
			BodyType: p.BodyType,
			Brand:    p.Brand,
			Features: p.Features,
		}
	}
	if v := req.ViewedCar; v != nil {
		out.ViewedCar = &prompt.ViewedCar{Make: v.Make, Model: v.Model}
	}
	return out
}

//
// Handlers
//

// PostTurn godoc
// @ID          postTurn
// @Summary     Send a message and get an advisory reply
// @Description Runs one advisory turn: persists the user message, invokes the model, and returns the reply with derived recommendations and next steps.
// @Description With ?stream=1 (or Accept: text/event-stream) the reply is delivered as SSE fragment events followed by a done event.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Turns
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       id               path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       stream           query   int     false "Set to 1 for SSE delivery"
// @Param       body             body    handlers.PostTurnRequest  true  "Turn payload"
//
// @Success     200  {object}  services.TurnResult  "Advisory reply"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/turns [post]
func (h *Handlers) PostTurn(c *gin.Context) {
	conversationID := c.Param("id")
	if conversationID != "" {
		if _, err := uuid.Parse(conversationID); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
			return
		}
	}
	h.runTurn(c, conversationID)
}

// PostNewTurn handles POST /turns (no conversation id; one is created).
//
// PostNewTurn godoc
// @ID          postNewTurn
// @Summary     Start a conversation with a first message
// @Description Identical to the per-conversation turn endpoint, but creates a fresh conversation.
// @Tags        Turns
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.PostTurnRequest  true  "Turn payload"
//
// @Success     200  {object}  services.TurnResult  "Advisory reply"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Router      /turns [post]
func (h *Handlers) PostNewTurn(c *gin.Context) {
	h.runTurn(c, "")
}

// runTurn is the shared body of both turn endpoints.
func (h *Handlers) runTurn(c *gin.Context, conversationID string) {
	ctx := c.Request.Context()

	var req PostTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	message := sanitizeContent(req.Message)
	maxRunes := discoverMaxPromptRunes(h.turnSvc)
	if maxRunes > 0 && utf8.RuneCountInString(message) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("message too long: max %d runes", maxRunes))
		return
	}
	if message == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}

	currentUser := userID(c)

	// Idempotency (replay path): only for buffered delivery.
	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idemKey != "" && conversationID != "" && !wantsStream(c) {
		if res := h.replayTurn(c, currentUser, conversationID, idemKey); res != nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, res)
			return
		}
	}

	turnReq := toTurnRequest(c, conversationID, req, message)

	if wantsStream(c) {
		h.streamTurn(c, turnReq)
		return
	}

	res, err := h.turnSvc.Answer(ctx, turnReq)
	if err != nil {
		failTurn(c, err, maxRunes)
		return
	}

	// Idempotency (store path): best effort, needs a persisted message.
	if idemKey != "" && res.MessageID != "" {
		if db := h.turnDB(); db != nil {
			_, _ = repo.CreateIdempotency(ctx, db, currentUser, res.ConversationID, idemKey, res.MessageID, http.StatusOK, 24*time.Hour)
		}
	}

	ok(c, http.StatusOK, res)
}

// streamTurn delivers one turn over SSE. The reply arrives as `fragment`
// events; the final `done` event carries the complete TurnResult (including
// recommendations, which are only known once the reply is complete). A model
// failure emits `error` before the fallback-carrying `done`.
func (h *Handlers) streamTurn(c *gin.Context, req services.TurnRequest) {
	setSSEHeaders(c)

	res, err := h.turnSvc.AnswerStream(c.Request.Context(), req, func(fragment string) error {
		if c.Request.Context().Err() != nil {
			return c.Request.Context().Err()
		}
		sendSSE(c, sseEventFragment, fragment)
		return nil
	})
	if err != nil {
		// Validation errors and cancellations have no result to deliver.
		sendSSE(c, sseEventError, gin.H{"code": ErrCodeTurnFailed, "message": err.Error()})
		return
	}
	if res.Meta.Error {
		sendSSE(c, sseEventError, gin.H{"code": ErrCodeModelFailed, "message": "model call failed; fallback reply returned"})
		// The fallback text was never sent as fragments.
		sendSSE(c, sseEventFragment, res.Text)
	}
	sendSSE(c, sseEventDone, res)
}

// replayTurn rebuilds a previously recorded turn result, or returns nil when
// no valid idempotency record exists.
func (h *Handlers) replayTurn(c *gin.Context, userID, conversationID, key string) *services.TurnResult {
	db := h.turnDB()
	if db == nil {
		return nil
	}
	ctx := c.Request.Context()

	rec, err := repo.GetIdempotency(ctx, db, userID, conversationID, key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil
	}
	msg, err := repo.GetMessage(db, rec.MessageID)
	if err != nil {
		return nil
	}
	recs, err := repo.ListRecommendationsForMessage(db, msg.ID)
	if err != nil {
		recs = nil
	}
	steps, err := repo.ListNextStepsForMessage(db, msg.ID)
	if err != nil {
		steps = nil
	}
	return &services.TurnResult{
		ConversationID:  msg.ConversationID,
		MessageID:       msg.ID,
		Text:            msg.Content,
		Timestamp:       msg.CreatedAt,
		Recommendations: recs,
		NextSteps:       steps,
		Meta: services.TurnMeta{
			Model:         msg.Meta.Model,
			TokenEstimate: msg.Meta.TokenEstimate,
			Error:         msg.Meta.Error,
		},
	}
}

// failTurn maps service errors from a turn to HTTP responses.
func failTurn(c *gin.Context, err error, maxRunes int) {
	switch {
	case err == services.ErrEmptyPrompt:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
	case err == services.ErrTooLong:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("message too long: max %d runes", maxRunes))
	case err == services.ErrInvalidLanguage:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "language must be en or zh")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeTurnFailed, err.Error())
	}
}
