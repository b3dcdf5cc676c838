// Package domain defines the persistence models for conversations, messages,
// the car catalog, recommendations, and next steps. These types are mapped
// with GORM and form the core data layer of the car advisor application.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Language codes supported by the advisor. Every conversation carries one and
// the assistant is instructed to reply in it.
const (
	LangEnglish = "en"
	LangChinese = "zh"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// NextStep priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// NextStep action types.
const (
	ActionResearch = "research"
	ActionVisit    = "visit"
	ActionContact  = "contact"
	ActionPrepare  = "prepare"
)

// ValidLanguage reports whether lang is a supported conversation language.
func ValidLanguage(lang string) bool {
	return lang == LangEnglish || lang == LangChinese
}

// Conversation represents an advisory chat session. It may belong to a
// registered user or be anonymous (grouped by SessionID), and carries the
// language the assistant replies in.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: optional identifier of the owner; indexed for retrieval.
//   - Title: derived from the first user message when not provided.
//   - Summary: optional running summary, updated on each turn.
//   - Language: "en" or "zh" (enforced by DB constraint).
//   - SessionID: groups anonymous activity across conversations.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (deletion is a CRUD concern; the
//     turn pipeline never deletes conversations).
type Conversation struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id,omitempty" gorm:"type:varchar(64);index:idx_user_convs"`
	Title     string         `json:"title"      gorm:"type:varchar(255);not null;default:'New conversation'"`
	Summary   string         `json:"summary,omitempty" gorm:"type:text"`
	Language  string         `json:"language"   gorm:"type:varchar(8);not null;default:'en';check:language IN ('en','zh')"`
	SessionID string         `json:"session_id,omitempty" gorm:"type:varchar(64);index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// MessageMeta is the tagged metadata attached to a message. Rather than an
// open map, the known shapes are folded into one struct discriminated by
// Kind, so the persistence and response contracts stay checkable.
//
// Kinds:
//   - "model":  a normal assistant turn (Model, TokenEstimate set)
//   - "error":  the model call failed and Content holds fallback text
//   - "stream": the reply was delivered incrementally
//   - "user":   inbound message context (UserContext optional)
type MessageMeta struct {
	Kind          string `json:"kind"`
	Model         string `json:"model,omitempty"`
	TokenEstimate int    `json:"token_estimate,omitempty"`
	Error         bool   `json:"error,omitempty"`
	Streamed      bool   `json:"streamed,omitempty"`
	UserContext   string `json:"user_context,omitempty"`
}

// Meta kind discriminators.
const (
	MetaKindModel  = "model"
	MetaKindError  = "error"
	MetaKindStream = "stream"
	MetaKindUser   = "user"
)

// Value implements driver.Valuer, serializing the metadata as JSON.
// A zero-valued meta is stored as NULL.
func (m MessageMeta) Value() (driver.Value, error) {
	if m == (MessageMeta{}) {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner, accepting NULL, []byte, and string.
func (m *MessageMeta) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = MessageMeta{}
		return nil
	case []byte:
		if len(v) == 0 {
			*m = MessageMeta{}
			return nil
		}
		return json.Unmarshal(v, m)
	case string:
		if v == "" {
			*m = MessageMeta{}
			return nil
		}
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("unsupported MessageMeta source")
	}
}

// Message represents a single utterance within a conversation. Messages are
// append-only and immutable once created; the log is ordered by creation time.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ConversationID: foreign key to the owning conversation (indexed).
//   - Role: "user" or "assistant" (enforced by DB constraint).
//   - Content: full text content of the message.
//   - Meta: tagged metadata (model name, token estimate, error flag, …).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
//   - Conversation: FK association, ensures cascade delete/update.
type Message struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Role           string         `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content        string         `json:"content"         gorm:"type:text;not null"`
	Meta           MessageMeta    `json:"meta,omitempty"  gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`

	// Conversation is the parent session. Messages are cascade-deleted
	// if their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// StringList is a JSON-encoded list of strings stored in a TEXT column.
// Used for catalog feature lists.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		if len(v) == 0 {
			*l = nil
			return nil
		}
		return json.Unmarshal(v, l)
	case string:
		if v == "" {
			*l = nil
			return nil
		}
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("unsupported StringList source")
	}
}

// Car is a catalog record. The turn pipeline only reads this table when
// resolving keyword matches; catalog maintenance is a CRUD concern.
//
// Descriptions are bilingual so responses can surface the text matching the
// conversation language without a second lookup.
type Car struct {
	ID            string         `json:"id"       gorm:"type:char(36);primaryKey"`
	Make          string         `json:"make"     gorm:"type:varchar(64);not null;index"`
	Model         string         `json:"model"    gorm:"type:varchar(64);not null;index"`
	Category      string         `json:"category" gorm:"type:varchar(32);not null;index"`
	FuelType      string         `json:"fuel_type" gorm:"type:varchar(32);not null"`
	PriceMin      int            `json:"price_min"`
	PriceMax      int            `json:"price_max"`
	DescriptionEN string         `json:"description_en" gorm:"type:text"`
	DescriptionZH string         `json:"description_zh" gorm:"type:text"`
	Features      StringList     `json:"features,omitempty" gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Car.
func (Car) TableName() string { return "cars" }

// Recommendation links one assistant turn to a catalog car with a relevance
// score. Rows are derived entirely from a single turn and never updated.
//
// A Recommendation references a Message that already exists in storage at
// insert time: the orchestrator persists the assistant message first, in the
// same transaction.
type Recommendation struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index"`
	MessageID      string         `json:"message_id"      gorm:"type:char(36);not null;index"`
	CarID          string         `json:"car_id"          gorm:"type:char(36);not null;index"`
	MatchScore     int            `json:"match_score"     gorm:"not null;check:match_score BETWEEN 0 AND 100"`
	ReasonEN       string         `json:"reason_en"       gorm:"type:text"`
	ReasonZH       string         `json:"reason_zh"       gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	// Message is the originating assistant turn. Recommendations are
	// cascade-deleted with it.
	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Car     Car     `json:"-" gorm:"foreignKey:CarID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Recommendation.
func (Recommendation) TableName() string { return "recommendations" }

// NextStep is a suggested follow-up action derived from one assistant turn.
// Same lifecycle as Recommendation: insert-only, cascade-deleted with its
// message.
type NextStep struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index"`
	MessageID      string         `json:"message_id"      gorm:"type:char(36);not null;index"`
	TitleEN        string         `json:"title_en"        gorm:"type:varchar(255);not null"`
	TitleZH        string         `json:"title_zh"        gorm:"type:varchar(255);not null"`
	DescriptionEN  string         `json:"description_en"  gorm:"type:text"`
	DescriptionZH  string         `json:"description_zh"  gorm:"type:text"`
	Priority       string         `json:"priority"        gorm:"type:varchar(16);not null;check:priority IN ('high','medium','low')"`
	ActionType     string         `json:"action_type"     gorm:"type:varchar(16);not null;check:action_type IN ('research','visit','contact','prepare')"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for NextStep.
func (NextStep) TableName() string { return "next_steps" }
