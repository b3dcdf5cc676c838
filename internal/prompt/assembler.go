package prompt

import (
	"fmt"
	"strings"

	"github.com/ymzhao/go-car-advisor/internal/domain"
)

// Preferences carries the structured buying preferences a caller may attach
// to a turn. All fields are optional; zero values are omitted from the prompt.
type Preferences struct {
	Budget   string
	BodyType string
	Brand    string
	Features []string
}

// ViewedCar identifies the catalog entry the user is currently looking at,
// when the frontend supplies one.
type ViewedCar struct {
	Make  string
	Model string
}

// Turn is one flattened transcript entry.
type Turn struct {
	Role    string
	Content string
}

// Prompt is the assembled model context: one instruction block plus the
// transcript ending with the new user utterance.
type Prompt struct {
	System string
	Turns  []Turn
}

// Input bundles everything the assembler needs for one turn.
type Input struct {
	Language    string
	Preferences *Preferences
	ViewedCar   *ViewedCar
	History     []domain.Message
	UserMessage string
}

// Assemble builds the prompt for a turn. It is deterministic: the same input
// always yields the same output. Empty history is valid (first turn).
func Assemble(in Input) Prompt {
	var b strings.Builder

	b.WriteString("You are a knowledgeable and friendly car-buying advisor. ")
	b.WriteString("Help the user choose a car that fits their needs and budget, ")
	b.WriteString("and suggest concrete next steps when appropriate.\n")

	if in.Language == domain.LangChinese {
		b.WriteString("请始终用中文回答。\n")
	} else {
		b.WriteString("Always reply in English.\n")
	}

	if p := in.Preferences; p != nil {
		var lines []string
		if p.Budget != "" {
			lines = append(lines, "- Budget: "+p.Budget)
		}
		if p.BodyType != "" {
			lines = append(lines, "- Body type: "+p.BodyType)
		}
		if p.Brand != "" {
			lines = append(lines, "- Preferred brand: "+p.Brand)
		}
		if len(p.Features) > 0 {
			lines = append(lines, "- Desired features: "+strings.Join(p.Features, ", "))
		}
		if len(lines) > 0 {
			b.WriteString("\nThe user has stated these preferences:\n")
			b.WriteString(strings.Join(lines, "\n"))
			b.WriteByte('\n')
		}
	}

	if v := in.ViewedCar; v != nil && (v.Make != "" || v.Model != "") {
		fmt.Fprintf(&b, "\nThe user is currently viewing: %s\n",
			strings.TrimSpace(v.Make+" "+v.Model))
	}

	turns := make([]Turn, 0, len(in.History)+1)
	for _, m := range in.History {
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	turns = append(turns, Turn{Role: domain.RoleUser, Content: in.UserMessage})

	return Prompt{System: b.String(), Turns: turns}
}

// flatten renders the prompt as a single text block. Roles are prefixed the
// way chat transcripts are conventionally flattened ("User:" / "Assistant:").
func (p Prompt) flatten() string {
	var b strings.Builder
	b.WriteString(p.System)
	b.WriteByte('\n')
	for _, t := range p.Turns {
		switch t.Role {
		case domain.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(t.Content)
		b.WriteByte('\n')
	}
	b.WriteString("Assistant:")
	return b.String()
}
