// Package prompt builds the model context for an advisory turn: a bounded
// window over the conversation history plus an assembled instruction block.
// Everything in this package is pure; persistence and model calls live
// elsewhere.
package prompt

import (
	"errors"

	"github.com/ymzhao/go-car-advisor/internal/domain"
)

// DefaultWindow is the history bound applied when the caller does not
// configure one.
const DefaultWindow = 20

// ErrNegativeWindow is returned when a negative window size is requested.
var ErrNegativeWindow = errors.New("window size must not be negative")

// Window returns the most recent n messages of an already-ordered log, in
// chronological order. The result is always a suffix of the input: messages
// are never reordered or dropped from the middle. len(result) == min(len(msgs), n).
func Window(msgs []domain.Message, n int) ([]domain.Message, error) {
	if n < 0 {
		return nil, ErrNegativeWindow
	}
	if len(msgs) <= n {
		return msgs, nil
	}
	return msgs[len(msgs)-n:], nil
}
