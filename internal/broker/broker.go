// Package broker adapts the binary-options platform API: a REST client for
// quotes, candle history, balance and order placement, and a websocket
// stream for live quotes and settlement pushes. Everything above this
// package speaks domain types; the call/put contract vocabulary stays in
// here.
package broker

import (
	"github.com/alanyoungcy/optionbot/internal/domain"
)

// wireContract maps a trade direction onto the platform's contract type.
func wireContract(d domain.Direction) string {
	if d == domain.DirectionDown {
		return "put"
	}
	return "call"
}

// parseOutcome maps the platform's settlement result onto a domain outcome.
// Unknown results settle void so the stake is returned rather than guessed.
func parseOutcome(result string) domain.Outcome {
	switch result {
	case "win":
		return domain.OutcomeWon
	case "loss":
		return domain.OutcomeLost
	}
	return domain.OutcomeVoid
}
