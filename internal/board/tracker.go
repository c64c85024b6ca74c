// Package board tracks the authoritative game state. Every move the bot
// plays (or observes) passes through the Tracker, which validates it
// against the rules before it is trusted anywhere else.
package board

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// ErrIllegalMove reports a move that is not legal in the current position.
// The position is left untouched when this is returned.
var ErrIllegalMove = errors.New("illegal move")

// Side is the color to move, serialized as "white" or "black".
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

// Outcome describes how a finished game ended.
type Outcome struct {
	Result string // "white", "black" or "draw"
	Method string // "checkmate", "stalemate", "resignation", ...
}

// Tracker wraps a single game and keeps the applied move list in
// long algebraic (UCI) form alongside it. baseFEN is the position the
// move list starts from; empty means the standard initial position.
type Tracker struct {
	game     *nchess.Game
	baseFEN  string
	movesUCI []string
}

// NewTracker starts a fresh game from the standard initial position.
func NewTracker() *Tracker {
	return &Tracker{game: nchess.NewGame()}
}

// NewTrackerFromFEN starts from an arbitrary position. The move list
// begins empty and BaseFEN reports the given position so engine
// searches are anchored to it, not to the initial position.
func NewTrackerFromFEN(fen string) (*Tracker, error) {
	option, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return &Tracker{game: nchess.NewGame(option), baseFEN: fen}, nil
}

// Apply validates and plays a move given in long algebraic form
// (e.g. "e2e4", "e7e8q") and returns its SAN rendering.
func (t *Tracker) Apply(uciMove string) (string, error) {
	raw := strings.ToLower(strings.TrimSpace(uciMove))
	if raw == "" {
		return "", fmt.Errorf("%w: empty move", ErrIllegalMove)
	}

	pos := t.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, raw)
	}
	if err := t.game.Move(mv, nil); err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, raw)
	}

	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	t.movesUCI = append(t.movesUCI, raw)
	return san, nil
}

// Turn reports the side to move.
func (t *Tracker) Turn() Side {
	if t.game.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

// FEN renders the current position.
func (t *Tracker) FEN() string {
	return t.game.FEN()
}

// BaseFEN is the position the applied move list starts from. Empty
// means the standard initial position.
func (t *Tracker) BaseFEN() string {
	return t.baseFEN
}

// MovesUCI returns a copy of the applied move list in long algebraic form,
// in the order the moves were played.
func (t *Tracker) MovesUCI() []string {
	return append([]string(nil), t.movesUCI...)
}

// MoveCount is the number of half-moves applied so far.
func (t *Tracker) MoveCount() int {
	return len(t.movesUCI)
}

// Terminal reports whether the game has ended, and how.
func (t *Tracker) Terminal() (bool, Outcome) {
	switch t.game.Outcome() {
	case nchess.WhiteWon:
		return true, Outcome{Result: "white", Method: methodString(t.game.Method())}
	case nchess.BlackWon:
		return true, Outcome{Result: "black", Method: methodString(t.game.Method())}
	case nchess.Draw:
		return true, Outcome{Result: "draw", Method: methodString(t.game.Method())}
	default:
		return false, Outcome{}
	}
}

// Resync replaces the tracked state with the given position. Used when
// the page and the tracker disagree and the page exposes its FEN.
func (t *Tracker) Resync(fen string) error {
	option, err := nchess.FEN(fen)
	if err != nil {
		return fmt.Errorf("parse fen: %w", err)
	}
	t.game = nchess.NewGame(option)
	t.baseFEN = fen
	t.movesUCI = nil
	return nil
}

// Reset returns the tracker to the standard initial position.
func (t *Tracker) Reset() {
	t.game = nchess.NewGame()
	t.baseFEN = ""
	t.movesUCI = nil
}

func methodString(m nchess.Method) string {
	return strings.ToLower(m.String())
}
