// Package game runs a single game as a state machine: request a move
// from the engine, validate it against the rules, place it on the page,
// record it, repeat until the game ends or a hard failure aborts it.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hpark92/chess-trainer-bot/internal/board"
	"github.com/hpark92/chess-trainer-bot/internal/browser"
	"github.com/hpark92/chess-trainer-bot/internal/engine"
	"github.com/hpark92/chess-trainer-bot/internal/movelog"
)

// State is the loop's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateAwaitingTurn
	StateExecuting
	StateLogging
	StateTerminal
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingTurn:
		return "awaiting_turn"
	case StateExecuting:
		return "executing"
	case StateLogging:
		return "logging"
	case StateTerminal:
		return "terminal"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MoveSource produces the next move for the position reached by playing
// the given move list from fen; empty fen means the standard initial
// position.
type MoveSource interface {
	BestMove(ctx context.Context, fen string, moves []string) (engine.Analysis, error)
}

// MoveSink places a validated move on the page and reports which
// strategy landed it.
type MoveSink interface {
	Execute(ctx context.Context, mv browser.Move) (string, error)
}

// Result is the final report of one game.
type Result struct {
	State    State
	Reason   string
	Outcome  board.Outcome
	Moves    int
	FinalFEN string
	LogPath  string
	// Strategies lists the distinct execution strategies that landed
	// moves, in first-use order.
	Strategies []string
}

// Options tunes one loop run.
type Options struct {
	MaxMoves int
	// MoveDelay spaces out consecutive moves so play looks human.
	MoveDelay time.Duration
	// BeforeMove runs at the top of each iteration; used to dismiss
	// popups that appeared since the last move. May be nil.
	BeforeMove func(ctx context.Context)
	// PageFEN reads the position straight from the page when the page
	// exposes one. When set, an engine move the tracker rejects triggers
	// one resync from the page instead of an immediate abort. May be nil.
	PageFEN func(ctx context.Context) (string, bool)
}

// Loop plays one game to completion.
type Loop struct {
	gameID  string
	source  MoveSource
	tracker *board.Tracker
	sink    MoveSink
	log     *movelog.Log
	opts    Options
	logger  *zap.Logger
	state   State

	strategies []string
	resynced   bool
}

// New assembles a loop. log may be nil when move logging is disabled.
func New(gameID string, source MoveSource, tracker *board.Tracker, sink MoveSink, log *movelog.Log, opts Options, logger *zap.Logger) (*Loop, error) {
	if source == nil || tracker == nil || sink == nil {
		return nil, errors.New("source, tracker and sink are required")
	}
	if opts.MaxMoves <= 0 {
		return nil, fmt.Errorf("max moves must be positive: %d", opts.MaxMoves)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		gameID:  gameID,
		source:  source,
		tracker: tracker,
		sink:    sink,
		log:     log,
		opts:    opts,
		logger:  logger,
		state:   StateIdle,
	}, nil
}

// State reports the loop's current state.
func (l *Loop) State() State {
	return l.state
}

func (l *Loop) transition(to State) {
	l.logger.Debug("state transition",
		zap.String("game_id", l.gameID),
		zap.Stringer("from", l.state),
		zap.Stringer("to", to))
	l.state = to
}

// Run plays until the game ends, the move budget runs out, or a hard
// failure aborts it. Cancellation is honored at iteration boundaries so
// a move that has started executing always completes or fails whole.
// The returned error is non-nil exactly when the loop aborted.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	l.transition(StateAwaitingTurn)

	for played := 0; played < l.opts.MaxMoves; played++ {
		select {
		case <-ctx.Done():
			return l.abort(fmt.Sprintf("canceled: %v", ctx.Err()), ctx.Err())
		default:
		}

		if done, outcome := l.tracker.Terminal(); done {
			return l.finish(outcome, "game_over"), nil
		}

		if l.opts.BeforeMove != nil {
			l.opts.BeforeMove(ctx)
		}

		l.transition(StateExecuting)
		side := l.tracker.Turn()

		analysis, err := l.source.BestMove(ctx, l.tracker.BaseFEN(), l.tracker.MovesUCI())
		if err != nil {
			if errors.Is(err, engine.ErrNoMove) {
				// The engine sees no legal move; trust the tracker's verdict.
				if done, outcome := l.tracker.Terminal(); done {
					return l.finish(outcome, "game_over"), nil
				}
			}
			return l.abort("engine failure", err)
		}

		san, err := l.tracker.Apply(analysis.BestMove)
		if err != nil {
			if errors.Is(err, board.ErrIllegalMove) && l.resyncFromPage(ctx, analysis.BestMove) {
				continue
			}
			return l.abort(fmt.Sprintf("engine proposed %s", analysis.BestMove), err)
		}

		mv, err := browser.ParseMove(analysis.BestMove)
		if err != nil {
			return l.abort("unparseable engine move", err)
		}
		strategy, err := l.sink.Execute(ctx, mv)
		if err != nil {
			return l.abort(fmt.Sprintf("move %s not placed", mv.UCI), err)
		}
		l.noteStrategy(strategy)

		l.transition(StateLogging)
		if l.log != nil {
			l.log.Append(movelog.Record{
				Seq:       l.tracker.MoveCount(),
				Side:      side,
				SAN:       san,
				UCI:       mv.UCI,
				Timestamp: time.Now(),
				Strategy:  strategy,
				EvalCP:    analysis.EvalCP,
			})
		}

		l.logger.Info("move played",
			zap.String("game_id", l.gameID),
			zap.Int("seq", l.tracker.MoveCount()),
			zap.String("side", string(side)),
			zap.String("san", san),
			zap.String("strategy", strategy))

		l.transition(StateAwaitingTurn)

		if l.opts.MoveDelay > 0 {
			select {
			case <-ctx.Done():
				return l.abort(fmt.Sprintf("canceled: %v", ctx.Err()), ctx.Err())
			case <-time.After(l.opts.MoveDelay):
			}
		}
	}

	if done, outcome := l.tracker.Terminal(); done {
		return l.finish(outcome, "game_over"), nil
	}
	return l.finish(board.Outcome{}, "move_limit"), nil
}

func (l *Loop) finish(outcome board.Outcome, reason string) Result {
	l.transition(StateTerminal)
	res := Result{
		State:      StateTerminal,
		Reason:     reason,
		Outcome:    outcome,
		Moves:      l.tracker.MoveCount(),
		FinalFEN:   l.tracker.FEN(),
		Strategies: l.strategies,
	}
	res.LogPath = l.flush(outcome.Result, reasonOrMethod(reason, outcome))
	l.logger.Info("game finished",
		zap.String("game_id", l.gameID),
		zap.String("reason", reason),
		zap.String("result", outcome.Result),
		zap.Int("moves", res.Moves))
	return res
}

func (l *Loop) abort(reason string, cause error) (Result, error) {
	l.transition(StateAborted)
	res := Result{
		State:      StateAborted,
		Reason:     reason,
		Moves:      l.tracker.MoveCount(),
		FinalFEN:   l.tracker.FEN(),
		Strategies: l.strategies,
	}
	res.LogPath = l.flush("", "aborted")
	l.logger.Error("game aborted",
		zap.String("game_id", l.gameID),
		zap.String("reason", reason),
		zap.Int("moves", res.Moves),
		zap.Error(cause))
	return res, fmt.Errorf("game aborted (%s): %w", reason, cause)
}

// resyncFromPage recovers from a tracker/page divergence: when the page
// exposes a FEN that differs from the tracker's, adopt it and let the
// next iteration search the corrected position. Allowed once per game so
// a persistently broken hook cannot spin the loop.
func (l *Loop) resyncFromPage(ctx context.Context, rejected string) bool {
	if l.opts.PageFEN == nil || l.resynced {
		return false
	}
	fen, ok := l.opts.PageFEN(ctx)
	if !ok || fen == l.tracker.FEN() {
		return false
	}
	if err := l.tracker.Resync(fen); err != nil {
		l.logger.Warn("page fen rejected",
			zap.String("game_id", l.gameID),
			zap.String("fen", fen),
			zap.Error(err))
		return false
	}
	l.resynced = true
	l.logger.Warn("resynced from page",
		zap.String("game_id", l.gameID),
		zap.String("rejected_move", rejected),
		zap.String("fen", fen))
	return true
}

func (l *Loop) noteStrategy(name string) {
	for _, s := range l.strategies {
		if s == name {
			return
		}
	}
	l.strategies = append(l.strategies, name)
}

func (l *Loop) flush(result, method string) string {
	if l.log == nil {
		return ""
	}
	path, err := l.log.Flush(result, method, l.tracker.FEN())
	if err != nil {
		l.logger.Error("move log flush failed", zap.String("game_id", l.gameID), zap.Error(err))
		return ""
	}
	return path
}

func reasonOrMethod(reason string, outcome board.Outcome) string {
	if outcome.Method != "" {
		return outcome.Method
	}
	return reason
}
