// Package engine wraps a UCI chess engine binary behind a small
// request/response API. The engine runs as a child process; every failure
// to reach it surfaces as ErrEngineUnavailable so callers can treat the
// engine as a single fallible dependency.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// ErrEngineUnavailable reports that the engine binary could not be
// started or stopped responding mid-game.
var ErrEngineUnavailable = errors.New("engine unavailable")

// ErrNoMove reports that the engine returned no playable move for the
// position, which happens when the game is already over.
var ErrNoMove = errors.New("engine returned no move")

// Options configures the engine process at startup.
type Options struct {
	Threads    int
	SkillLevel int
	HashMB     int
}

// Limits bounds a single search.
type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// Analysis is the result of a single search.
type Analysis struct {
	BestMove string
	EvalCP   int
	Depth    int
}

// Engine is a live UCI engine process. Not safe for concurrent searches;
// the game loop is strictly sequential so a single session suffices.
type Engine struct {
	sess   *session
	limits Limits
	logger *zap.Logger
}

// New starts the engine at binaryPath and performs the UCI handshake.
// A missing or non-executable binary returns ErrEngineUnavailable.
func New(ctx context.Context, binaryPath string, opt Options, limits Limits, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	if limits.Depth <= 0 && limits.MoveTimeMillis <= 0 && limits.NodeCap <= 0 {
		return nil, errors.New("no search limits configured")
	}

	info, err := os.Stat(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrEngineUnavailable, binaryPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrEngineUnavailable, binaryPath)
	}

	sess, err := newSession(ctx, binaryPath, opt, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	logger.Info("engine started",
		zap.String("binary", binaryPath),
		zap.Int("threads", opt.Threads),
		zap.Int("skill_level", opt.SkillLevel))

	return &Engine{sess: sess, limits: limits, logger: logger}, nil
}

func validateOptions(opt Options) error {
	if opt.SkillLevel < 0 || opt.SkillLevel > 20 {
		return fmt.Errorf("skill level %d out of range 0-20", opt.SkillLevel)
	}
	if opt.HashMB <= 0 {
		return fmt.Errorf("hash size must be > 0: %d", opt.HashMB)
	}
	return nil
}

// BestMove searches the position reached by playing moves (long algebraic)
// from fen and returns the engine's choice. An empty fen means the
// standard initial position. Engine I/O failures return
// ErrEngineUnavailable.
func (e *Engine) BestMove(ctx context.Context, fen string, moves []string) (Analysis, error) {
	res, err := e.sess.searchBest(ctx, fen, moves, e.limits)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if res.BestMove == "" || res.BestMove == "(none)" {
		return Analysis{}, ErrNoMove
	}
	return Analysis{BestMove: res.BestMove, EvalCP: res.EvalCP, Depth: res.Depth}, nil
}

// NewGame resets engine state between games.
func (e *Engine) NewGame(ctx context.Context) error {
	if err := e.sess.newGame(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}

// Close terminates the engine process.
func (e *Engine) Close() error {
	return e.sess.close()
}
