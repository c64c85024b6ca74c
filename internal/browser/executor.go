package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrExecutionFailed reports that every strategy failed to land the move
// on the page.
var ErrExecutionFailed = errors.New("move execution failed")

// Move is one move to place on the page, already validated by the rules.
type Move struct {
	UCI       string
	From      string
	To        string
	Promotion string
}

// ParseMove splits a long-algebraic move string into its parts.
func ParseMove(uci string) (Move, error) {
	raw := strings.ToLower(strings.TrimSpace(uci))
	if len(raw) != 4 && len(raw) != 5 {
		return Move{}, fmt.Errorf("bad uci move %q", uci)
	}
	mv := Move{UCI: raw, From: raw[:2], To: raw[2:4]}
	if len(raw) == 5 {
		mv.Promotion = raw[4:]
	}
	for _, sq := range []string{mv.From, mv.To} {
		if sq[0] < 'a' || sq[0] > 'h' || sq[1] < '1' || sq[1] > '8' {
			return Move{}, fmt.Errorf("bad uci move %q", uci)
		}
	}
	if mv.Promotion != "" && !strings.ContainsAny(mv.Promotion, "qrbn") {
		return Move{}, fmt.Errorf("bad promotion in %q", uci)
	}
	return mv, nil
}

// Strategy is one way of placing a move on the page.
type Strategy interface {
	Name() string
	Play(ctx context.Context, mv Move) error
}

// Verifier checks whether the page's board actually changed. It returns
// an opaque signature of the rendered position; execution succeeded when
// the signature after a strategy differs from the one before.
type Verifier func(ctx context.Context) (string, error)

// Executor tries each strategy in a fixed order until one is confirmed
// to have changed the board.
type Executor struct {
	strategies    []Strategy
	verify        Verifier
	playTimeout   time.Duration
	verifyTimeout time.Duration
	logger        *zap.Logger
}

// NewExecutor builds an executor over the given strategies, tried in
// order. verify may be nil, in which case a strategy returning nil is
// trusted.
func NewExecutor(strategies []Strategy, verify Verifier, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		strategies:    strategies,
		verify:        verify,
		playTimeout:   8 * time.Second,
		verifyTimeout: 2 * time.Second,
		logger:        logger,
	}
}

// Execute places mv on the page and returns the name of the strategy that
// succeeded. When all strategies fail the board is guaranteed unchanged
// (each attempt is only counted a success if the verifier saw a change).
func (e *Executor) Execute(ctx context.Context, mv Move) (string, error) {
	if len(e.strategies) == 0 {
		return "", fmt.Errorf("%w: no strategies configured", ErrExecutionFailed)
	}

	before := ""
	if e.verify != nil {
		sig, err := e.verify(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: read board state: %v", ErrExecutionFailed, err)
		}
		before = sig
	}

	var attempts []string
	for _, strat := range e.strategies {
		playCtx, cancel := context.WithTimeout(ctx, e.playTimeout)
		err := strat.Play(playCtx, mv)
		cancel()

		if err != nil {
			e.logger.Warn("strategy failed",
				zap.String("strategy", strat.Name()),
				zap.String("move", mv.UCI),
				zap.Error(err))
			attempts = append(attempts, fmt.Sprintf("%s: %v", strat.Name(), err))
			continue
		}

		if e.verify == nil {
			return strat.Name(), nil
		}
		if e.confirmChanged(ctx, before) {
			e.logger.Info("move executed",
				zap.String("strategy", strat.Name()),
				zap.String("move", mv.UCI))
			return strat.Name(), nil
		}
		attempts = append(attempts, fmt.Sprintf("%s: board unchanged", strat.Name()))
	}

	return "", fmt.Errorf("%w: %s: %s", ErrExecutionFailed, mv.UCI, strings.Join(attempts, "; "))
}

// confirmChanged polls the verifier until the signature moves away from
// before or the verify window closes.
func (e *Executor) confirmChanged(ctx context.Context, before string) bool {
	deadline := time.Now().Add(e.verifyTimeout)
	for {
		sig, err := e.verify(ctx)
		if err == nil && sig != before {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(150 * time.Millisecond):
		}
	}
}
