package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hpark92/chess-trainer-bot/internal/board"
	"github.com/hpark92/chess-trainer-bot/internal/browser"
	"github.com/hpark92/chess-trainer-bot/internal/config"
	"github.com/hpark92/chess-trainer-bot/internal/engine"
	"github.com/hpark92/chess-trainer-bot/internal/game"
	"github.com/hpark92/chess-trainer-bot/internal/history"
	"github.com/hpark92/chess-trainer-bot/internal/movelog"
	"github.com/hpark92/chess-trainer-bot/internal/obslog"
	"github.com/hpark92/chess-trainer-bot/internal/snapshot"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := obslog.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
	}
	logger := obslog.L()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config error", zap.Error(err))
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg.EnginePath,
		engine.Options{Threads: cfg.Threads, SkillLevel: cfg.SkillLevel, HashMB: cfg.HashMB},
		engine.Limits{MoveTimeMillis: cfg.MoveTimeMillis},
		logger)
	if err != nil {
		logger.Error("engine startup failed", zap.String("path", cfg.EnginePath), zap.Error(err))
		return 1
	}
	defer eng.Close()

	session, err := browser.NewSession(ctx, browser.SessionConfig{
		BaseURL:  cfg.BaseURL,
		Headless: cfg.Headless,
	}, logger)
	if err != nil {
		logger.Error("browser startup failed", zap.Error(err))
		return 1
	}
	defer session.Close()

	if cfg.Username != "" && cfg.Password != "" {
		if err := session.Login(ctx, cfg.Username, cfg.Password); err != nil {
			logger.Error("login failed", zap.Error(err))
			return 1
		}
	}

	store := openHistoryStore(ctx, cfg, logger)
	var renderer *snapshot.Renderer
	if cfg.SnapshotDir != "" {
		renderer = snapshot.NewRenderer()
	}

	for {
		gameErr := playGame(ctx, cfg, eng, session, store, renderer, logger)
		if gameErr != nil {
			logger.Error("game failed", zap.Error(gameErr))
		}

		again, code := afterGame(ctx, cfg.ContinuousPlay, gameErr)
		if !again {
			return code
		}

		logger.Info("starting next game")
		if err := eng.NewGame(ctx); err != nil {
			logger.Error("engine reset failed", zap.Error(err))
			return 1
		}
		time.Sleep(2 * time.Second)
	}
}

// afterGame decides whether another game starts and, if not, the exit
// code. Continuous play rides out failed games; only cancellation ends
// it, and an abort at that point still exits non-zero.
func afterGame(ctx context.Context, continuous bool, gameErr error) (again bool, code int) {
	if ctx.Err() != nil {
		if gameErr != nil {
			return false, 1
		}
		return false, 0
	}
	if !continuous {
		if gameErr != nil {
			return false, 1
		}
		return false, 0
	}
	return true, 0
}

func playGame(ctx context.Context, cfg *config.Config, eng *engine.Engine, session *browser.Session, store history.Store, renderer *snapshot.Renderer, logger *zap.Logger) error {
	gameID := uuid.NewString()
	startedAt := time.Now()

	if err := session.Navigate(ctx, "/play/computer"); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	session.DismissPopups(ctx)

	boardSel, err := session.WaitBoardReady(ctx, 30*time.Second)
	if err != nil {
		return fmt.Errorf("board never appeared: %w", err)
	}

	executor := browser.NewExecutor(session.Strategies(boardSel), session.BoardSignature, logger)

	var log *movelog.Log
	if cfg.LogMoves {
		log = movelog.New(gameID, cfg.LogDir)
	}

	loop, err := game.New(gameID, eng, board.NewTracker(), executor, log, game.Options{
		MaxMoves:   cfg.MaxMoves,
		MoveDelay:  time.Duration(cfg.MoveTimeMillis) * time.Millisecond / 2,
		BeforeMove: session.DismissPopups,
		PageFEN:    session.PageFEN,
	}, logger)
	if err != nil {
		return fmt.Errorf("loop setup: %w", err)
	}

	result, runErr := loop.Run(ctx)

	recordGame(ctx, store, renderer, cfg.SnapshotDir, gameID, startedAt, result, logger)

	if runErr != nil {
		if cfg.SnapshotDir != "" {
			shot := filepath.Join(cfg.SnapshotDir, gameID+"_abort.png")
			if err := session.Screenshot(ctx, shot); err != nil {
				logger.Warn("abort screenshot failed", zap.Error(err))
			}
		}
		return runErr
	}
	fmt.Printf("game %s: %s (%s) after %d moves\n", gameID, resultText(result), result.Reason, result.Moves)
	return nil
}

func recordGame(ctx context.Context, store history.Store, renderer *snapshot.Renderer, snapshotDir, gameID string, startedAt time.Time, result game.Result, logger *zap.Logger) {
	entry := history.Entry{
		GameID:     gameID,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Result:     result.Outcome.Result,
		Method:     result.Outcome.Method,
		MoveCount:  result.Moves,
		Strategies: result.Strategies,
		FinalFEN:   result.FinalFEN,
		LogPath:    result.LogPath,
	}

	if renderer != nil && result.FinalFEN != "" {
		path, err := renderer.Capture(ctx, result.FinalFEN, "", snapshotDir, gameID)
		if err != nil {
			logger.Warn("snapshot failed", zap.String("game_id", gameID), zap.Error(err))
		} else {
			entry.SnapshotPath = path
		}
	}

	if err := store.Save(ctx, entry); err != nil {
		logger.Warn("history save failed", zap.String("game_id", gameID), zap.Error(err))
	}
}

func openHistoryStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) history.Store {
	if cfg.RedisURL != "" {
		store, err := history.NewRedisStore(ctx, cfg.RedisURL)
		if err == nil {
			logger.Info("using redis game history")
			return store
		}
		logger.Warn("redis unavailable, keeping history in memory", zap.Error(err))
	}
	return history.NewMemoryStore()
}

func resultText(result game.Result) string {
	if result.Outcome.Result == "" {
		return "unfinished"
	}
	if result.Outcome.Result == "draw" {
		return "draw"
	}
	return result.Outcome.Result + " wins"
}
