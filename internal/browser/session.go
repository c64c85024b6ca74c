// Package browser drives the chess site through a real Chrome instance.
// It owns the page lifecycle (navigation, login, popup dismissal, board
// discovery) and the move execution strategies that act on it.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// SessionConfig controls the Chrome instance and the target site.
type SessionConfig struct {
	BaseURL  string
	Headless bool
	// UserAgent overrides the default when non-empty.
	UserAgent string
}

// Session is a live browser tab on the chess site. Not safe for
// concurrent use; the game loop is the only caller.
type Session struct {
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	ctx         context.Context
	baseURL     string
	logger      *zap.Logger
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// NewSession launches Chrome and opens a tab. The caller must Close it.
func NewSession(parent context.Context, cfg SessionConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.UserAgent(ua),
		chromedp.WindowSize(1400, 900),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		allocCancel: allocCancel,
		ctxCancel:   tabCancel,
		ctx:         tabCtx,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		logger:      logger,
	}

	// Hide the webdriver flag before any site script runs.
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(
		`Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`, nil)); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	logger.Info("browser started", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// Context returns the tab context for running chromedp actions.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close tears down the tab and the Chrome process.
func (s *Session) Close() {
	if s.ctxCancel != nil {
		s.ctxCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// Navigate opens the given path relative to the base URL.
func (s *Session) Navigate(ctx context.Context, path string) error {
	url := s.baseURL + path
	if err := chromedp.Run(s.ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.logger.Debug("navigated", zap.String("url", url))
	return s.waitSettled(ctx, 2*time.Second)
}

// Login signs in with the given credentials. Each form field is located
// by trying a list of selector candidates since the site markup shifts
// between redesigns and AB tests.
func (s *Session) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required for login")
	}

	if err := s.Navigate(ctx, "/login"); err != nil {
		return err
	}

	userSel, err := s.firstVisible(ctx, loginUserSelectors, 10*time.Second)
	if err != nil {
		return fmt.Errorf("locate username field: %w", err)
	}
	passSel, err := s.firstVisible(ctx, loginPassSelectors, 5*time.Second)
	if err != nil {
		return fmt.Errorf("locate password field: %w", err)
	}

	if err := chromedp.Run(s.ctx,
		chromedp.Click(userSel, chromedp.ByQuery),
		chromedp.SendKeys(userSel, username, chromedp.ByQuery),
		chromedp.Click(passSel, chromedp.ByQuery),
		chromedp.SendKeys(passSel, password, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill login form: %w", err)
	}

	submitSel, err := s.firstVisible(ctx, loginSubmitSelectors, 5*time.Second)
	if err != nil {
		return fmt.Errorf("locate login button: %w", err)
	}
	if err := chromedp.Run(s.ctx, chromedp.Click(submitSel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}

	if err := s.waitSettled(ctx, 5*time.Second); err != nil {
		return err
	}
	s.logger.Info("logged in", zap.String("username", username))
	return nil
}

// DismissPopups closes whatever modal or banner is currently covering the
// page. Best effort: missing popups are not an error.
func (s *Session) DismissPopups(ctx context.Context) {
	for _, sel := range popupCloseSelectors {
		var clicked bool
		script := fmt.Sprintf(`(function() {
			const el = document.querySelector(%q);
			if (el && el.offsetHeight > 0) { el.click(); return true; }
			return false;
		})()`, sel)
		if err := chromedp.Run(s.ctx, chromedp.Evaluate(script, &clicked)); err != nil {
			continue
		}
		if clicked {
			s.logger.Debug("dismissed popup", zap.String("selector", sel))
			time.Sleep(300 * time.Millisecond)
		}
	}
}

// WaitBoardReady blocks until a board element is visible and returns the
// selector that matched.
func (s *Session) WaitBoardReady(ctx context.Context, timeout time.Duration) (string, error) {
	sel, err := s.firstVisible(ctx, boardSelectors, timeout)
	if err != nil {
		return "", fmt.Errorf("board not found: %w", err)
	}
	s.logger.Info("board ready", zap.String("selector", sel))
	return sel, nil
}

// PageFEN tries to read the position directly from the page's board
// object. Returns false when no known hook exposes one.
func (s *Session) PageFEN(ctx context.Context) (string, bool) {
	var fen string
	script := `(function() {
		const b = document.querySelector('wc-chess-board') || document.querySelector('chess-board');
		if (b && b.game && typeof b.game.getFEN === 'function') { return b.game.getFEN(); }
		if (window.board && window.board.game && typeof window.board.game.fen === 'function') { return window.board.game.fen(); }
		return '';
	})()`
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(script, &fen)); err != nil {
		return "", false
	}
	fen = strings.TrimSpace(fen)
	return fen, fen != ""
}

// Orientation reports whether the board is rendered from white's point of
// view. Defaults to white when the page gives no signal.
func (s *Session) Orientation(ctx context.Context) bool {
	var flipped bool
	script := `(function() {
		const b = document.querySelector('wc-chess-board') || document.querySelector('chess-board') || document.querySelector('.board');
		if (!b) return false;
		return b.classList.contains('flipped') || (b.game && b.game.getOptions && b.game.getOptions().flipped === true);
	})()`
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(script, &flipped)); err != nil {
		return true
	}
	return !flipped
}

// Screenshot captures the page into path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := chromedp.Run(s.ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create screenshot dir: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

// firstVisible polls until one of the selector candidates is visible and
// returns it.
func (s *Session) firstVisible(ctx context.Context, candidates []string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	joined := strings.Join(candidates, ", ")
	for {
		for _, sel := range candidates {
			var visible bool
			script := fmt.Sprintf(`(function() {
				const el = document.querySelector(%q);
				if (!el) return false;
				const style = window.getComputedStyle(el);
				return el.offsetHeight !== 0 && style.display !== 'none' && style.visibility !== 'hidden';
			})()`, sel)
			if err := chromedp.Run(s.ctx, chromedp.Evaluate(script, &visible)); err == nil && visible {
				return sel, nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("none of [%s] became visible within %v", joined, timeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// waitSettled waits for document.readyState to reach complete, bounded by
// timeout. Sites that never finish loading ad iframes should not hang us.
func (s *Session) waitSettled(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var state string
		if err := chromedp.Run(s.ctx, chromedp.Evaluate(`document.readyState`, &state)); err == nil && state == "complete" {
			return nil
		}
		if time.Now().After(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
