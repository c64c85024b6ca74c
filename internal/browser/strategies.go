package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

// Strategies returns the session's move strategies in execution order:
// mouse drag first, then the script hook, then keyboard entry.
func (s *Session) Strategies(boardSel string) []Strategy {
	return []Strategy{
		&dragStrategy{session: s, boardSel: boardSel},
		&scriptStrategy{session: s},
		&keyboardStrategy{session: s},
	}
}

// BoardSignature is a Verifier over the rendered piece layout.
func (s *Session) BoardSignature(ctx context.Context) (string, error) {
	var sig string
	script := `(function() {
		const b = document.querySelector('wc-chess-board') || document.querySelector('chess-board');
		if (b && b.game && typeof b.game.getFEN === 'function') { return b.game.getFEN(); }
		const pieces = document.querySelectorAll('.piece, [class*="piece-"], [data-piece]');
		const parts = [];
		pieces.forEach(function(p) {
			parts.push(p.className + '@' + (p.style.transform || p.style.left + ',' + p.style.top));
		});
		parts.sort();
		return parts.join('|');
	})()`
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(script, &sig)); err != nil {
		return "", fmt.Errorf("read board signature: %w", err)
	}
	return sig, nil
}

// dragStrategy moves a piece by synthesizing mouse events over the board
// element. Closest to what a human does, so it is tried first.
type dragStrategy struct {
	session  *Session
	boardSel string
}

func (d *dragStrategy) Name() string { return "drag" }

func (d *dragStrategy) Play(ctx context.Context, mv Move) error {
	s := d.session
	rect, err := s.boardRect(ctx, d.boardSel)
	if err != nil {
		return err
	}
	whiteView := s.Orientation(ctx)

	fromX, fromY, err := squareCenter(rect, mv.From, whiteView)
	if err != nil {
		return err
	}
	toX, toY, err := squareCenter(rect, mv.To, whiteView)
	if err != nil {
		return err
	}

	const steps = 12
	err = chromedp.Run(s.ctx, chromedp.ActionFunc(func(runCtx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, fromX, fromY).Do(runCtx); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MousePressed, fromX, fromY).
			WithButton(input.Left).
			WithClickCount(1).
			Do(runCtx); err != nil {
			return err
		}
		for i := 1; i <= steps; i++ {
			frac := float64(i) / steps
			x := fromX + (toX-fromX)*frac
			y := fromY + (toY-fromY)*frac
			if err := input.DispatchMouseEvent(input.MouseMoved, x, y).
				WithButton(input.Left).
				Do(runCtx); err != nil {
				return err
			}
			// runCtx is the tab's context; ctx carries the play timeout.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-runCtx.Done():
				return runCtx.Err()
			case <-time.After(15 * time.Millisecond):
			}
		}
		return input.DispatchMouseEvent(input.MouseReleased, toX, toY).
			WithButton(input.Left).
			WithClickCount(1).
			Do(runCtx)
	}))
	if err != nil {
		return fmt.Errorf("drag %s: %w", mv.UCI, err)
	}

	if mv.Promotion != "" {
		d.pickPromotion(ctx)
	}
	return nil
}

// pickPromotion clicks the queen in the promotion dialog if one appeared.
// Underpromotion is not supported through the drag path; the script
// strategy handles it exactly.
func (d *dragStrategy) pickPromotion(ctx context.Context) {
	s := d.session
	if sel, err := s.firstVisible(ctx, promotionQueenSelectors, 1500*time.Millisecond); err == nil {
		if err := chromedp.Run(s.ctx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
			s.logger.Warn("promotion click failed", zap.String("selector", sel), zap.Error(err))
		}
	}
}

// scriptStrategy calls the page's own board API. Fast and exact, but only
// works while the site exposes the hook.
type scriptStrategy struct {
	session *Session
}

func (j *scriptStrategy) Name() string { return "script" }

func (j *scriptStrategy) Play(ctx context.Context, mv Move) error {
	script := fmt.Sprintf(`(function() {
		const req = {from: %q, to: %q, promotion: %q || undefined};
		const b = document.querySelector('wc-chess-board') || document.querySelector('chess-board');
		if (b && b.game && typeof b.game.move === 'function') {
			try { return !!b.game.move(req); } catch (e) { return false; }
		}
		if (window.board && window.board.game && typeof window.board.game.move === 'function') {
			try { return !!window.board.game.move(req); } catch (e) { return false; }
		}
		return false;
	})()`, mv.From, mv.To, mv.Promotion)

	var ok bool
	if err := chromedp.Run(j.session.ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("script move %s: %w", mv.UCI, err)
	}
	if !ok {
		return fmt.Errorf("script move %s: no board hook accepted it", mv.UCI)
	}
	return nil
}

// keyboardStrategy types the move into the site's move input field.
type keyboardStrategy struct {
	session *Session
}

func (k *keyboardStrategy) Name() string { return "keyboard" }

func (k *keyboardStrategy) Play(ctx context.Context, mv Move) error {
	s := k.session
	sel, err := s.firstVisible(ctx, moveInputSelectors, 2*time.Second)
	if err != nil {
		return fmt.Errorf("keyboard move %s: %w", mv.UCI, err)
	}
	if err := chromedp.Run(s.ctx,
		chromedp.Click(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, mv.UCI, chromedp.ByQuery),
		chromedp.SendKeys(sel, kb.Enter, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("keyboard move %s: %w", mv.UCI, err)
	}
	return nil
}
