package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// Rect is the board's bounding box in page coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// boardRect measures the board element identified by sel.
func (s *Session) boardRect(ctx context.Context, sel string) (Rect, error) {
	var rect Rect
	script := fmt.Sprintf(`(function() {
		const el = document.querySelector(%q);
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height};
	})()`, sel)
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(script, &rect)); err != nil {
		return Rect{}, fmt.Errorf("measure board %s: %w", sel, err)
	}
	if rect.Width <= 0 || rect.Height <= 0 {
		return Rect{}, fmt.Errorf("board %s has zero size", sel)
	}
	return rect, nil
}

// squareCenter maps a square name ("e4") to page coordinates inside rect.
// whiteView selects the orientation: from white's side a1 is bottom-left,
// from black's side it is top-right.
func squareCenter(rect Rect, square string, whiteView bool) (x, y float64, err error) {
	if len(square) != 2 {
		return 0, 0, fmt.Errorf("bad square %q", square)
	}
	file := int(square[0] - 'a')
	rank := int(square[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, 0, fmt.Errorf("bad square %q", square)
	}

	sq := rect.Width / 8
	if whiteView {
		x = rect.X + (float64(file)+0.5)*sq
		y = rect.Y + (float64(7-rank)+0.5)*sq
	} else {
		x = rect.X + (float64(7-file)+0.5)*sq
		y = rect.Y + (float64(rank)+0.5)*sq
	}
	return x, y, nil
}
