// Package snapshot renders a finished game's final position to a PNG so
// each logged game carries a picture of how it ended.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"os"
	"path/filepath"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	squareSize = 72
	boardSize  = squareSize * 8
	margin     = 28
)

var (
	lightSquare    = color.RGBA{233, 207, 163, 255}
	darkSquare     = color.RGBA{187, 136, 96, 255}
	highlightFill  = color.NRGBA{R: 255, G: 228, B: 120, A: 110}
	backgroundFill = color.RGBA{34, 32, 30, 255}
	coordinateText = color.NRGBA{R: 220, G: 216, B: 208, A: 255}
)

// Renderer rasterizes positions. Safe for reuse across games; the piece
// raster cache is shared.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Capture renders the position in fen, highlighting the last move if
// given in long algebraic form, and writes <gameID>.png under dir.
func (r *Renderer) Capture(ctx context.Context, fen, lastMoveUCI, dir, gameID string) (string, error) {
	option, err := nchess.FEN(fen)
	if err != nil {
		return "", fmt.Errorf("parse fen: %w", err)
	}
	game := nchess.NewGame(option)

	data, err := r.RenderPNG(ctx, game.Position().Board(), lastMoveUCI)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, gameID+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// RenderPNG draws the board from white's point of view.
func (r *Renderer) RenderPNG(ctx context.Context, board *nchess.Board, lastMoveUCI string) ([]byte, error) {
	if board == nil {
		return nil, fmt.Errorf("board is nil")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	total := boardSize + margin*2
	origin := image.Point{X: margin, Y: margin}
	img := image.NewRGBA(image.Rect(0, 0, total, total))

	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundFill), image.Point{}, imagedraw.Src)
	drawSquares(img, origin)
	if err := drawPieces(img, board, origin); err != nil {
		return nil, err
	}
	drawHighlight(img, lastMoveUCI, origin)
	drawCoordinates(img, origin)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	rankOrder = []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	fileOrder = []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
)

func drawSquares(dst imagedraw.Image, origin image.Point) {
	for row := range rankOrder {
		for col := range fileOrder {
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			clr := lightSquare
			if (row+col)%2 == 1 {
				clr = darkSquare
			}
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(dst imagedraw.Image, board *nchess.Board, origin image.Point) error {
	boardMap := board.SquareMap()
	for row, rank := range rankOrder {
		for col, file := range fileOrder {
			piece := boardMap[nchess.NewSquare(file, rank)]
			if piece == nchess.NoPiece {
				continue
			}
			pieceImg, err := renderPieceImage(piece, squareSize)
			if err != nil {
				return err
			}
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), pieceImg, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

// drawHighlight tints the from and to squares of the last move.
func drawHighlight(dst imagedraw.Image, lastMoveUCI string, origin image.Point) {
	if len(lastMoveUCI) < 4 {
		return
	}
	for _, sq := range []string{lastMoveUCI[:2], lastMoveUCI[2:4]} {
		file := int(sq[0] - 'a')
		rank := int(sq[1] - '1')
		if file < 0 || file > 7 || rank < 0 || rank > 7 {
			continue
		}
		x := origin.X + file*squareSize
		y := origin.Y + (7-rank)*squareSize
		imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), image.NewUniform(highlightFill), image.Point{}, imagedraw.Over)
	}
}

func drawCoordinates(img *image.RGBA, origin image.Point) {
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(coordinateText),
		Face: basicfont.Face7x13,
	}

	for col := 0; col < 8; col++ {
		label := string(rune('a' + col))
		x := origin.X + col*squareSize + squareSize/2 - 3
		y := origin.Y + boardSize + 18
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(label)
	}
	for row := 0; row < 8; row++ {
		label := string(rune('8' - row))
		x := origin.X - 16
		y := origin.Y + row*squareSize + squareSize/2 + 4
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(label)
	}
}
