package browser

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type fakeStrategy struct {
	name   string
	err    error
	played int
	// onPlay runs on success, letting tests flip the fake board state.
	onPlay func()
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Play(ctx context.Context, mv Move) error {
	f.played++
	if f.err != nil {
		return f.err
	}
	if f.onPlay != nil {
		f.onPlay()
	}
	return nil
}

func fastExecutor(strategies []Strategy, verify Verifier) *Executor {
	e := NewExecutor(strategies, verify, nil)
	e.playTimeout = time.Second
	e.verifyTimeout = 300 * time.Millisecond
	return e
}

func mustMove(t *testing.T, uci string) Move {
	t.Helper()
	mv, err := ParseMove(uci)
	if err != nil {
		t.Fatal(err)
	}
	return mv
}

func TestExecuteFirstStrategyWins(t *testing.T) {
	first := &fakeStrategy{name: "drag"}
	second := &fakeStrategy{name: "script"}

	name, err := fastExecutor([]Strategy{first, second}, nil).Execute(context.Background(), mustMove(t, "e2e4"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if name != "drag" {
		t.Errorf("strategy = %q, want drag", name)
	}
	if second.played != 0 {
		t.Error("second strategy should not run after first succeeds")
	}
}

func TestExecuteFallsThroughToThirdStrategy(t *testing.T) {
	boom := errors.New("boom")
	first := &fakeStrategy{name: "drag", err: boom}
	second := &fakeStrategy{name: "script", err: boom}
	third := &fakeStrategy{name: "keyboard"}

	name, err := fastExecutor([]Strategy{first, second, third}, nil).Execute(context.Background(), mustMove(t, "g1f3"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if name != "keyboard" {
		t.Errorf("strategy = %q, want keyboard", name)
	}
	if first.played != 1 || second.played != 1 || third.played != 1 {
		t.Errorf("play counts = %d/%d/%d", first.played, second.played, third.played)
	}
}

func TestExecuteAllFail(t *testing.T) {
	boom := errors.New("boom")
	strategies := []Strategy{
		&fakeStrategy{name: "drag", err: boom},
		&fakeStrategy{name: "script", err: boom},
		&fakeStrategy{name: "keyboard", err: boom},
	}

	_, err := fastExecutor(strategies, nil).Execute(context.Background(), mustMove(t, "e2e4"))
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("err = %v, want ErrExecutionFailed", err)
	}
}

func TestExecuteVerifierRejectsSilentFailure(t *testing.T) {
	// First strategy returns nil but never changes the board; the verifier
	// must force the fallback to the strategy that really moves it.
	state := "initial"
	liar := &fakeStrategy{name: "drag"}
	honest := &fakeStrategy{name: "script", onPlay: func() { state = "moved" }}
	verify := func(ctx context.Context) (string, error) { return state, nil }

	name, err := fastExecutor([]Strategy{liar, honest}, verify).Execute(context.Background(), mustMove(t, "e2e4"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if name != "script" {
		t.Errorf("strategy = %q, want script", name)
	}
}

func TestExecuteNoStrategies(t *testing.T) {
	_, err := fastExecutor(nil, nil).Execute(context.Background(), mustMove(t, "e2e4"))
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("err = %v, want ErrExecutionFailed", err)
	}
}

func TestParseMove(t *testing.T) {
	mv, err := ParseMove("E2E4")
	if err != nil {
		t.Fatal(err)
	}
	if mv.From != "e2" || mv.To != "e4" || mv.Promotion != "" {
		t.Errorf("mv = %+v", mv)
	}

	mv, err = ParseMove("a7a8q")
	if err != nil {
		t.Fatal(err)
	}
	if mv.Promotion != "q" {
		t.Errorf("Promotion = %q", mv.Promotion)
	}

	for _, bad := range []string{"", "e2", "e2e", "i2i4", "e2e9", "a7a8x"} {
		if _, err := ParseMove(bad); err == nil {
			t.Errorf("ParseMove(%q) should fail", bad)
		}
	}
}

func TestSquareCenter(t *testing.T) {
	rect := Rect{X: 100, Y: 200, Width: 800, Height: 800}

	x, y, err := squareCenter(rect, "a1", true)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(x-150) > 0.01 || math.Abs(y-950) > 0.01 {
		t.Errorf("a1 white view = (%v, %v), want (150, 950)", x, y)
	}

	x, y, err = squareCenter(rect, "a1", false)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(x-850) > 0.01 || math.Abs(y-250) > 0.01 {
		t.Errorf("a1 black view = (%v, %v), want (850, 250)", x, y)
	}

	x, y, err = squareCenter(rect, "h8", true)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(x-850) > 0.01 || math.Abs(y-250) > 0.01 {
		t.Errorf("h8 white view = (%v, %v), want (850, 250)", x, y)
	}

	if _, _, err := squareCenter(rect, "z9", true); err == nil {
		t.Error("expected error for bad square")
	}
}
