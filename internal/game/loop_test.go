package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hpark92/chess-trainer-bot/internal/board"
	"github.com/hpark92/chess-trainer-bot/internal/browser"
	"github.com/hpark92/chess-trainer-bot/internal/engine"
	"github.com/hpark92/chess-trainer-bot/internal/movelog"
)

// scriptedSource replays a fixed move list, one per call, and records
// the position each request was anchored to.
type scriptedSource struct {
	moves []string
	next  int
	err   error

	fens      []string
	moveLists [][]string
}

func (s *scriptedSource) BestMove(ctx context.Context, fen string, moves []string) (engine.Analysis, error) {
	s.fens = append(s.fens, fen)
	s.moveLists = append(s.moveLists, append([]string(nil), moves...))
	if s.err != nil {
		return engine.Analysis{}, s.err
	}
	if s.next >= len(s.moves) {
		return engine.Analysis{}, engine.ErrNoMove
	}
	mv := s.moves[s.next]
	s.next++
	return engine.Analysis{BestMove: mv, EvalCP: 10}, nil
}

type fakeSink struct {
	strategy string
	err      error
	calls    int
}

func (f *fakeSink) Execute(ctx context.Context, mv browser.Move) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.strategy, nil
}

func newLoop(t *testing.T, source MoveSource, sink MoveSink, maxMoves int) (*Loop, *movelog.Log) {
	t.Helper()
	log := movelog.New("test-game", t.TempDir())
	l, err := New("test-game", source, board.NewTracker(), sink, log, Options{MaxMoves: maxMoves}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return l, log
}

func TestRunPlaysToCheckmate(t *testing.T) {
	source := &scriptedSource{moves: []string{"f2f3", "e7e5", "g2g4", "d8h4"}}
	sink := &fakeSink{strategy: "drag"}
	l, log := newLoop(t, source, sink, 100)

	res, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateTerminal {
		t.Errorf("State = %v, want terminal", res.State)
	}
	if res.Outcome.Result != "black" || res.Outcome.Method != "checkmate" {
		t.Errorf("Outcome = %+v", res.Outcome)
	}
	if res.Moves != 4 {
		t.Errorf("Moves = %d, want 4", res.Moves)
	}
	if log.Len() != 4 {
		t.Errorf("log has %d records, want 4", log.Len())
	}
	if res.LogPath == "" {
		t.Error("log was not flushed")
	}
	if len(res.Strategies) != 1 || res.Strategies[0] != "drag" {
		t.Errorf("Strategies = %v, want [drag]", res.Strategies)
	}

	file, err := movelog.Load(res.LogPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if file.Method != "checkmate" {
		t.Errorf("flushed method = %q", file.Method)
	}
}

func TestRunFirstMoveRecord(t *testing.T) {
	source := &scriptedSource{moves: []string{"e2e4", "e7e5"}}
	sink := &fakeSink{strategy: "script"}
	l, log := newLoop(t, source, sink, 2)

	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	recs := log.Records()
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	first := recs[0]
	if first.Seq != 1 || first.Side != board.White || first.SAN != "e4" || first.UCI != "e2e4" {
		t.Errorf("first record = %+v", first)
	}
	if first.Strategy != "script" {
		t.Errorf("Strategy = %q", first.Strategy)
	}
	if recs[1].Side != board.Black {
		t.Errorf("second record side = %q", recs[1].Side)
	}
}

func TestRunStopsAtMoveLimit(t *testing.T) {
	source := &scriptedSource{moves: []string{"e2e4", "e7e5", "g1f3", "b8c6"}}
	sink := &fakeSink{strategy: "drag"}
	l, _ := newLoop(t, source, sink, 2)

	res, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateTerminal || res.Reason != "move_limit" {
		t.Errorf("res = %+v", res)
	}
	if res.Moves != 2 {
		t.Errorf("Moves = %d, want 2", res.Moves)
	}
	if sink.calls != 2 {
		t.Errorf("sink calls = %d, want 2", sink.calls)
	}
}

func TestRunAbortsWhenEngineUnavailable(t *testing.T) {
	source := &scriptedSource{err: engine.ErrEngineUnavailable}
	sink := &fakeSink{strategy: "drag"}
	l, log := newLoop(t, source, sink, 10)

	res, err := l.Run(context.Background())
	if !errors.Is(err, engine.ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
	if res.State != StateAborted {
		t.Errorf("State = %v, want aborted", res.State)
	}
	if res.Moves != 0 {
		t.Errorf("Moves = %d, want 0", res.Moves)
	}
	if log.Len() != 0 {
		t.Errorf("log has %d records, want 0", log.Len())
	}
	// An aborted game still flushes so the empty log is on disk.
	if res.LogPath == "" {
		t.Error("aborted game should flush its log")
	}
	if sink.calls != 0 {
		t.Errorf("sink calls = %d, want 0", sink.calls)
	}
}

func TestRunAbortsWhenExecutionFails(t *testing.T) {
	source := &scriptedSource{moves: []string{"e2e4"}}
	sink := &fakeSink{err: browser.ErrExecutionFailed}
	l, log := newLoop(t, source, sink, 10)

	res, err := l.Run(context.Background())
	if !errors.Is(err, browser.ErrExecutionFailed) {
		t.Fatalf("err = %v, want ErrExecutionFailed", err)
	}
	if res.State != StateAborted {
		t.Errorf("State = %v, want aborted", res.State)
	}
	if log.Len() != 0 {
		t.Errorf("failed move must not be logged, got %d records", log.Len())
	}
}

func TestRunAbortsOnIllegalEngineMove(t *testing.T) {
	source := &scriptedSource{moves: []string{"e2e5"}}
	sink := &fakeSink{strategy: "drag"}
	l, _ := newLoop(t, source, sink, 10)

	res, err := l.Run(context.Background())
	if !errors.Is(err, board.ErrIllegalMove) {
		t.Fatalf("err = %v, want ErrIllegalMove", err)
	}
	if res.State != StateAborted {
		t.Errorf("State = %v, want aborted", res.State)
	}
	if sink.calls != 0 {
		t.Error("illegal move must not reach the page")
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	source := &scriptedSource{moves: []string{"e2e4", "e7e5", "g1f3", "b8c6"}}
	sink := &fakeSink{strategy: "drag"}
	log := movelog.New("test-game", t.TempDir())
	l, err := New("test-game", source, board.NewTracker(), sink, log,
		Options{MaxMoves: 100, MoveDelay: 50 * time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(75 * time.Millisecond)
		cancel()
	}()

	res, err := l.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.State != StateAborted {
		t.Errorf("State = %v, want aborted", res.State)
	}
	// Cancellation lands between moves, never mid-move.
	if log.Len() != res.Moves {
		t.Errorf("log has %d records but %d moves played", log.Len(), res.Moves)
	}
}

func TestRunBeforeMoveHook(t *testing.T) {
	source := &scriptedSource{moves: []string{"e2e4", "e7e5"}}
	sink := &fakeSink{strategy: "drag"}
	log := movelog.New("test-game", t.TempDir())

	hookCalls := 0
	l, err := New("test-game", source, board.NewTracker(), sink, log, Options{
		MaxMoves:   2,
		BeforeMove: func(ctx context.Context) { hookCalls++ },
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if hookCalls != 2 {
		t.Errorf("hook calls = %d, want 2", hookCalls)
	}
}

func TestRunAnchorsSearchesToBaseFEN(t *testing.T) {
	source := &scriptedSource{moves: []string{"e2e4", "e7e5"}}
	sink := &fakeSink{strategy: "drag"}
	l, _ := newLoop(t, source, sink, 2)

	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(source.fens) != 2 {
		t.Fatalf("source called %d times, want 2", len(source.fens))
	}
	// A fresh game searches from the initial position with a growing move list.
	if source.fens[0] != "" || source.fens[1] != "" {
		t.Errorf("fens = %v, want empty (startpos)", source.fens)
	}
	if len(source.moveLists[1]) != 1 || source.moveLists[1][0] != "e2e4" {
		t.Errorf("second move list = %v, want [e2e4]", source.moveLists[1])
	}
}

func TestRunResyncsFromPageOnDivergence(t *testing.T) {
	// Rh1-g1 is illegal from the starting position but legal in the
	// position the page reports, so the loop must adopt the page's FEN
	// and retry instead of aborting.
	const pageFEN = "7k/8/8/8/8/8/8/K6R w - - 0 1"
	source := &scriptedSource{moves: []string{"h1g1", "h1g1"}}
	sink := &fakeSink{strategy: "drag"}
	log := movelog.New("test-game", t.TempDir())

	l, err := New("test-game", source, board.NewTracker(), sink, log, Options{
		MaxMoves: 2,
		PageFEN:  func(ctx context.Context) (string, bool) { return pageFEN, true },
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Moves != 1 {
		t.Errorf("Moves = %d, want 1", res.Moves)
	}
	recs := log.Records()
	if len(recs) != 1 || recs[0].UCI != "h1g1" || recs[0].SAN != "Rg1" {
		t.Errorf("records = %+v", recs)
	}
	// After the resync the engine searches the page's position, not startpos.
	last := source.fens[len(source.fens)-1]
	if last != pageFEN {
		t.Errorf("post-resync fen = %q, want %q", last, pageFEN)
	}
	if len(source.moveLists[len(source.moveLists)-1]) != 0 {
		t.Errorf("post-resync move list = %v, want empty", source.moveLists[len(source.moveLists)-1])
	}
}

func TestRunResyncsOnlyOnce(t *testing.T) {
	// The second illegal move after a resync aborts; a broken page hook
	// must not spin the loop forever.
	source := &scriptedSource{moves: []string{"h1g1", "e2e4"}}
	sink := &fakeSink{strategy: "drag"}
	log := movelog.New("test-game", t.TempDir())

	l, err := New("test-game", source, board.NewTracker(), sink, log, Options{
		MaxMoves: 10,
		PageFEN:  func(ctx context.Context) (string, bool) { return "7k/8/8/8/8/8/8/K6R w - - 0 1", true },
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := l.Run(context.Background())
	if !errors.Is(err, board.ErrIllegalMove) {
		t.Fatalf("err = %v, want ErrIllegalMove", err)
	}
	if res.State != StateAborted {
		t.Errorf("State = %v, want aborted", res.State)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("g", nil, board.NewTracker(), &fakeSink{}, nil, Options{MaxMoves: 1}, nil); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := New("g", &scriptedSource{}, board.NewTracker(), &fakeSink{}, nil, Options{}, nil); err == nil {
		t.Error("expected error for zero max moves")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateIdle:         "idle",
		StateAwaitingTurn: "awaiting_turn",
		StateExecuting:    "executing",
		StateLogging:      "logging",
		StateTerminal:     "terminal",
		StateAborted:      "aborted",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(state), got, want)
		}
	}
}
