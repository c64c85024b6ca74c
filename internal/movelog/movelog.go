// Package movelog records every executed move in order and persists the
// finished game as a structured JSON file named after its start time.
package movelog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hpark92/chess-trainer-bot/internal/board"
)

// Record is one executed half-move.
type Record struct {
	Seq       int        `json:"seq"`
	Side      board.Side `json:"side"`
	SAN       string     `json:"san"`
	UCI       string     `json:"uci"`
	Timestamp time.Time  `json:"timestamp"`
	Strategy  string     `json:"strategy"`
	EvalCP    int        `json:"eval_cp,omitempty"`
}

// GameFile is the on-disk shape of a flushed log.
type GameFile struct {
	GameID    string    `json:"game_id"`
	StartedAt time.Time `json:"started_at"`
	FlushedAt time.Time `json:"flushed_at"`
	Result    string    `json:"result,omitempty"`
	Method    string    `json:"method,omitempty"`
	FinalFEN  string    `json:"final_fen,omitempty"`
	Moves     []Record  `json:"moves"`
}

// Log accumulates records in memory. Append is cheap; nothing touches the
// filesystem until Flush. A Log belongs to a single game.
type Log struct {
	gameID    string
	dir       string
	startedAt time.Time
	records   []Record
	now       func() time.Time
}

// New creates an empty log for one game. Records are flushed under dir.
func New(gameID, dir string) *Log {
	return &Log{
		gameID:    gameID,
		dir:       dir,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Append adds one record to the in-memory sequence.
func (l *Log) Append(rec Record) {
	l.records = append(l.records, rec)
}

// Len reports the number of records appended so far.
func (l *Log) Len() int {
	return len(l.records)
}

// Records returns a copy of the appended records in order.
func (l *Log) Records() []Record {
	return append([]Record(nil), l.records...)
}

// Flush writes the whole log to a timestamped JSON file and returns its
// path. The directory is created if needed. Flushing an empty log still
// produces a file so an aborted game leaves a trace of having produced
// no moves.
func (l *Log) Flush(result, method, finalFEN string) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}

	now := l.now()
	file := GameFile{
		GameID:    l.gameID,
		StartedAt: l.startedAt,
		FlushedAt: now,
		Result:    result,
		Method:    method,
		FinalFEN:  finalFEN,
		Moves:     l.records,
	}
	if file.Moves == nil {
		file.Moves = []Record{}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal move log: %w", err)
	}

	path := filepath.Join(l.dir, fmt.Sprintf("moves_%s.json", l.startedAt.Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write move log: %w", err)
	}
	return path, nil
}

// Load reads a previously flushed log file.
func Load(path string) (*GameFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read move log: %w", err)
	}
	var file GameFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse move log %s: %w", path, err)
	}
	return &file, nil
}
