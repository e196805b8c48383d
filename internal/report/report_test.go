package report

import (
	"encoding/csv"
	"os"
	"testing"
	"time"

	"score-trader/internal/types"
)

func closedPos(symbol string, side types.Side, pnl float64, reason types.CloseReason, closedAt time.Time) types.Position {
	return types.Position{
		Symbol:      symbol,
		Side:        side,
		Status:      types.StatusClosed,
		CloseReason: reason,
		RealizedPnL: pnl,
		ClosedAt:    closedAt,
	}
}

func TestSummarize(t *testing.T) {
	now := time.Now()
	closed := []types.Position{
		closedPos("AAPL", types.Long, 120, types.CloseTakeProfit, now),
		closedPos("AAPL", types.Long, -50, types.CloseStopLoss, now),
		closedPos("DOGE-USD", types.Short, 30, types.CloseScoreReversal, now),
		closedPos("SOL-USD", types.Short, 0, types.CloseManual, now),
	}

	s := Summarize(closed)
	if s.Closed != 4 || s.Wins != 2 || s.Losses != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.RealizedPnL != 100 {
		t.Errorf("expected total pnl 100, got %f", s.RealizedPnL)
	}
	if s.WinRate != 2.0/3.0 {
		t.Errorf("breakeven closes must not count toward win rate, got %f", s.WinRate)
	}
	if s.ByReason[types.CloseStopLoss] != 1 {
		t.Errorf("expected 1 stop-loss close, got %d", s.ByReason[types.CloseStopLoss])
	}
	if got := s.BySide[types.Short]; got.Closed != 2 || got.RealizedPnL != 30 {
		t.Errorf("unexpected short side summary: %+v", got)
	}
}

func TestWriteDailyCSV(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 8, 27, 15, 0, 0, 0, time.UTC)
	closed := []types.Position{
		closedPos("AAPL", types.Long, 120, types.CloseTakeProfit, day),
		closedPos("AAPL", types.Long, -20, types.CloseStopLoss, day.Add(time.Hour)),
		closedPos("DOGE-USD", types.Short, 30, types.CloseScoreReversal, day.AddDate(0, 0, -1)),
	}

	path, err := WriteDailyCSV(dir, closed, day)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse report: %v", err)
	}
	// header + AAPL + TOTAL; the prior-day close is excluded
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %v", len(rows), rows)
	}
	if rows[1][0] != "AAPL" || rows[1][1] != "2" || rows[1][2] != "100.00" {
		t.Errorf("unexpected symbol row %v", rows[1])
	}
	if rows[2][0] != "TOTAL" || rows[2][2] != "100.00" {
		t.Errorf("unexpected total row %v", rows[2])
	}
}

func TestWriteDailyCSVEmptyDay(t *testing.T) {
	path, err := WriteDailyCSV(t.TempDir(), nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path for empty day, got %q", path)
	}
}
