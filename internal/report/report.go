package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"score-trader/internal/types"
)

// Summary aggregates realized performance over closed positions.
type Summary struct {
	Closed      int                        `json:"closed"`
	Wins        int                        `json:"wins"`
	Losses      int                        `json:"losses"`
	WinRate     float64                    `json:"win_rate"`
	RealizedPnL float64                    `json:"realized_pnl"`
	ByReason    map[types.CloseReason]int  `json:"by_reason"`
	BySide      map[types.Side]SideSummary `json:"by_side"`
}

type SideSummary struct {
	Closed      int     `json:"closed"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// Summarize computes realized performance. Breakeven closes count as
// neither win nor loss.
func Summarize(closed []types.Position) Summary {
	s := Summary{
		ByReason: make(map[types.CloseReason]int),
		BySide:   make(map[types.Side]SideSummary),
	}
	for _, p := range closed {
		s.Closed++
		s.RealizedPnL += p.RealizedPnL
		if p.RealizedPnL > 0 {
			s.Wins++
		} else if p.RealizedPnL < 0 {
			s.Losses++
		}
		s.ByReason[p.CloseReason]++
		side := s.BySide[p.Side]
		side.Closed++
		side.RealizedPnL += p.RealizedPnL
		s.BySide[p.Side] = side
	}
	if s.Wins+s.Losses > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Wins+s.Losses)
	}
	return s
}

// WriteDailyCSV writes per-symbol realized results for positions closed on
// the given day (UTC) to dir/eod/YYYY-MM-DD.csv and returns the path.
// Returns an empty path when nothing closed that day.
func WriteDailyCSV(dir string, closed []types.Position, day time.Time) (string, error) {
	type row struct {
		count int
		pnl   float64
	}
	date := day.UTC().Format("2006-01-02")
	rows := map[string]*row{}
	for _, p := range closed {
		if p.ClosedAt.UTC().Format("2006-01-02") != date {
			continue
		}
		r := rows[p.Symbol]
		if r == nil {
			r = &row{}
			rows[p.Symbol] = r
		}
		r.count++
		r.pnl += p.RealizedPnL
	}
	if len(rows) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := filepath.Join(dir, "eod", date+".csv")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()
	if err := w.Write([]string{"symbol", "closed", "realized_pnl"}); err != nil {
		return "", err
	}
	var total float64
	for _, k := range keys {
		r := rows[k]
		rec := []string{k, strconv.Itoa(r.count), fmt.Sprintf("%.2f", r.pnl)}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		total += r.pnl
	}
	_ = w.Write([]string{"TOTAL", "", fmt.Sprintf("%.2f", total)})
	return outPath, w.Error()
}
