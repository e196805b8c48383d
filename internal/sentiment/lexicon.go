package sentiment

import "strings"

// Keyword lexicon for headline polarity. Deliberately small: headlines
// are short and the aggregate signal is only one quarter of the short
// scorer's weight.
var bullishTerms = []string{
	"surge", "soar", "rally", "breakout", "bullish", "record high",
	"all-time high", "adoption", "upgrade", "approval", "etf inflow",
	"partnership", "gains", "rebound", "recover",
}

var bearishTerms = []string{
	"crash", "plunge", "plummet", "dump", "bearish", "sell-off",
	"selloff", "liquidation", "hack", "exploit", "ban", "lawsuit",
	"sec charges", "fraud", "delist", "outflow", "collapse", "fear",
}

// ScoreHeadlines maps headline polarity onto the [0,10] health scale.
// 5 is neutral; each net bullish hit pulls up, each bearish hit pulls
// down. Returns the score and the number of headlines that matched
// anything at all.
func ScoreHeadlines(headlines []Headline) (float64, int) {
	if len(headlines) == 0 {
		return 5.0, 0
	}

	net, matched := 0, 0
	for _, h := range headlines {
		title := strings.ToLower(h.Title)
		hit := false
		for _, term := range bullishTerms {
			if strings.Contains(title, term) {
				net++
				hit = true
			}
		}
		for _, term := range bearishTerms {
			if strings.Contains(title, term) {
				net--
				hit = true
			}
		}
		if hit {
			matched++
		}
	}

	score := 5.0 + float64(net)*0.75
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score, matched
}
