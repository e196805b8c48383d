package marketdata

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"score-trader/internal/logger"
)

// BinanceTicker keeps streaming last prices for crypto symbols between
// scan cycles, over the Binance combined miniTicker stream. Quotes from
// the scan gateway remain authoritative; the stream only freshens the
// price used by stop/take checks.
type BinanceTicker struct {
	url    string
	mu     sync.RWMutex
	prices map[string]float64 // keyed by our symbol form, e.g. BTC-USD
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBinanceTicker() *BinanceTicker {
	return &BinanceTicker{
		url:    "wss://stream.binance.com:9443/stream",
		prices: make(map[string]float64),
	}
}

type miniTickerMsg struct {
	Data struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

// Start connects and begins the read loop. Reconnects with backoff until
// the context is cancelled.
func (t *BinanceTicker) Start(ctx context.Context, symbols []string) error {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, streamName(s)+"@miniTicker")
	}
	if len(streams) == 0 {
		return nil
	}
	url := t.url + "?streams=" + strings.Join(streams, "/")

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.loop(ctx, url)
	return nil
}

func (t *BinanceTicker) loop(ctx context.Context, url string) {
	defer close(t.done)
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			logger.Warn(ctx, "Ticker stream dial failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		logger.Info(ctx, "Ticker stream connected")

		t.read(ctx, conn)
		conn.Close()
	}
}

func (t *BinanceTicker) read(ctx context.Context, conn *websocket.Conn) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn(ctx, "Ticker stream read failed, reconnecting", "error", err)
			}
			return
		}
		var msg miniTickerMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Data.Event != "24hrMiniTicker" {
			continue
		}
		price, err := strconv.ParseFloat(msg.Data.Close, 64)
		if err != nil || price <= 0 {
			continue
		}
		sym := ourSymbol(msg.Data.Symbol)
		t.mu.Lock()
		t.prices[sym] = price
		t.mu.Unlock()
	}
}

// Stop cancels the read loop and waits for it to exit.
func (t *BinanceTicker) Stop(ctx context.Context) {
	if t.cancel == nil {
		return
	}
	t.cancel()
	select {
	case <-t.done:
	case <-ctx.Done():
	}
}

// LastPrice returns the latest streamed price for a symbol.
func (t *BinanceTicker) LastPrice(symbol string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.prices[symbol]
	return p, ok
}

// streamName maps BTC-USD to the Binance stream form btcusdt.
func streamName(symbol string) string {
	base := strings.TrimSuffix(symbol, "-USD")
	return strings.ToLower(base) + "usdt"
}

// ourSymbol maps BTCUSDT back to BTC-USD.
func ourSymbol(binance string) string {
	base := strings.TrimSuffix(strings.ToUpper(binance), "USDT")
	return base + "-USD"
}
