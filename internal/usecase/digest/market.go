package digest

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Futures tracked by the widget.
const (
	SymbolArabica = "KC=F"
	SymbolRobusta = "RC=F"
)

// MarketData carries the chart metadata of the coffee futures. A quote that
// could not be fetched is null.
type MarketData struct {
	Arabica json.RawMessage `json:"arabica"`
	Robusta json.RawMessage `json:"robusta"`
}

// FetchMarketData reads both futures from src. Failures are logged and leave
// the quote null; a nil src yields an empty MarketData.
func FetchMarketData(ctx context.Context, src MarketSource, logger *zap.Logger) MarketData {
	var m MarketData
	if src == nil {
		return m
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, q := range []struct {
		symbol string
		dst    *json.RawMessage
	}{
		{SymbolArabica, &m.Arabica},
		{SymbolRobusta, &m.Robusta},
	} {
		meta, err := src.Quote(ctx, q.symbol)
		if err != nil {
			logger.Warn("Market data unavailable", zap.String("symbol", q.symbol), zap.Error(err))
			continue
		}
		*q.dst = meta
	}
	return m
}
