package calculator

import (
	"time"

	"github.com/shopspring/decimal"

	"PortfolioWatch/internal/model"
)

// HistorySummary condenses a ticker's daily history for display.
type HistorySummary struct {
	From, To    time.Time
	Bars        int
	LastClose   decimal.Decimal
	High52w     decimal.Decimal
	Low52w      decimal.Decimal
	High30d     decimal.Decimal
	Low30d      decimal.Decimal
	Position52w decimal.Decimal
	MA50        *decimal.Decimal // nil when history is too short
	MA200       *decimal.Decimal
}

// Summarize computes the summary of bars, or false when there are none.
func Summarize(bars []model.OHLCV) (HistorySummary, bool) {
	if len(bars) == 0 {
		return HistorySummary{}, false
	}
	last := bars[len(bars)-1]
	s := HistorySummary{
		From:      bars[0].Time,
		To:        last.Time,
		Bars:      len(bars),
		LastClose: last.Close,
	}
	s.High52w, s.Low52w, _ = Calculate52WeekRange(bars)
	s.High30d, s.Low30d, _ = Calculate30DayRange(bars)
	s.Position52w, _ = Calculate52WeekPosition(last.Close, s.High52w, s.Low52w)
	if ma, err := CalculateMA50(bars); err == nil {
		s.MA50 = &ma
	}
	if ma, err := CalculateMA200(bars); err == nil {
		s.MA200 = &ma
	}
	return s, true
}
