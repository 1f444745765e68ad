package calculator

import (
	"errors"

	"github.com/shopspring/decimal"

	"PortfolioWatch/internal/model"
)

const (
	tradingDays52w = 252
	tradingDays30d = 22
)

// Calculate52WeekRange scans the most recent 252 trading days and returns the high and low.
func Calculate52WeekRange(dailyBars []model.OHLCV) (high, low decimal.Decimal, err error) {
	return rangeOver(dailyBars, tradingDays52w)
}

// Calculate30DayRange scans the most recent 22 trading days and returns the high and low.
func Calculate30DayRange(dailyBars []model.OHLCV) (high, low decimal.Decimal, err error) {
	return rangeOver(dailyBars, tradingDays30d)
}

func rangeOver(dailyBars []model.OHLCV, days int) (high, low decimal.Decimal, err error) {
	if len(dailyBars) == 0 {
		return decimal.Zero, decimal.Zero, errors.New("no daily bars provided")
	}
	start := len(dailyBars) - days
	if start < 0 {
		start = 0
	}
	high, low = dailyBars[start].High, dailyBars[start].Low
	for _, b := range dailyBars[start+1:] {
		high = decimal.Max(high, b.High)
		low = decimal.Min(low, b.Low)
	}
	return high, low, nil
}

// Calculate52WeekPosition returns where the current price sits within the range (0..1).
func Calculate52WeekPosition(current, high, low decimal.Decimal) (decimal.Decimal, error) {
	if high.Equal(low) {
		return decimal.NewFromFloat(0.5), nil
	}
	if high.LessThan(low) {
		return decimal.Zero, errors.New("high must be >= low")
	}
	pos := current.Sub(low).Div(high.Sub(low))
	one := decimal.NewFromInt(1)
	return decimal.Max(decimal.Zero, decimal.Min(pos, one)), nil
}
