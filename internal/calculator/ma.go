package calculator

import (
	"errors"

	"github.com/shopspring/decimal"

	"PortfolioWatch/internal/model"
)

// CalculateSMA computes the simple moving average of the last period prices.
func CalculateSMA(prices []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, errors.New("period must be positive")
	}
	if len(prices) < period {
		return decimal.Zero, errors.New("not enough data for SMA calculation")
	}
	sum := decimal.Sum(decimal.Zero, prices[len(prices)-period:]...)
	return sum.Div(decimal.NewFromInt(int64(period))), nil
}

// CalculateMA200 returns the 200-day simple moving average from daily bars.
func CalculateMA200(dailyBars []model.OHLCV) (decimal.Decimal, error) {
	return CalculateSMA(extractCloses(dailyBars), 200)
}

// CalculateMA50 returns the 50-day simple moving average from daily bars.
func CalculateMA50(dailyBars []model.OHLCV) (decimal.Decimal, error) {
	return CalculateSMA(extractCloses(dailyBars), 50)
}

func extractCloses(bars []model.OHLCV) []decimal.Decimal {
	closes := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
