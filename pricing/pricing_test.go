package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
)

func standardRule() Rule {
	return Rule{
		PerMinute:          decimal.NewFromInt(2),
		PerKm:              decimal.NewFromInt(1),
		UnlockFee:          decimal.NewFromInt(10),
		MinBalanceRequired: decimal.NewFromInt(50),
		OffDockPenalty:     decimal.NewFromInt(100),
	}
}

func TestPrice(t *testing.T) {
	rule := standardRule()

	assert.Equal(t, "30", Price(10, rule, false).String(), "docked")
	assert.Equal(t, "130", Price(10, rule, true).String(), "off-dock")
	assert.Equal(t, "10", Price(0, rule, false).String(), "unlock fee only")

	rule.PerMinute = decimal.RequireFromString("0.15")
	assert.Equal(t, "14.5", Price(30, rule, false).String(), "fractional rates")
}

func TestMinutes(t *testing.T) {
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, Minutes(start, start))
	assert.Equal(t, 0, Minutes(start, start.Add(59*time.Second)))
	assert.Equal(t, 1, Minutes(start, start.Add(60*time.Second)))
	assert.Equal(t, 10, Minutes(start, start.Add(10*time.Minute+59*time.Second)))
	assert.Equal(t, 0, Minutes(start, start.Add(-time.Minute)), "clock skew")
}

func TestRuleValidate(t *testing.T) {
	assert.NoError(t, standardRule().Validate())

	negative := standardRule()
	negative.PerMinute = decimal.NewFromInt(-1)
	assert.ErrorIs(t, negative.Validate(), apperrors.ErrValidation)

	subCent := standardRule()
	subCent.PerMinute = decimal.RequireFromString("0.155")
	assert.ErrorIs(t, subCent.Validate(), apperrors.ErrValidation)

	trailingZeros := standardRule()
	trailingZeros.PerMinute = decimal.RequireFromString("0.1500")
	assert.NoError(t, trailingZeros.Validate())

	noHold := standardRule()
	noHold.MinBalanceRequired = decimal.Zero
	assert.ErrorIs(t, noHold.Validate(), apperrors.ErrValidation)
}
