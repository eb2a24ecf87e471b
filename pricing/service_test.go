package pricing_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/internal/store"
	"github.com/semanticallynull/bikeshare-backend/internal/testutil"
	"github.com/semanticallynull/bikeshare-backend/pricing"
)

func TestService(t *testing.T) {
	db := testutil.StartPostgres(t)
	svc := pricing.NewService(store.New(db))
	ctx := context.Background()

	rule := func(perMinute int64) pricing.Rule {
		return pricing.Rule{
			PerMinute:          decimal.NewFromInt(perMinute),
			UnlockFee:          decimal.NewFromInt(10),
			MinBalanceRequired: decimal.NewFromInt(50),
			OffDockPenalty:     decimal.NewFromInt(100),
		}
	}

	t.Run("no active rule", func(t *testing.T) {
		testutil.Reset(t, db)

		_, err := svc.Active(ctx)

		assert.ErrorIs(t, err, apperrors.ErrNoActivePricingRule)
	})

	t.Run("update replaces the active rule", func(t *testing.T) {
		testutil.Reset(t, db)
		first, err := svc.Update(ctx, rule(2))
		require.NoError(t, err)

		second, err := svc.Update(ctx, rule(3))
		require.NoError(t, err)

		active, err := svc.Active(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.ID, active.ID)
		assert.NotEqual(t, first.ID, active.ID)
		assert.Equal(t, "3", active.PerMinute.String())

		var total int
		require.NoError(t, db.Get(&total, `SELECT count(*) FROM pricing_rules`))
		assert.Equal(t, 2, total, "old rules are kept for rides that reference them")
	})

	t.Run("concurrent updates leave exactly one active rule", func(t *testing.T) {
		testutil.Reset(t, db)

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := svc.Update(ctx, rule(int64(i+1)))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		var active int
		require.NoError(t, db.Get(&active, `SELECT count(*) FROM pricing_rules WHERE active`))
		assert.Equal(t, 1, active)
	})

	t.Run("invalid rules are rejected", func(t *testing.T) {
		testutil.Reset(t, db)
		bad := rule(2)
		bad.OffDockPenalty = decimal.NewFromInt(-5)

		_, err := svc.Update(ctx, bad)

		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}
