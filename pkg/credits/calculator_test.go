package credits_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelift/billing/pkg/credits"
)

func TestCalculateUpgradeCredits(t *testing.T) {
	t.Parallel()

	t.Run("plausible balance grants exactly the tier difference", func(t *testing.T) {
		t.Parallel()
		d, err := credits.CalculateUpgradeCredits(210, 200, 1000)
		require.NoError(t, err)

		assert.Equal(t, int64(800), d.CreditsToAdd)
		assert.Equal(t, credits.ReasonTopUpToMinimum, d.Reason)
		assert.True(t, d.IsLegitimate)
		assert.Equal(t, int64(300), d.MaxReasonableBalance)
	})

	t.Run("inflated balance is blocked as farming", func(t *testing.T) {
		t.Parallel()
		d, err := credits.CalculateUpgradeCredits(5000, 200, 5000)
		require.NoError(t, err)

		assert.Equal(t, int64(0), d.CreditsToAdd)
		assert.Equal(t, credits.ReasonFarmingBlocked, d.Reason)
		assert.False(t, d.IsLegitimate)
	})

	t.Run("threshold boundary is inclusive", func(t *testing.T) {
		t.Parallel()

		// floor(200 * 1.5) = 300: exactly 300 is still plausible.
		d, err := credits.CalculateUpgradeCredits(300, 200, 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(800), d.CreditsToAdd)
		assert.True(t, d.IsLegitimate)

		// 301 crosses the line.
		d, err = credits.CalculateUpgradeCredits(301, 200, 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(0), d.CreditsToAdd)
		assert.Equal(t, credits.ReasonFarmingBlocked, d.Reason)
	})

	t.Run("excess at or above new baseline is preserved", func(t *testing.T) {
		t.Parallel()

		// 550 already covers the 500-credit baseline; the surplus is kept
		// and the tier difference still lands on top.
		d, err := credits.CalculateUpgradeCredits(550, 400, 500)
		require.NoError(t, err)

		assert.Equal(t, int64(100), d.CreditsToAdd)
		assert.Equal(t, credits.ReasonPreserveLegitimateExcess, d.Reason)
		assert.True(t, d.IsLegitimate)

		// A balance below the new baseline is a top-up even when the grant
		// overshoots it.
		d, err = credits.CalculateUpgradeCredits(280, 200, 500)
		require.NoError(t, err)
		assert.Equal(t, int64(300), d.CreditsToAdd)
		assert.Equal(t, credits.ReasonTopUpToMinimum, d.Reason)
	})

	t.Run("upgrade from free tier blocks any existing balance", func(t *testing.T) {
		t.Parallel()

		// previousTierCredits=0 means maxReasonable=0: any balance is suspect.
		d, err := credits.CalculateUpgradeCredits(50, 0, 500)
		require.NoError(t, err)
		assert.Equal(t, credits.ReasonFarmingBlocked, d.Reason)

		d, err = credits.CalculateUpgradeCredits(0, 0, 500)
		require.NoError(t, err)
		assert.Equal(t, int64(500), d.CreditsToAdd)
	})

	t.Run("rejects non-upgrades", func(t *testing.T) {
		t.Parallel()

		_, err := credits.CalculateUpgradeCredits(100, 500, 500)
		assert.ErrorIs(t, err, credits.ErrNotAnUpgrade)

		_, err = credits.CalculateUpgradeCredits(100, 500, 200)
		assert.ErrorIs(t, err, credits.ErrNotAnUpgrade)
	})

	t.Run("rejects negative inputs", func(t *testing.T) {
		t.Parallel()

		_, err := credits.CalculateUpgradeCredits(-1, 200, 500)
		assert.ErrorIs(t, err, credits.ErrNegativeInput)

		_, err = credits.CalculateUpgradeCredits(100, -200, 500)
		assert.ErrorIs(t, err, credits.ErrNegativeInput)

		_, err = credits.CalculateUpgradeCredits(100, 200, -500)
		assert.ErrorIs(t, err, credits.ErrNegativeInput)
	})

	t.Run("custom rollover factor moves the threshold", func(t *testing.T) {
		t.Parallel()

		strict := credits.Policy{RolloverFactor: 1.0}
		d, err := strict.CalculateUpgradeCredits(201, 200, 1000)
		require.NoError(t, err)
		assert.Equal(t, credits.ReasonFarmingBlocked, d.Reason)
		assert.Equal(t, int64(200), d.MaxReasonableBalance)
	})
}

func TestCalculateDowngradeCredits(t *testing.T) {
	t.Parallel()

	d := credits.CalculateDowngradeCredits()
	assert.Equal(t, int64(0), d.CreditsToAdd)
	assert.True(t, d.IsLegitimate)
	assert.Equal(t, credits.ReasonDowngrade, d.Reason)
}

func TestExplain(t *testing.T) {
	t.Parallel()

	t.Run("farming explanation names the threshold", func(t *testing.T) {
		t.Parallel()
		d, err := credits.CalculateUpgradeCredits(5000, 200, 5000)
		require.NoError(t, err)

		msg := d.Explain(5000, 200, 5000)
		assert.Contains(t, msg, "5000")
		assert.Contains(t, msg, "300")
		assert.Contains(t, msg, "farming")
	})

	t.Run("top up explanation names the grant", func(t *testing.T) {
		t.Parallel()
		d, err := credits.CalculateUpgradeCredits(210, 200, 1000)
		require.NoError(t, err)

		msg := d.Explain(210, 200, 1000)
		assert.Contains(t, msg, "800")
	})

	t.Run("downgrade explanation", func(t *testing.T) {
		t.Parallel()
		msg := credits.CalculateDowngradeCredits().Explain(0, 0, 0)
		assert.Contains(t, msg, "downgrade")
	})
}
