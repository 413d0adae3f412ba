package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/database/dbtest"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

func TestGenerateBatch(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	gen := NewBatchGenerator(db, NewCodeGenerator("test-secret"))

	window := int64(22 * 60)
	spec := BatchSpec{
		Campaign: "spring", Prefix: "SPR", Count: 1200,
		Kind: model.KindPercent, Percent: nd("10"), MaxAmount: nd("4"),
		UsageLimit: 1, WindowStart: &window, Segments: []string{"vip"},
	}

	codes, err := gen.Generate(ctx, spec)
	require.NoError(t, err)
	require.Len(t, codes, 1200)

	c, err := repository.NewCouponRepository().GetByCode(ctx, db, codes[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, c.Status)
	assert.Equal(t, int64(1), c.UsageLimit.Int64)
	assert.Equal(t, "spring", c.Campaign.String)
	assert.Equal(t, model.StringList{"vip"}, c.Segments)
	assert.Equal(t, window, c.WindowStart.Int64)

	more, err := gen.Generate(ctx, BatchSpec{Campaign: "spring", Prefix: "SPR", Count: 10, Kind: model.KindAmount, Amount: nd("2")})
	require.NoError(t, err)
	assert.NotContains(t, codes, more[0])

	summary, err := repository.NewCampaignRepository().GetCampaignSummary(ctx, db, "spring", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1210), summary.Total)
	assert.Equal(t, int64(1210), summary.Available)
}

func TestGenerateGamePrizes(t *testing.T) {
	db := dbtest.Open(t)
	gen := NewBatchGenerator(db, NewCodeGenerator("s"))

	codes, err := gen.Generate(context.Background(), BatchSpec{
		Campaign: "wheel-june", Count: 3, Kind: model.KindAmount, Amount: nd("3"), GameID: "wheel",
	})
	require.NoError(t, err)

	c, err := repository.NewCouponRepository().GetByCode(context.Background(), db, codes[0])
	require.NoError(t, err)
	assert.Equal(t, "wheel", c.GameID.String)
	assert.Equal(t, model.AcquisitionGame, c.Acquisition.String)
}

func TestBatchSpecValidate(t *testing.T) {
	tests := []struct {
		name string
		spec BatchSpec
		want apperr.Reason
	}{
		{"no count", BatchSpec{Campaign: "c", Kind: model.KindAmount, Amount: nd("1")}, apperr.BadRequest},
		{"unknown kind", BatchSpec{Campaign: "c", Count: 1, Kind: "GIFT"}, apperr.BadType},
		{"amount missing", BatchSpec{Campaign: "c", Count: 1, Kind: model.KindAmount}, apperr.BadRange},
		{"percent over 100", BatchSpec{Campaign: "c", Count: 1, Kind: model.KindPercent, Percent: nd("120")}, apperr.BadRange},
		{
			"inverted range",
			BatchSpec{Campaign: "c", Count: 1, Kind: model.KindPercent, Variant: model.VariantRange, PercentMin: nd("30"), PercentMax: nd("10")},
			apperr.BadRange,
		},
		{"bad day", BatchSpec{Campaign: "c", Count: 1, Kind: model.KindAmount, Amount: nd("1"), DaysActive: []int{7}}, apperr.BadRange},
		{"bad usage limit", BatchSpec{Campaign: "c", Count: 1, Kind: model.KindAmount, Amount: nd("1"), UsageLimit: -5}, apperr.BadRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.ReasonOf(tt.spec.Validate()))
		})
	}
}
