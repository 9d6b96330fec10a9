package params

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

func testSnapshot() Snapshot {
	return Snapshot{
		DustThreshold:      big.NewInt(10_000_000_000_000),
		RedeemingBatchSize: 6,
		SleepTime:          5 * time.Second,
		TradesPageSize:     100,
		BetAmountPerThreshold: map[string]*big.Int{
			"0.6": big.NewInt(100),
			"0.8": big.NewInt(150),
		},
	}
}

func TestBetAmount_RoundsConfidence(t *testing.T) {
	s := testSnapshot()

	amount, err := s.BetAmount(0.81)
	require.NoError(t, err)
	assert.Equal(t, int64(150), amount.Int64())

	amount, err = s.BetAmount(0.75)
	require.NoError(t, err)
	assert.Equal(t, int64(150), amount.Int64())

	_, err = s.BetAmount(0.3)
	assert.ErrorIs(t, err, domain.ErrMissingBetAmount)
}

func TestSnapshot_IsACopy(t *testing.T) {
	st := NewStore(testSnapshot())
	snap := st.Snapshot()
	snap.BetAmountPerThreshold["0.8"].SetInt64(1)
	snap.DustThreshold.SetInt64(1)

	again := st.Snapshot()
	assert.Equal(t, int64(150), again.BetAmountPerThreshold["0.8"].Int64())
	assert.Equal(t, int64(10_000_000_000_000), again.DustThreshold.Int64())
}

func TestUpdate_AppliesAndReportsOldNew(t *testing.T) {
	st := NewStore(testSnapshot())

	old, updated, err := st.Update(map[string]json.RawMessage{
		RedeemingBatchSize: json.RawMessage(`9`),
		SleepTime:          json.RawMessage(`1`),
		DustThreshold:      json.RawMessage(`"123456789012345678901"`),
	})
	require.NoError(t, err)
	assert.Equal(t, 6, old[RedeemingBatchSize])
	assert.Equal(t, 9, updated[RedeemingBatchSize])
	assert.Equal(t, 5.0, old[SleepTime])
	assert.Equal(t, 1.0, updated[SleepTime])

	snap := st.Snapshot()
	assert.Equal(t, 9, snap.RedeemingBatchSize)
	assert.Equal(t, time.Second, st.SleepTime())
	assert.Equal(t, "123456789012345678901", snap.DustThreshold.String())
}

func TestUpdate_UnknownParamChangesNothing(t *testing.T) {
	st := NewStore(testSnapshot())

	_, _, err := st.Update(map[string]json.RawMessage{
		RedeemingBatchSize: json.RawMessage(`9`),
		"max_bet":          json.RawMessage(`1`),
	})
	var unknown *UnknownParamError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "max_bet", unknown.Name)
	assert.Equal(t, "No parameter max_bet.", err.Error())
	assert.ErrorIs(t, err, domain.ErrUnknownParam)
	assert.Equal(t, 6, st.Snapshot().RedeemingBatchSize)
}

func TestUpdate_InvalidValueChangesNothing(t *testing.T) {
	st := NewStore(testSnapshot())

	_, _, err := st.Update(map[string]json.RawMessage{
		SleepTime:          json.RawMessage(`2`),
		RedeemingBatchSize: json.RawMessage(`0`),
	})
	require.Error(t, err)
	assert.Equal(t, 5*time.Second, st.SleepTime())
}

func TestUpdate_BetAmountThresholdsNormalised(t *testing.T) {
	st := NewStore(testSnapshot())

	_, _, err := st.Update(map[string]json.RawMessage{
		BetAmountPerThreshold: json.RawMessage(`{"0.90": 300, "1": "400"}`),
	})
	require.NoError(t, err)

	snap := st.Snapshot()
	amount, err := snap.BetAmount(0.9)
	require.NoError(t, err)
	assert.Equal(t, int64(300), amount.Int64())
	amount, err = snap.BetAmount(1.0)
	require.NoError(t, err)
	assert.Equal(t, int64(400), amount.Int64())
	_, err = snap.BetAmount(0.8)
	assert.Error(t, err)
}

func TestUpdate_NegativeBetAmountRejected(t *testing.T) {
	st := NewStore(testSnapshot())

	_, _, err := st.Update(map[string]json.RawMessage{
		BetAmountPerThreshold: json.RawMessage(`{"0.8": -5}`),
	})
	require.Error(t, err)

	amount, err := st.Snapshot().BetAmount(0.8)
	require.NoError(t, err)
	assert.Equal(t, int64(150), amount.Int64())
}
