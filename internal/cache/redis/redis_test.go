package redis

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

func TestDecodeDecisions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	msgs := []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"id":"bet-a","market_id":"0x2222222222222222222222222222222222222222","collateral_token":"0xe91d153e0b41518a2ce8dd3d7944fa863463a97d","outcome_index":1,"confidence":0.8}`)},
		{ID: "2-0", Payload: []byte(`not json`)},
		{ID: "3-0", Payload: []byte(`{"market_id":"0x2222222222222222222222222222222222222222","outcome_index":0,"confidence":0.6}`)},
	}

	reqs := decodeDecisions(msgs, logger)
	require.Len(t, reqs, 2)
	assert.Equal(t, "bet-a", reqs[0].ID)
	assert.Equal(t, 1, reqs[0].OutcomeIndex)
	assert.InDelta(t, 0.8, reqs[0].Confidence, 1e-9)
	assert.Equal(t, "3-0", reqs[1].ID)
}

func TestPayloadBytes(t *testing.T) {
	b, ok := payloadBytes("abc")
	assert.True(t, ok)
	assert.Equal(t, []byte("abc"), b)

	_, ok = payloadBytes(12)
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "lock:round:0xabc", LockKey("round:0xabc"))
	assert.Equal(t, "ratelimit:subgraph", rateLimitKey("subgraph"))
	q := &DecisionQueue{stream: "decisions"}
	assert.Equal(t, "decisions:cursor", q.cursorKey())
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
