package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func tradeJSON(id string, outcome int, answer string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"transactionHash": "0xABCDEF%058d",
		"outcomeIndex": "%d",
		"outcomeTokensTraded": "1500000000000000000",
		"fpmm": {
			"id": "0x2222222222222222222222222222222222222222",
			"collateralToken": "0xe91d153e0b41518a2ce8dd3d7944fa863463a97d",
			"creationTimestamp": "1700000000",
			"currentAnswer": %s,
			"answerFinalizedTimestamp": "1700100000",
			"templateId": "2",
			"question": {"id": "0x%064x", "data": "Will it rain?"},
			"condition": {"id": "0x%064x", "outcomeSlotCount": 2}
		}
	}`, id, len(id), outcome, answer, 0xa1, 0xc1)
}

type capture struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func TestFetchTradePage_ParsesAndPages(t *testing.T) {
	var got []capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c capture
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		got = append(got, c)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if c.Variables["cursor"] == "" {
			fmt.Fprintf(w, `{"data":{"fpmmTrades":[%s,%s]}}`,
				tradeJSON("t1", 1, `"0x0000000000000000000000000000000000000000000000000000000000000001"`),
				tradeJSON("t2", 0, `null`))
			return
		}
		fmt.Fprint(w, `{"data":{"fpmmTrades":[]}}`)
	}))
	defer srv.Close()

	src := NewTradeSource(NewClient(srv.URL, " key "), 2, time.Millisecond, quietLogger())
	q := domain.TradeQuery{Creator: "0xABC", To: time.Unix(1800000000, 0), PageSize: 2}

	page := src.FetchTradePage(context.Background(), q, "")
	require.Equal(t, domain.FetchStatusInProgress, page.Status)
	require.Len(t, page.Candidates, 2)
	assert.Equal(t, "t2", page.Cursor)

	c := page.Candidates[0]
	assert.True(t, strings.HasPrefix(c.TransactionHash, "0xabcdef"))
	assert.Equal(t, 1, c.OutcomeIndex)
	assert.Equal(t, 1, c.FPMM.CurrentAnswerIndex)
	assert.True(t, c.IsWinning())
	assert.Equal(t, "1500000000000000000", c.ClaimableAmount.String())
	assert.Equal(t, int64(1700000000), c.FPMM.CreationTimestamp.Unix())
	assert.Equal(t, int64(2), c.FPMM.TemplateID)
	assert.Equal(t, "Will it rain?", c.FPMM.Question.Data)
	assert.Equal(t, 2, c.FPMM.Condition.OutcomeSlotCount)
	assert.Equal(t, -1, page.Candidates[1].FPMM.CurrentAnswerIndex)

	page = src.FetchTradePage(context.Background(), q, page.Cursor)
	assert.Equal(t, domain.FetchStatusSuccess, page.Status)
	assert.Empty(t, page.Candidates)

	require.Len(t, got, 2)
	assert.Equal(t, "0xabc", got[0].Variables["creator"])
	assert.Equal(t, "1800000000", got[0].Variables["finalizedBefore"])
	assert.Equal(t, "t2", got[1].Variables["cursor"])
}

func TestFetchTradePage_RateLimitedThenFail(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := NewTradeSource(NewClient(srv.URL, ""), 1, time.Millisecond, quietLogger())
	q := domain.TradeQuery{Creator: "0xabc", PageSize: 10}

	page := src.FetchTradePage(context.Background(), q, "c1")
	assert.Equal(t, domain.FetchStatusInProgress, page.Status)
	assert.Equal(t, "c1", page.Cursor)

	page = src.FetchTradePage(context.Background(), q, "c1")
	assert.Equal(t, domain.FetchStatusFail, page.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchTradePage_GraphQLErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"message":"bad query"}]}`)
	}))
	defer srv.Close()

	src := NewTradeSource(NewClient(srv.URL, ""), 3, time.Millisecond, quietLogger())
	page := src.FetchTradePage(context.Background(), domain.TradeQuery{Creator: "0xabc"}, "")
	assert.Equal(t, domain.FetchStatusFail, page.Status)
}

type denyLimiter struct{ calls int }

func (d *denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	d.calls++
	return false, nil
}

func TestClient_RateLimiterBlocksRequest(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer srv.Close()

	lim := &denyLimiter{}
	c := NewClient(srv.URL, "", WithRateLimiter(lim, "subgraph", 5, time.Second))
	_, err := c.doQuery(context.Background(), blockQuery, nil)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.False(t, hit)
	assert.Equal(t, 1, lim.calls)
}

func TestBlockAt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c capture
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		if c.Variables["ts"] == "1700000000" {
			fmt.Fprint(w, `{"data":{"blocks":[{"id":"0xblock","number":"30500123","timestamp":"1700000003"}]}}`)
			return
		}
		fmt.Fprint(w, `{"data":{"blocks":[]}}`)
	}))
	defer srv.Close()

	idx := NewBlockIndex(NewClient(srv.URL, ""), 1, time.Millisecond, quietLogger())

	got := idx.BlockAt(context.Background(), time.Unix(1700000000, 0))
	assert.Equal(t, domain.FetchStatusSuccess, got.Status)
	assert.Equal(t, uint64(30500123), got.Number)

	got = idx.BlockAt(context.Background(), time.Unix(1, 0))
	assert.Equal(t, domain.FetchStatusFail, got.Status)
}

func TestAnswerIndex(t *testing.T) {
	invalid := "0x" + strings.Repeat("f", 64)
	for _, tc := range []struct {
		raw  *string
		want int
	}{
		{nil, -1},
		{&invalid, -1},
	} {
		got, err := answerIndex(tc.raw)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}
