package batch_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"marketfeed/internal/batch"
)

func coingeckoEngine(sender batch.Sender, maxBatch int) *batch.Engine {
	return batch.NewEngine(batch.EngineConfig{
		Path:         "/simple/price",
		Mode:         batch.ModeMulti,
		MaxBatchSize: maxBatch,
		Shape:        batch.FlatShape{},
	}, sender)
}

func TestRun_AllPresent(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock sender answering one batched call
	ctrl := gomock.NewController(t)
	sender := NewMockSender(ctrl)
	sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d batch.Descriptor) ([]byte, error) {
			assert.Equal(t, []string{"btc", "eth"}, d.Primary)
			assert.Equal(t, []string{"usd"}, d.Secondary)
			return []byte(`{"btc":{"usd":50000},"eth":{"usd":3000}}`), nil
		}).
		Times(1)

	params := []batch.Params{{Base: "BTC", Quote: "USD"}, {Base: "ETH", Quote: "USD"}}

	// Act: run the batch
	out := coingeckoEngine(sender, 0).Run(t.Context(), params)

	// Assert: one success per request, in order
	require.Equal(t, []batch.Outcome{
		batch.Success(params[0], 50000),
		batch.Success(params[1], 3000),
	}, out)
}

func TestRun_MissingKeyFailsOnlyItsRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	sender := NewMockSender(ctrl)
	sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return([]byte(`{"btc":{"usd":50000}}`), nil).
		Times(1)

	params := []batch.Params{{Base: "BTC", Quote: "USD"}, {Base: "DOGE", Quote: "USD"}}
	out := coingeckoEngine(sender, 0).Run(t.Context(), params)

	require.Equal(t, []batch.Outcome{
		batch.Success(params[0], 50000),
		batch.Failure(params[1], http.StatusBadGateway, "no data for token doge"),
	}, out)
}

func TestRun_ProviderErrorFailsWholeDescriptor(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	sender := NewMockSender(ctrl)
	sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return([]byte(`{"Error Message": "invalid API key"}`), nil).
		Times(1)

	engine := batch.NewEngine(batch.EngineConfig{
		Mode:  batch.ModePair,
		Shape: batch.NestedShape{ErrorField: "Error Message", Object: "Realtime Currency Exchange Rate", Field: "5. Exchange Rate"},
	}, sender)

	params := []batch.Params{{Base: "EUR", Quote: "USD"}}
	out := engine.Run(t.Context(), params)

	require.Equal(t, []batch.Outcome{batch.Failure(params[0], http.StatusBadGateway, "invalid API key")}, out)
}

func TestRun_DuplicatesShareOneCall(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	sender := NewMockSender(ctrl)
	sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d batch.Descriptor) ([]byte, error) {
			assert.Equal(t, []string{"btc"}, d.Primary)
			assert.Equal(t, []int{0, 1}, d.Covers)
			return []byte(`{"btc":{"usd":50000}}`), nil
		}).
		Times(1)

	params := []batch.Params{{Base: "BTC", Quote: "USD"}, {Base: "BTC", Quote: "USD"}}
	out := coingeckoEngine(sender, 0).Run(t.Context(), params)

	require.Len(t, out, 2)
	require.Equal(t, out[0].Value, out[1].Value)
	require.True(t, out[0].OK())
	require.True(t, out[1].OK())
}

func TestRun_TransportErrorIsScopedToDescriptor(t *testing.T) {
	t.Parallel()

	// Arrange: the descriptor carrying eth fails at the transport
	ctrl := gomock.NewController(t)
	sender := NewMockSender(ctrl)
	sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d batch.Descriptor) ([]byte, error) {
			if d.Primary[0] == "eth" {
				return nil, &batch.TransportError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}
			}
			return []byte(`{"btc":{"usd":50000}}`), nil
		}).
		Times(2)

	params := []batch.Params{
		{Base: "BTC", Quote: "USD"},
		{Base: "ETH", Quote: "USD"},
		{Base: "BTC", Quote: "USD"},
	}

	// Act: max batch size 1 forces one call per id
	out := coingeckoEngine(sender, 1).Run(t.Context(), params)

	// Assert: only the eth request failed
	require.Len(t, out, 3)
	require.True(t, out[0].OK())
	require.Equal(t, batch.Failure(params[1], http.StatusTooManyRequests, "rate limited"), out[1])
	require.True(t, out[2].OK())
}

func TestRun_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"timeout", fmt.Errorf("performing request: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "provider request timed out"},
		{"plain", errors.New("connection refused"), http.StatusBadGateway, "connection refused"},
		{"transport without status", &batch.TransportError{Message: "unauthorized"}, http.StatusBadGateway, "unauthorized"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			sender := NewMockSender(ctrl)
			sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil, tc.err).Times(1)

			params := []batch.Params{{Base: "BTC", Quote: "USD"}, {Base: "ETH", Quote: "USD"}}
			out := coingeckoEngine(sender, 0).Run(t.Context(), params)

			for i := range params {
				require.Equal(t, batch.Failure(params[i], tc.status, tc.message), out[i])
			}
		})
	}
}

func TestRun_MissingIdentifier(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	sender := NewMockSender(ctrl)
	sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return([]byte(`{"btc":{"usd":50000}}`), nil).
		Times(1)

	params := []batch.Params{{Quote: "USD"}, {Base: "BTC", Quote: "USD"}}
	out := coingeckoEngine(sender, 0).Run(t.Context(), params)

	require.Equal(t, batch.Failure(params[0], http.StatusBadRequest, "missing base or coinid"), out[0])
	require.True(t, out[1].OK())
}

func TestRun_NoRequestsNoCalls(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	sender := NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)

	require.Empty(t, coingeckoEngine(sender, 0).Run(t.Context(), nil))
}

// slowSender counts concurrent calls.
type slowSender struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowSender) Send(_ context.Context, d batch.Descriptor) ([]byte, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return []byte(fmt.Sprintf(`{%q:{"usd":1}}`, d.Primary[0])), nil
}

func TestRun_PreservesOrderAndBoundsConcurrency(t *testing.T) {
	t.Parallel()

	sender := &slowSender{}
	engine := batch.NewEngine(batch.EngineConfig{
		Mode:           batch.ModeMulti,
		MaxBatchSize:   1,
		MaxConcurrency: 2,
	}, sender)

	ids := strings.Split("a,b,c,d,e,f,g,h", ",")
	params := make([]batch.Params, 0, len(ids)*2)
	for _, id := range ids {
		params = append(params, batch.Params{Base: id, Quote: "usd"}, batch.Params{Base: id, Quote: "eur"})
	}

	out := engine.Run(t.Context(), params)

	require.Len(t, out, len(params))
	for i, o := range out {
		require.Equal(t, params[i], o.Params)
		if params[i].Quote == "usd" {
			require.True(t, o.OK())
		} else {
			require.Equal(t, "no eur data for token "+params[i].Base, o.Message)
		}
	}
	require.LessOrEqual(t, sender.peak.Load(), int32(2))
}
