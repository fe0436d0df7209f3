package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/batch"
)

type stubSender struct {
	calls int
	err   error
}

func (s *stubSender) Send(_ context.Context, d batch.Descriptor) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(d.Primary[0]), nil
}

func TestSend_HitsCacheForSameRequest(t *testing.T) {
	inner := &stubSender{}
	c := New(inner, time.Minute, 10)

	d := batch.Descriptor{Path: "/simple/price", Primary: []string{"btc"}, Secondary: []string{"usd"}, Covers: []int{0}}
	body, err := c.Send(t.Context(), d)
	require.NoError(t, err)
	require.Equal(t, "btc", string(body))

	// different covers, same request
	d.Covers = []int{3, 4}
	body, err = c.Send(t.Context(), d)
	require.NoError(t, err)
	require.Equal(t, "btc", string(body))
	require.Equal(t, 1, inner.calls)

	_, err = c.Send(t.Context(), batch.Descriptor{Path: "/simple/price", Primary: []string{"btc"}, Secondary: []string{"eur"}})
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
	require.Equal(t, 2, c.Len())
}

func TestSend_ErrorsAreNotCached(t *testing.T) {
	inner := &stubSender{err: errors.New("down")}
	c := New(inner, time.Minute, 10)

	d := batch.Descriptor{Primary: []string{"btc"}}
	_, err := c.Send(t.Context(), d)
	require.Error(t, err)

	inner.err = nil
	body, err := c.Send(t.Context(), d)
	require.NoError(t, err)
	require.Equal(t, "btc", string(body))
	require.Equal(t, 2, inner.calls)
}

func TestSend_Expires(t *testing.T) {
	inner := &stubSender{}
	c := New(inner, 20*time.Millisecond, 10)

	d := batch.Descriptor{Primary: []string{"btc"}}
	_, _ = c.Send(t.Context(), d)
	time.Sleep(60 * time.Millisecond)
	_, _ = c.Send(t.Context(), d)
	require.Equal(t, 2, inner.calls)
}

func TestWrap(t *testing.T) {
	inner := &stubSender{}
	require.Same(t, batch.Sender(inner), Wrap(inner, 0, 10))
	require.IsType(t, &Sender{}, Wrap(inner, time.Second, 10))
}

func TestKey(t *testing.T) {
	require.Equal(t, "/p|btc,eth|usd", Key(batch.Descriptor{Path: "/p", Primary: []string{"btc", "eth"}, Secondary: []string{"usd"}}))
}
