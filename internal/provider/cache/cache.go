package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"marketfeed/internal/batch"
)

// Sender caches successful provider bodies per descriptor for a TTL.
// Errors are never cached.
type Sender struct {
	S     batch.Sender
	items *expirable.LRU[string, []byte]
}

// New wraps s with a cache holding at most maxItems bodies for ttl.
// maxItems <= 0 means no size bound.
func New(s batch.Sender, ttl time.Duration, maxItems int) *Sender {
	if maxItems < 0 {
		maxItems = 0
	}
	return &Sender{S: s, items: expirable.NewLRU[string, []byte](maxItems, nil, ttl)}
}

func (c *Sender) Send(ctx context.Context, d batch.Descriptor) ([]byte, error) {
	key := Key(d)
	if body, ok := c.items.Get(key); ok {
		return body, nil
	}
	body, err := c.S.Send(ctx, d)
	if err != nil {
		return nil, err
	}
	c.items.Add(key, body)
	return body, nil
}

// Len reports the number of live entries.
func (c *Sender) Len() int { return c.items.Len() }

// Key fingerprints the request a descriptor produces. Covers is excluded:
// two batches asking for the same ids and quotes share an entry.
func Key(d batch.Descriptor) string {
	var b strings.Builder
	b.WriteString(d.Path)
	b.WriteByte('|')
	b.WriteString(strings.Join(d.Primary, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(d.Secondary, ","))
	return b.String()
}

// Wrap applies a cache when ttl > 0.
func Wrap(s batch.Sender, ttl time.Duration, maxItems int) batch.Sender {
	if ttl <= 0 {
		return s
	}
	return New(s, ttl, maxItems)
}
