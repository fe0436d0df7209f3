package batch

import (
	"fmt"
	"math"
	"net/http"

	"marketfeed/internal/normalize"
)

// ZeroPolicy decides whether a literal 0 from the provider is a price.
type ZeroPolicy int

const (
	// ZeroIsMissing treats 0 like an absent value.
	ZeroIsMissing ZeroPolicy = iota
	// ZeroIsValue returns 0 as a successful result.
	ZeroIsValue
)

// Resolver answers one request from an Index.
type Resolver struct {
	Normalizer *normalize.Normalizer
	// Provider prefixes failure messages when set.
	Provider string
	Zero     ZeroPolicy
}

// Resolve is pure with respect to idx: the same inputs always give the same
// outcome.
func (r Resolver) Resolve(p Params, idx *Index) Outcome {
	id := r.Normalizer.Key(p.Primary())
	quote := r.Normalizer.Key(p.Quote)

	v, hasPrimary, found := idx.Lookup(id, quote)
	if !hasPrimary {
		return Failure(p, http.StatusBadGateway, r.message("no data for token %s", id))
	}
	if !found || math.IsNaN(v) || (v == 0 && r.Zero == ZeroIsMissing) {
		field := quote
		if field == "" {
			field = "result"
		}
		return Failure(p, http.StatusBadGateway, r.message("no %s data for token %s", field, id))
	}
	return Success(p, v)
}

func (r Resolver) message(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if r.Provider != "" {
		return r.Provider + " provided " + msg
	}
	return msg
}
