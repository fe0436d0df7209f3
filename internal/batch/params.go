// Package batch coalesces independent price requests into the fewest
// provider calls and fans each provider response back out into one outcome
// per request.
package batch

import "net/http"

// Params is one caller request for a single price or rate.
// Only the identifier fields take part in deduplication; Echo carries
// whatever the caller wants reflected back untouched.
type Params struct {
	CoinID string            `json:"coinid,omitempty"`
	Base   string            `json:"base,omitempty"`
	Quote  string            `json:"quote,omitempty"`
	Echo   map[string]string `json:"echo,omitempty"`
}

// Primary returns the identifier used as the first lookup dimension.
// An explicit coin id wins over the base symbol.
func (p Params) Primary() string {
	if p.CoinID != "" {
		return p.CoinID
	}
	return p.Base
}

// Outcome is the result bound to exactly one Params: either a value with
// StatusCode 200, or a failure status with a message.
type Outcome struct {
	Params     Params  `json:"params"`
	Value      float64 `json:"result,omitempty"`
	StatusCode int     `json:"statusCode"`
	Message    string  `json:"errorMessage,omitempty"`
}

// Success builds a successful outcome carrying v untransformed.
func Success(p Params, v float64) Outcome {
	return Outcome{Params: p, Value: v, StatusCode: http.StatusOK}
}

// Failure builds a failed outcome scoped to p.
func Failure(p Params, status int, msg string) Outcome {
	return Outcome{Params: p, StatusCode: status, Message: msg}
}

// OK reports whether the outcome carries a value.
func (o Outcome) OK() bool { return o.StatusCode == http.StatusOK }
