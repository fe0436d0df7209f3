package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"marketfeed/internal/batch"
)

// engines resolves provider endpoints to batch engines.
type engines interface {
	Lookup(provider, endpoint string) (*batch.Engine, bool)
	Names() []string
}

type handler struct {
	engines   engines
	timeout   time.Duration
	maxParams int
}

type batchRequest struct {
	Data []map[string]any `json:"data"`
}

// envelope is the per-request result. Successes carry the value twice, at
// the top level and under data.result. Params echoes the request item.
type envelope struct {
	Params       map[string]string `json:"params,omitempty"`
	Data         *resultData       `json:"data,omitempty"`
	Result       *float64          `json:"result,omitempty"`
	StatusCode   int               `json:"statusCode"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
}

type resultData struct {
	Result float64 `json:"result"`
}

type batchResponse struct {
	Data []envelope `json:"data"`
}

func toEnvelope(o batch.Outcome) envelope {
	if !o.OK() {
		return envelope{Params: o.Params.Echo, StatusCode: o.StatusCode, ErrorMessage: o.Message}
	}
	v := o.Value
	return envelope{Params: o.Params.Echo, Data: &resultData{Result: v}, Result: &v, StatusCode: o.StatusCode}
}

// fields accepted for each role, in order of preference
var (
	coinIDFields = []string{"coinid", "coinId"}
	baseFields   = []string{"base", "from", "coin", "symbol"}
	quoteFields  = []string{"quote", "to", "market", "convert", "days"}
)

// toParams reads one request item. Every field is echoed back verbatim;
// only the recognized ones take part in batching.
func toParams(item map[string]any) batch.Params {
	echo := make(map[string]string, len(item))
	for k, v := range item {
		if v == nil {
			continue
		}
		echo[k] = fmt.Sprint(v)
	}
	return batch.Params{
		CoinID: first(echo, coinIDFields),
		Base:   first(echo, baseFields),
		Quote:  first(echo, quoteFields),
		Echo:   echo,
	}
}

func first(m map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

// postBatch handles POST /api/v1/:provider/:endpoint.
func (h *handler) postBatch(c *gin.Context) {
	engine, ok := h.engines.Lookup(c.Param("provider"), c.Param("endpoint"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider endpoint"})
		return
	}

	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if len(req.Data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data cannot be empty"})
		return
	}
	if h.maxParams > 0 && len(req.Data) > h.maxParams {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("too many requests in batch (max %d)", h.maxParams)})
		return
	}

	params := make([]batch.Params, len(req.Data))
	for i, item := range req.Data {
		params[i] = toParams(item)
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	outcomes := engine.Run(ctx, params)

	resp := batchResponse{Data: make([]envelope, len(outcomes))}
	for i, o := range outcomes {
		resp.Data[i] = toEnvelope(o)
	}
	c.JSON(http.StatusOK, resp)
}

// listEndpoints handles GET /api/v1/endpoints.
func (h *handler) listEndpoints(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"endpoints": h.engines.Names()})
}

func healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
