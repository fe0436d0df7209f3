package batch

import (
	"fmt"
	"strings"

	"marketfeed/internal/normalize"
)

// Mode selects how requests may share an outbound call.
type Mode int

const (
	// ModeMulti puts every request on one call listing all ids and quotes,
	// split into chunks of at most MaxBatchSize ids.
	ModeMulti Mode = iota
	// ModePair issues one call per distinct (id, quote) pair.
	ModePair
)

// ParseMode maps a config value onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "multi", "batch":
		return ModeMulti, nil
	case "pair", "single":
		return ModePair, nil
	default:
		return 0, fmt.Errorf("unknown batch mode %q", s)
	}
}

func (m Mode) String() string {
	if m == ModePair {
		return "pair"
	}
	return "multi"
}

// Descriptor is the shape of one outbound call. Primary and Secondary hold
// normalized keys, deduplicated in discovery order. Covers lists the input
// indexes answered by this call.
type Descriptor struct {
	Path      string
	Primary   []string
	Secondary []string
	Covers    []int
}

// Coalescer merges requests into descriptors.
type Coalescer struct {
	Path         string
	Mode         Mode
	MaxBatchSize int
	Normalizer   *normalize.Normalizer
}

// Coalesce returns the descriptors needed to answer params. The result is
// deterministic for a given input. Every request with a non-empty primary
// key is covered by exactly one descriptor; a request's keys are never split
// across descriptors.
func (c Coalescer) Coalesce(params []Params) []Descriptor {
	if c.Mode == ModePair {
		return c.pairs(params)
	}
	return c.multi(params)
}

func (c Coalescer) key(p Params) string { return c.Normalizer.Key(p.Primary()) }

func (c Coalescer) multi(params []Params) []Descriptor {
	ids := make([]string, 0, len(params))
	slot := make(map[string]int, len(params))
	for _, p := range params {
		k := c.key(p)
		if k == "" {
			continue
		}
		if _, ok := slot[k]; !ok {
			slot[k] = len(ids)
			ids = append(ids, k)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	size := c.MaxBatchSize
	if size <= 0 || size > len(ids) {
		size = len(ids)
	}
	chunks := chunkStrings(ids, size)
	out := make([]Descriptor, len(chunks))
	quotes := make([]map[string]struct{}, len(chunks))
	for i, ch := range chunks {
		out[i] = Descriptor{Path: c.Path, Primary: ch}
		quotes[i] = make(map[string]struct{})
	}

	for i, p := range params {
		k := c.key(p)
		if k == "" {
			continue
		}
		n := slot[k] / size
		out[n].Covers = append(out[n].Covers, i)
		q := c.Normalizer.Key(p.Quote)
		if q == "" {
			continue
		}
		if _, dup := quotes[n][q]; !dup {
			quotes[n][q] = struct{}{}
			out[n].Secondary = append(out[n].Secondary, q)
		}
	}
	return out
}

type pair struct{ primary, secondary string }

func (c Coalescer) pairs(params []Params) []Descriptor {
	var out []Descriptor
	slot := make(map[pair]int, len(params))
	for i, p := range params {
		k := c.key(p)
		if k == "" {
			continue
		}
		key := pair{k, c.Normalizer.Key(p.Quote)}
		n, ok := slot[key]
		if !ok {
			d := Descriptor{Path: c.Path, Primary: []string{key.primary}}
			if key.secondary != "" {
				d.Secondary = []string{key.secondary}
			}
			n = len(out)
			slot[key] = n
			out = append(out, d)
		}
		out[n].Covers = append(out[n].Covers, i)
	}
	return out
}

func chunkStrings(in []string, size int) [][]string {
	if size <= 0 || len(in) == 0 {
		return [][]string{in}
	}
	out := make([][]string, 0, (len(in)+size-1)/size)
	for i := 0; i < len(in); i += size {
		j := min(i+size, len(in))
		out = append(out, in[i:j:j])
	}
	return out
}
