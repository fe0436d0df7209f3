// Package normalize turns provider identifiers (symbols, coin ids, currency
// codes) into the lookup keys used for deduplication and response lookups.
package normalize

import "strings"

// Normalizer folds identifiers to lower case and resolves aliases.
// The alias table is copied and flattened at construction; a Normalizer is
// immutable afterwards and safe for concurrent use.
type Normalizer struct {
	aliases map[string]string
}

// New builds a Normalizer from an alias -> canonical table.
// Keys and targets are case-folded. Chains (a -> b -> c) are collapsed so that
// every alias points at a terminal key; aliases that take part in a cycle are
// dropped.
func New(aliases map[string]string) *Normalizer {
	folded := make(map[string]string, len(aliases))
	for k, v := range aliases {
		k, v = fold(k), fold(v)
		if k == "" || v == "" || k == v {
			continue
		}
		folded[k] = v
	}

	flat := make(map[string]string, len(folded))
	for k := range folded {
		if t, ok := terminal(folded, k); ok {
			flat[k] = t
		}
	}
	return &Normalizer{aliases: flat}
}

// Key returns the canonical lookup key for id. It never fails: unknown
// identifiers pass through case-folded. Key(Key(x)) == Key(x).
func (n *Normalizer) Key(id string) string {
	k := fold(id)
	if n == nil {
		return k
	}
	if v, ok := n.aliases[k]; ok {
		return v
	}
	return k
}

// Len reports the number of aliases known to the normalizer.
func (n *Normalizer) Len() int {
	if n == nil {
		return 0
	}
	return len(n.aliases)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// terminal follows k through the alias table until it reaches a key that is
// not itself an alias.
func terminal(aliases map[string]string, k string) (string, bool) {
	seen := map[string]struct{}{k: {}}
	cur := aliases[k]
	for {
		next, ok := aliases[cur]
		if !ok {
			return cur, true
		}
		if _, loop := seen[cur]; loop {
			return "", false
		}
		seen[cur] = struct{}{}
		cur = next
	}
}
