package handler

import "strings"

// headerMultimap is an insertion-ordered name -> ordered-values mapping.
// Names are stored and compared case-insensitively (spec §4.2: "Header
// names are treated case-insensitively"); the case first seen is what
// Names() returns.
type headerMultimap struct {
	order  []string
	cased  map[string]string
	values map[string][]string
}

func newHeaderMultimap() *headerMultimap {
	return &headerMultimap{
		cased:  map[string]string{},
		values: map[string][]string{},
	}
}

// Names returns header names in first-seen order, using the casing first
// written.
func (h *headerMultimap) Names() []string {
	out := make([]string, len(h.order))
	for i, key := range h.order {
		out[i] = h.cased[key]
	}
	return out
}

// Values returns every value set for name, or nil if absent.
func (h *headerMultimap) Values(name string) []string {
	return h.values[strings.ToLower(name)]
}

// Set replaces all values of name with a single value.
func (h *headerMultimap) Set(name, value string) {
	key := strings.ToLower(name)
	h.remember(key, name)
	h.values[key] = []string{value}
}

// Add appends value to name's ordered list of values, without disturbing
// any values already present.
func (h *headerMultimap) Add(name, value string) {
	key := strings.ToLower(name)
	h.remember(key, name)
	h.values[key] = append(h.values[key], value)
}

func (h *headerMultimap) remember(key, cased string) {
	if _, ok := h.values[key]; !ok {
		h.order = append(h.order, key)
		h.cased[key] = cased
	}
}

// Pairs flattens the multimap into (name, value) pairs in Names() order,
// repeating the name for each of its values — the shape AddResponseTrailers
// expects.
func (h *headerMultimap) Pairs() [][2]string {
	var out [][2]string
	for _, key := range h.order {
		name := h.cased[key]
		for _, v := range h.values[key] {
			out = append(out, [2]string{name, v})
		}
	}
	return out
}

// newHeaderMultimapFromPairs builds a multimap from a flat list of
// (name, value) pairs, adding each pair in order.
func newHeaderMultimapFromPairs(pairs [][2]string) *headerMultimap {
	h := newHeaderMultimap()
	for _, p := range pairs {
		h.Add(p[0], p[1])
	}
	return h
}
