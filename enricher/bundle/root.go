// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package bundle groups requests for IRR data. Consumers asking for the
// same set of AS-SETs (regardless of case and order) share the same bundle,
// so the data is fetched and cached only once.
package bundle

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"rsbuilder/common/reporter"
	"rsbuilder/routeserver"
)

// ErrSealed is returned when registering a bundle once fetching started.
var ErrSealed = errors.New("bundle registry is sealed")

// WhiteListPrefix is the prefix of the name of synthetic bundles.
const WhiteListPrefix = "WHITE_LIST_"

// Kind is a kind of data a bundle can be requested for.
type Kind string

const (
	// OriginASNs is the list of ASNs authorized as origin.
	OriginASNs Kind = "origin-asns"
	// Prefixes is the list of authorized prefixes.
	Prefixes Kind = "prefixes"
)

// Bundle is a set of AS-SET names fetched together.
type Bundle struct {
	// ID is a hash of the normalized names. It is stable across runs.
	ID string
	// Names are the upper-case, sorted, unique names.
	Names []string
	// Name is a short representation of the bundle, using only
	// [A-Za-z0-9_].
	Name string
	// Descr is a textual description of the bundle.
	Descr string
	// Synthetic bundles are built from allow-lists and never fetched.
	Synthetic bool

	requestedBy map[string]struct{}
	kinds       map[Kind]struct{}
	asns        []uint32
	prefixes    map[int][]routeserver.PrefixEntry
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Normalize returns the upper-case, sorted, unique names. Blank names
// are dropped.
func Normalize(names []string) []string {
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		normalized = append(normalized, name)
	}
	slices.Sort(normalized)
	return slices.Compact(normalized)
}

// ID returns the identifier of the bundle for the provided names.
func ID(names []string) string {
	h := sha512.Sum512([]byte(strings.Join(Normalize(names), "_")))
	return hex.EncodeToString(h[:])
}

func newBundle(names []string) *Bundle {
	normalized := Normalize(names)
	b := Bundle{
		ID:          ID(normalized),
		Names:       normalized,
		requestedBy: map[string]struct{}{},
		kinds:       map[Kind]struct{}{},
		prefixes:    map[int][]routeserver.PrefixEntry{},
	}

	b.Descr = strings.Join(normalized[:min(3, len(normalized))], ", ")
	if len(normalized) > 3 {
		b.Descr = fmt.Sprintf("%s and %d more", b.Descr, len(normalized)-3)
	}

	switch {
	case len(normalized) == 1:
		b.Name = normalized[0]
	case len(normalized) <= 3:
		b.Name = strings.Join(normalized, "_")
	default:
		b.Name = fmt.Sprintf("%s_and_%d_more_%s", normalized[0], len(normalized)-1, b.ID[:7])
	}
	b.Name = invalidNameChars.ReplaceAllString(b.Name, "_")
	return &b
}

// RequestedBy returns the sorted list of consumers of the bundle.
func (b *Bundle) RequestedBy() []string {
	consumers := make([]string, 0, len(b.requestedBy))
	for consumer := range b.requestedBy {
		consumers = append(consumers, consumer)
	}
	slices.Sort(consumers)
	return consumers
}

// Requests tells if the provided kind of data was requested for the
// bundle.
func (b *Bundle) Requests(kind Kind) bool {
	_, ok := b.kinds[kind]
	return ok
}

// Registry contains all the bundles.
type Registry struct {
	r       *reporter.Reporter
	lock    sync.RWMutex
	bundles map[string]*Bundle
	sealed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(r *reporter.Reporter) *Registry {
	return &Registry{
		r:       r,
		bundles: map[string]*Bundle{},
	}
}

// Register returns the bundle for the provided names, creating it if
// needed. The consumer (if not empty) and the kinds are added to the
// bundle.
func (reg *Registry) Register(names []string, consumer string, kinds ...Kind) (*Bundle, error) {
	reg.lock.Lock()
	defer reg.lock.Unlock()
	if reg.sealed {
		return nil, ErrSealed
	}
	if len(Normalize(names)) == 0 {
		return nil, errors.New("cannot register an empty bundle")
	}
	id := ID(names)
	b, ok := reg.bundles[id]
	if !ok {
		b = newBundle(names)
		reg.bundles[id] = b
	}
	if consumer != "" {
		b.requestedBy[consumer] = struct{}{}
	}
	for _, kind := range kinds {
		b.kinds[kind] = struct{}{}
	}
	return b, nil
}

// RegisterAllowList registers a synthetic bundle for the allow-list of a
// client. Its data is already known and is never fetched.
func (reg *Registry) RegisterAllowList(clientID string, asns []uint32, prefixes []routeserver.PrefixEntry) (*Bundle, error) {
	b, err := reg.Register([]string{WhiteListPrefix + clientID}, fmt.Sprintf("client %s", clientID))
	if err != nil {
		return nil, err
	}
	reg.lock.Lock()
	defer reg.lock.Unlock()
	b.Synthetic = true
	if len(asns) > 0 {
		b.kinds[OriginASNs] = struct{}{}
		b.asns = append(b.asns, asns...)
	}
	if len(prefixes) > 0 {
		b.kinds[Prefixes] = struct{}{}
		for _, prefix := range prefixes {
			afi := 6
			if prefix.Prefix.Addr().Is4() {
				afi = 4
			}
			b.prefixes[afi] = append(b.prefixes[afi], prefix)
		}
	}
	return b, nil
}

// Seal prevents any new registration.
func (reg *Registry) Seal() {
	reg.lock.Lock()
	defer reg.lock.Unlock()
	reg.sealed = true
}

// Prune removes bundles without consumer.
func (reg *Registry) Prune() {
	reg.lock.Lock()
	defer reg.lock.Unlock()
	for id, b := range reg.bundles {
		if len(b.requestedBy) == 0 {
			reg.r.Debug().Str("bundle", b.Name).Msg("removing unreferenced AS-SET bundle")
			delete(reg.bundles, id)
		}
	}
}

// Get returns the bundle with the provided ID.
func (reg *Registry) Get(id string) (*Bundle, bool) {
	reg.lock.RLock()
	defer reg.lock.RUnlock()
	b, ok := reg.bundles[id]
	return b, ok
}

// All returns all the bundles, sorted by ID.
func (reg *Registry) All() []*Bundle {
	reg.lock.RLock()
	defer reg.lock.RUnlock()
	bundles := make([]*Bundle, 0, len(reg.bundles))
	for _, b := range reg.bundles {
		bundles = append(bundles, b)
	}
	slices.SortFunc(bundles, func(a, b *Bundle) int { return strings.Compare(a.ID, b.ID) })
	return bundles
}

// Fetchable returns the non-synthetic bundles for which the provided kind
// of data was requested, sorted by ID.
func (reg *Registry) Fetchable(kind Kind) []*Bundle {
	result := []*Bundle{}
	for _, b := range reg.All() {
		if !b.Synthetic && b.Requests(kind) {
			result = append(result, b)
		}
	}
	return result
}

// SetASNs stores the origin ASNs of a bundle.
func (reg *Registry) SetASNs(b *Bundle, asns []uint32) {
	reg.lock.Lock()
	defer reg.lock.Unlock()
	b.asns = asns
}

// SetPrefixes stores the prefixes of a bundle for an address family (4
// or 6).
func (reg *Registry) SetPrefixes(b *Bundle, afi int, prefixes []routeserver.PrefixEntry) {
	reg.lock.Lock()
	defer reg.lock.Unlock()
	b.prefixes[afi] = prefixes
}

// AddPrefixes appends prefixes to a bundle for an address family (4 or
// 6). Prefixes already covered by an existing entry are skipped.
func (reg *Registry) AddPrefixes(b *Bundle, afi int, prefixes []routeserver.PrefixEntry) int {
	reg.lock.Lock()
	defer reg.lock.Unlock()
	added := 0
outer:
	for _, prefix := range prefixes {
		for _, existing := range b.prefixes[afi] {
			if existing.Covers(prefix.Prefix) {
				continue outer
			}
		}
		b.prefixes[afi] = append(b.prefixes[afi], prefix)
		added++
	}
	return added
}

// ASNs returns the origin ASNs of a bundle.
func (reg *Registry) ASNs(b *Bundle) []uint32 {
	reg.lock.RLock()
	defer reg.lock.RUnlock()
	return slices.Clone(b.asns)
}

// Prefixes returns the prefixes of a bundle, IPv4 first.
func (reg *Registry) Prefixes(b *Bundle) []routeserver.PrefixEntry {
	reg.lock.RLock()
	defer reg.lock.RUnlock()
	result := []routeserver.PrefixEntry{}
	result = append(result, b.prefixes[4]...)
	result = append(result, b.prefixes[6]...)
	return result
}

// Info is the exported representation of a bundle.
type Info struct {
	ID          string                    `json:"id" yaml:"id"`
	Name        string                    `json:"name" yaml:"name"`
	Descr       string                    `json:"descr" yaml:"descr"`
	Names       []string                  `json:"names" yaml:"names"`
	RequestedBy []string                  `json:"requested-by" yaml:"requested-by"`
	ASNs        []uint32                  `json:"asns" yaml:"asns"`
	Prefixes    []routeserver.PrefixEntry `json:"prefixes" yaml:"prefixes"`
}

// Export returns the exported representation of all bundles, sorted by
// ID.
func (reg *Registry) Export() []Info {
	result := []Info{}
	for _, b := range reg.All() {
		asns := reg.ASNs(b)
		if asns == nil {
			asns = []uint32{}
		}
		result = append(result, Info{
			ID:          b.ID,
			Name:        b.Name,
			Descr:       b.Descr,
			Names:       b.Names,
			RequestedBy: b.RequestedBy(),
			ASNs:        asns,
			Prefixes:    reg.Prefixes(b),
		})
	}
	return result
}
