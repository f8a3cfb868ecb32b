package domain

import "strings"

// Mode selects which skip rule governs a domain walk (spec.md §4.5).
type Mode int

const (
	// ModeNameMultiDomain walks primary domains, skipping any that
	// require fully-qualified names, for an unqualified name lookup.
	ModeNameMultiDomain Mode = iota
	// ModeNameFQ is single-shot: the fully-qualified input already
	// pins one domain, so there is nothing left to iterate.
	ModeNameFQ
	// ModeID walks every primary domain and descends into subdomains,
	// since an id-based lookup can't tell which subdomain owns it
	// ahead of time.
	ModeID
	// ModeEnumeration walks primary domains, skipping any with
	// enumerate=false.
	ModeEnumeration
)

// Iterator produces the ordered, mode-filtered walk of domains a
// pipeline request advances through. It holds no request state of its
// own; callers reset their request's check_provider flag from
// Domain.ProviderCapable() after each Next (spec.md §4.5).
type Iterator struct {
	order []*Domain
	pos   int
}

// NewIterator builds the walk order for mode over domains. singleDomain
// is used only by ModeNameFQ, where it is the one pre-resolved domain
// the request targets (nil means the name didn't resolve to any known
// domain, producing an immediately-exhausted iterator).
func NewIterator(domains []*Domain, mode Mode, singleDomain *Domain) *Iterator {
	switch mode {
	case ModeNameFQ:
		if singleDomain == nil {
			return &Iterator{}
		}
		return &Iterator{order: []*Domain{singleDomain}}
	case ModeID:
		return &Iterator{order: flattenWithSubdomains(domains)}
	case ModeEnumeration:
		return &Iterator{order: filterDomains(domains, func(d *Domain) bool { return d.Enumerate })}
	default: // ModeNameMultiDomain
		return &Iterator{order: filterDomains(domains, func(d *Domain) bool { return !d.FQNames })}
	}
}

func filterDomains(domains []*Domain, keep func(*Domain) bool) []*Domain {
	var out []*Domain
	for _, d := range domains {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func flattenWithSubdomains(domains []*Domain) []*Domain {
	var out []*Domain
	var walk func(*Domain)
	walk = func(d *Domain) {
		out = append(out, d)
		for _, sub := range d.Subdomains {
			walk(sub)
		}
	}
	for _, d := range domains {
		walk(d)
	}
	return out
}

// Next returns the next eligible domain, or ok=false once exhausted.
func (it *Iterator) Next() (d *Domain, ok bool) {
	if it == nil || it.pos >= len(it.order) {
		return nil, false
	}
	d = it.order[it.pos]
	it.pos++
	return d, true
}

// Exhausted reports whether the walk has no remaining domains.
func (it *Iterator) Exhausted() bool {
	return it == nil || it.pos >= len(it.order)
}

// ResolveBySIDPrefix implements ModeSID's "select domain by SID prefix
// before entering the pipeline" — a direct lookup, not an iteration,
// since a SID names exactly one domain.
func ResolveBySIDPrefix(domains []*Domain, sidPrefix string) (*Domain, bool) {
	for _, d := range domains {
		if d.SID == sidPrefix {
			return d, true
		}
		for _, sub := range d.Subdomains {
			if sub.SID == sidPrefix {
				return sub, true
			}
		}
	}
	return nil, false
}

// ResolveByName finds a domain by exact name, checking subdomains too —
// used to pin the target domain when a name's "@domain" suffix is
// recognized (spec.md §4.6.1 step 1).
func ResolveByName(domains []*Domain, name string) (*Domain, bool) {
	for _, d := range domains {
		if matchName(d, name) {
			return d, true
		}
		for _, sub := range d.Subdomains {
			if matchName(sub, name) {
				return sub, true
			}
		}
	}
	return nil, false
}

func matchName(d *Domain, name string) bool {
	if d.CaseSensitive {
		return d.Name == name
	}
	return strings.EqualFold(d.Name, name)
}
