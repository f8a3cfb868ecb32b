// Package domain models the responder's domain list (spec.md §3, §4.5):
// the flat list of authoritative zones a request can be resolved
// against, their POSIX id ranges and override policy, and the
// etcd-backed discovery used to pick up subdomains announced by the
// provider collaborator at runtime.
package domain

import "github.com/nssresponder/responderd/internal/reply"

// Domain is one authoritative zone a request can resolve against.
type Domain struct {
	Name          string
	SID           string
	IDMin         uint32
	IDMax         uint32
	Enumerate     bool
	FQNames       bool
	CaseSensitive bool
	MPG           bool

	OverrideGID     *uint32
	OverrideHomedir string
	OverrideShell   string
	DefaultShell    string
	FallbackHomedir string

	// FQNameTemplate expands a local name into this domain's
	// fully-qualified form, e.g. "%u@%d".
	FQNameTemplate string

	// Subdomains are discovered children sharing the parent's
	// persistent cache (spec.md §3's "Domain" entity).
	Subdomains []*Domain

	// globalIDMin/globalIDMax back EffectiveRange's fallback when this
	// domain configures neither bound; set by Manager.SetGlobalIDRange,
	// never by the domain's own configuration.
	globalIDMin, globalIDMax uint32

	// providerCapable tracks the reset-on-domain-change flag from
	// spec.md §4.5: "the request's check_provider flag is reset from
	// that domain's provider capability" — here, the domain's own
	// default responsiveness toward the provider, absent any
	// request-level override.
	providerCapable bool
}

// NewDomain builds a Domain with provider checks enabled and
// unqualified-name lookups allowed by default — the common case for a
// freshly discovered domain with no outage history and no FQ-only
// policy configured.
func NewDomain(name string) *Domain {
	return &Domain{Name: name, providerCapable: true}
}

// ProviderCapable reports whether a fresh request entering this domain
// should default check_provider to true.
func (d *Domain) ProviderCapable() bool { return d.providerCapable }

// SetProviderCapable updates the domain's default provider-check state,
// e.g. after repeated provider failures or a recovery.
func (d *Domain) SetProviderCapable(ok bool) { d.providerCapable = ok }

// EffectiveRange returns this domain's configured POSIX id window,
// falling back to the process-wide default window when the domain
// configures neither bound — sss_idmap's per-domain id_min/id_max
// fallback behavior, supplemented from original_source/ since spec.md's
// distillation assumes every domain always sets its own range.
func (d *Domain) EffectiveRange() (min, max uint32) {
	if d.IDMin == 0 && d.IDMax == 0 {
		return d.globalIDMin, d.globalIDMax
	}
	return d.IDMin, d.IDMax
}

// InRange reports whether id falls within this domain's effective
// POSIX id range (spec.md §4.6.1 step 3's "range check").
func (d *Domain) InRange(id uint32) bool {
	min, max := d.EffectiveRange()
	if min == 0 && max == 0 {
		return false
	}
	return id >= min && id <= max
}

// OverridePolicy builds the reply.OverrideConfig for a passwd entry
// resolved against this domain, merged with process-global defaults.
// Domain fields win; global is the fallback, per spec.md §4.4.
func (d *Domain) OverridePolicy(global reply.OverrideConfig) reply.OverrideConfig {
	cfg := global
	cfg.DomainName = d.Name
	cfg.DomainOverrideHomedir = d.OverrideHomedir
	cfg.DomainOverrideShell = d.OverrideShell
	cfg.DomainDefaultShell = d.DefaultShell
	cfg.DomainFallbackHomedir = d.FallbackHomedir
	cfg.OverrideGID = d.OverrideGID
	return cfg
}

// FormatFQName renders name as fully-qualified under this domain's
// template, defaulting to "%u"+sep+"%d" when the domain has none
// configured. sep is the process-wide NameSeparator (sss_idmap's
// configurable FQ-name separator, "@" unless overridden).
func (d *Domain) FormatFQName(localName, sep string) (string, bool) {
	tpl := d.FQNameTemplate
	if tpl == "" {
		tpl = "%u" + sep + "%d"
	}
	return reply.FormatFQName(tpl, reply.PasswdEntry{FQName: localName}, d.Name)
}
