package reply

import "strings"

// OverrideConfig carries every homedir/shell/gid override knob spec.md
// §4.4 resolves, already split into domain-level and global-level
// fields so callers (internal/domain, internal/pipeline) don't have to
// pre-merge them — the merge order itself (domain wins, global is the
// fallback) is part of the policy this package implements.
type OverrideConfig struct {
	DomainOverrideHomedir string
	GlobalOverrideHomedir string
	DomainFallbackHomedir string
	GlobalFallbackHomedir string

	DomainOverrideShell string
	GlobalOverrideShell string
	DomainDefaultShell  string
	GlobalDefaultShell  string

	// VetoedShells always fall back. InstalledShells mirrors a
	// configured /etc/shells: when non-empty, only listed shells pass
	// through unchanged. AllowedShells is a softer allow-list consulted
	// when a shell fails the InstalledShells check.
	VetoedShells    []string
	InstalledShells []string
	AllowedShells   []string
	ShellFallback   string

	DomainName string

	// OverrideGID replaces the record's GID outright when non-nil.
	OverrideGID *uint32
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// expandTemplate substitutes %u (the entry's local name, stripped of any
// @domain suffix) and %d (domain name) into an override template, the
// way sssd's override_homedir/override_shell directives do.
func expandTemplate(tpl string, e PasswdEntry, domain string) string {
	local := e.FQName
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	r := strings.NewReplacer("%u", local, "%d", domain)
	return r.Replace(tpl)
}

// ResolveHomedir implements spec.md §4.4 items 1-2-3.
func ResolveHomedir(e PasswdEntry, cfg OverrideConfig) string {
	if tpl := firstNonEmpty(cfg.DomainOverrideHomedir, cfg.GlobalOverrideHomedir); tpl != "" {
		return expandTemplate(tpl, e, cfg.DomainName)
	}
	if e.Homedir != "" {
		return e.Homedir
	}
	if tpl := firstNonEmpty(cfg.DomainFallbackHomedir, cfg.GlobalFallbackHomedir); tpl != "" {
		return expandTemplate(tpl, e, cfg.DomainName)
	}
	return ""
}

// ResolveShell implements spec.md §4.4 item 4.
func ResolveShell(e PasswdEntry, cfg OverrideConfig) string {
	if s := firstNonEmpty(cfg.DomainOverrideShell, cfg.GlobalOverrideShell); s != "" {
		return s
	}
	candidate := e.Shell
	if candidate == "" {
		return firstNonEmpty(cfg.DomainDefaultShell, cfg.GlobalDefaultShell)
	}
	return resolveShellCandidate(candidate, cfg)
}

func resolveShellCandidate(candidate string, cfg OverrideConfig) string {
	if containsString(cfg.VetoedShells, candidate) {
		return firstNonEmpty(cfg.ShellFallback, NOLOGINShell)
	}
	if len(cfg.InstalledShells) > 0 {
		if containsString(cfg.InstalledShells, candidate) {
			return candidate
		}
		if containsString(cfg.AllowedShells, candidate) {
			return firstNonEmpty(cfg.ShellFallback, NOLOGINShell)
		}
		return NOLOGINShell
	}
	if len(cfg.AllowedShells) > 0 {
		if containsString(cfg.AllowedShells, candidate) {
			return candidate
		}
		return NOLOGINShell
	}
	return candidate
}

// ResolveGID implements spec.md §4.4 item 5.
func ResolveGID(e PasswdEntry, cfg OverrideConfig) uint32 {
	if cfg.OverrideGID != nil {
		return *cfg.OverrideGID
	}
	return e.GID
}

// ApplyOverrides returns e with homedir, shell and gid resolved against cfg.
func ApplyOverrides(e PasswdEntry, cfg OverrideConfig) PasswdEntry {
	e.Homedir = ResolveHomedir(e, cfg)
	e.Shell = ResolveShell(e, cfg)
	e.GID = ResolveGID(e, cfg)
	return e
}
