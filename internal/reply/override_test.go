package reply

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveHomedirPrecedence(t *testing.T) {
	entry := PasswdEntry{FQName: "alice@EXAMPLE", Homedir: "/home/alice"}

	assert.Equal(t, "/override/alice", ResolveHomedir(entry, OverrideConfig{
		DomainOverrideHomedir: "/override/%u",
	}))

	assert.Equal(t, "/home/alice", ResolveHomedir(entry, OverrideConfig{}))

	empty := PasswdEntry{FQName: "alice@EXAMPLE"}
	assert.Equal(t, "/srv/home/alice", ResolveHomedir(empty, OverrideConfig{
		GlobalFallbackHomedir: "/srv/home/%u",
	}))
	assert.Equal(t, "", ResolveHomedir(empty, OverrideConfig{}))
}

func TestResolveShellOverrideWins(t *testing.T) {
	entry := PasswdEntry{Shell: "/bin/zsh"}
	got := ResolveShell(entry, OverrideConfig{GlobalOverrideShell: "/bin/forced"})
	assert.Equal(t, "/bin/forced", got)
}

func TestResolveShellVetoed(t *testing.T) {
	entry := PasswdEntry{Shell: "/bin/csh"}
	got := ResolveShell(entry, OverrideConfig{
		VetoedShells:  []string{"/bin/csh"},
		ShellFallback: "/bin/bash",
	})
	assert.Equal(t, "/bin/bash", got)
}

func TestResolveShellVetoedNoFallbackUsesNologin(t *testing.T) {
	entry := PasswdEntry{Shell: "/bin/csh"}
	got := ResolveShell(entry, OverrideConfig{VetoedShells: []string{"/bin/csh"}})
	assert.Equal(t, NOLOGINShell, got)
}

func TestResolveShellInstalledListKeepsMatch(t *testing.T) {
	entry := PasswdEntry{Shell: "/bin/bash"}
	got := ResolveShell(entry, OverrideConfig{InstalledShells: []string{"/bin/bash", "/bin/zsh"}})
	assert.Equal(t, "/bin/bash", got)
}

func TestResolveShellNotInstalledButAllowedFallsBack(t *testing.T) {
	entry := PasswdEntry{Shell: "/opt/custom/shell"}
	got := ResolveShell(entry, OverrideConfig{
		InstalledShells: []string{"/bin/bash"},
		AllowedShells:   []string{"/opt/custom/shell"},
		ShellFallback:   "/bin/bash",
	})
	assert.Equal(t, "/bin/bash", got)
}

func TestResolveShellUnknownBecomesNologin(t *testing.T) {
	entry := PasswdEntry{Shell: "/opt/mystery"}
	got := ResolveShell(entry, OverrideConfig{InstalledShells: []string{"/bin/bash"}})
	assert.Equal(t, NOLOGINShell, got)
}

func TestResolveShellEmptyUsesDefaultShell(t *testing.T) {
	entry := PasswdEntry{Shell: ""}
	got := ResolveShell(entry, OverrideConfig{DomainDefaultShell: "/bin/sh"})
	assert.Equal(t, "/bin/sh", got)
}

func TestResolveGIDOverride(t *testing.T) {
	entry := PasswdEntry{GID: 100}
	override := uint32(500)
	assert.Equal(t, uint32(500), ResolveGID(entry, OverrideConfig{OverrideGID: &override}))
	assert.Equal(t, uint32(100), ResolveGID(entry, OverrideConfig{}))
}
