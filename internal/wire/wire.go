// Package wire defines the client wire protocol's command set and
// framing contract (spec.md §6.1). It carries no socket code — framing
// bytes on or off a real transport is out of scope (§1's "no real
// socket server") — just the constants and status codes internal/pipeline
// and internal/responder dispatch against.
package wire

// Cmd is one client wire protocol command (spec.md §6.1).
type Cmd uint32

const (
	GetVersion Cmd = iota + 1

	NSSGetPwNam
	NSSGetPwUID
	NSSSetPwEnt
	NSSGetPwEnt
	NSSEndPwEnt

	NSSGetGrNam
	NSSGetGrGID
	NSSSetGrEnt
	NSSGetGrEnt
	NSSEndGrEnt

	NSSInitGr

	NSSSetNetgrEnt
	NSSGetNetgrEnt
	NSSEndNetgrEnt

	NSSGetServByName
	NSSGetServByPort
	NSSSetServEnt
	NSSGetServEnt
	NSSEndServEnt

	NSSGetSIDByName
	NSSGetSIDByID
	NSSGetNameBySID
	NSSGetIDBySID
)

var cmdNames = map[Cmd]string{
	GetVersion:        "GET_VERSION",
	NSSGetPwNam:       "NSS_GETPWNAM",
	NSSGetPwUID:       "NSS_GETPWUID",
	NSSSetPwEnt:       "NSS_SETPWENT",
	NSSGetPwEnt:       "NSS_GETPWENT",
	NSSEndPwEnt:       "NSS_ENDPWENT",
	NSSGetGrNam:       "NSS_GETGRNAM",
	NSSGetGrGID:       "NSS_GETGRGID",
	NSSSetGrEnt:       "NSS_SETGRENT",
	NSSGetGrEnt:       "NSS_GETGRENT",
	NSSEndGrEnt:       "NSS_ENDGRENT",
	NSSInitGr:         "NSS_INITGR",
	NSSSetNetgrEnt:    "NSS_SETNETGRENT",
	NSSGetNetgrEnt:    "NSS_GETNETGRENT",
	NSSEndNetgrEnt:    "NSS_ENDNETGRENT",
	NSSGetServByName:  "NSS_GETSERVBYNAME",
	NSSGetServByPort:  "NSS_GETSERVBYPORT",
	NSSSetServEnt:     "NSS_SETSERVENT",
	NSSGetServEnt:     "NSS_GETSERVENT",
	NSSEndServEnt:     "NSS_ENDSERVENT",
	NSSGetSIDByName:   "NSS_GETSIDBYNAME",
	NSSGetSIDByID:     "NSS_GETSIDBYID",
	NSSGetNameBySID:   "NSS_GETNAMEBYSID",
	NSSGetIDBySID:     "NSS_GETIDBYSID",
}

// String renders cmd's wire name, or "CMD_UNKNOWN" for an unrecognized one.
func (c Cmd) String() string {
	if name, ok := cmdNames[c]; ok {
		return name
	}
	return "CMD_UNKNOWN"
}

// ProtocolVersion is the version GET_VERSION reports (spec.md §12's
// supplemented protocol-version negotiation, from sssd's
// nss_cmd_getversion).
const ProtocolVersion uint32 = 1

// Frame header sizes (spec.md §6.1): "len(4) | cmd(4) | body[len]" for
// a request, "len(4) | cmd(4) | status(4) | body[len]" for a reply.
const (
	RequestHeaderSize = 8
	ReplyHeaderSize   = 12
)

// ExFlags are the trailing flags(4) word on SSS_NSS_EX_* extended
// request variants (spec.md §12), e.g. forcing a provider check past
// the persistent cache.
type ExFlags uint32

const (
	ExFlagForceProvider ExFlags = 1 << iota
)
