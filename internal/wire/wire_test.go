package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nssresponder/responderd/internal/wire"
)

func TestCmdStringKnownCommand(t *testing.T) {
	assert.Equal(t, "NSS_GETPWNAM", wire.NSSGetPwNam.String())
	assert.Equal(t, "GET_VERSION", wire.GetVersion.String())
}

func TestCmdStringUnknownCommand(t *testing.T) {
	assert.Equal(t, "CMD_UNKNOWN", wire.Cmd(9999).String())
}

func TestCommandsAreDistinct(t *testing.T) {
	seen := map[wire.Cmd]bool{}
	cmds := []wire.Cmd{
		wire.GetVersion, wire.NSSGetPwNam, wire.NSSGetPwUID, wire.NSSSetPwEnt,
		wire.NSSGetPwEnt, wire.NSSEndPwEnt, wire.NSSGetGrNam, wire.NSSGetGrGID,
		wire.NSSSetGrEnt, wire.NSSGetGrEnt, wire.NSSEndGrEnt, wire.NSSInitGr,
		wire.NSSSetNetgrEnt, wire.NSSGetNetgrEnt, wire.NSSEndNetgrEnt,
		wire.NSSGetServByName, wire.NSSGetServByPort, wire.NSSSetServEnt,
		wire.NSSGetServEnt, wire.NSSEndServEnt, wire.NSSGetSIDByName,
		wire.NSSGetSIDByID, wire.NSSGetNameBySID, wire.NSSGetIDBySID,
	}
	for _, c := range cmds {
		assert.False(t, seen[c], "duplicate command value for %s", c)
		seen[c] = true
	}
}
