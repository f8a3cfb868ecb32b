package pipeline

import "github.com/nssresponder/responderd/internal/wire"

// HandleGetVersion implements the GET_VERSION command supplemented from
// original_source/ (nsssrv_cmd.c's nss_cmd_getversion): a pure version
// negotiation reply, touching neither cache.
func (p *Pipeline) HandleGetVersion() uint32 {
	return wire.ProtocolVersion
}
