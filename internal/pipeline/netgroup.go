package pipeline

import "context"

// HandleNetgroup answers NSS_SETNETGRENT/GETNETGRENT/ENDNETGRENT. No
// module in this core defines netgroup data (spec.md §6.1 names the
// commands, §3/§4 never model the entity), so this is a stub terminal
// state: always not-found, never touching any cache, keeping the wire
// contract complete without inventing a data model.
func (p *Pipeline) HandleNetgroup(ctx context.Context, name string) (bool, error) {
	return false, nil
}
