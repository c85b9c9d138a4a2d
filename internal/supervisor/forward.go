package supervisor

import (
	"github.com/B4PzwL3YVGa6/newd/internal/ipc"
	"github.com/B4PzwL3YVGa6/newd/internal/proposal"
)

// engineForwarder carries decoded proposals from the monitor to the
// engine, tagged by address family.
type engineForwarder struct {
	ch confSender
}

func (f *engineForwarder) ForwardProposal(p *proposal.Proposal) error {
	kind := ipc.KindProposalV6
	if p.Family == proposal.IPv4 {
		kind = ipc.KindProposalV4
	}
	return f.ch.Send(kind, 0, -1, p.Marshal())
}
