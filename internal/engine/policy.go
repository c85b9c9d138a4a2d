package engine

import (
	"github.com/B4PzwL3YVGa6/newd/internal/config"
	"github.com/B4PzwL3YVGa6/newd/internal/proposal"
)

// Policy decides whether a proposal for a named interface is acted
// upon. It is a collaborator boundary; the engine never inspects the
// configuration directly.
type Policy interface {
	Accept(cfg *config.Config, ifname string, p *proposal.Proposal) bool
}

// GroupPolicy is the default policy: a proposal is accepted when a
// configured group carries the interface's name and is switched on.
// With duplicate group names the first match decides.
type GroupPolicy struct{}

func (GroupPolicy) Accept(cfg *config.Config, ifname string, p *proposal.Proposal) bool {
	for _, g := range cfg.Groups {
		if g.Name == ifname {
			return g.YesNo
		}
	}
	return false
}
