package supervisor

import (
	"github.com/B4PzwL3YVGa6/newd/internal/config"
	"github.com/B4PzwL3YVGa6/newd/internal/ipc"
)

// confSender is the slice of a Channel the distribution sequence
// needs.
type confSender interface {
	Send(kind ipc.Kind, peerID uint32, fd int, payload []byte) error
}

// distributeConfig sends one configuration to a child as the
// three-part sequence: scalar block, one frame per group in order,
// end marker. The receiver adopts nothing until the marker.
func distributeConfig(s confSender, c *config.Config) error {
	if err := s.Send(ipc.KindReconfConf, 0, -1, c.MarshalWire()); err != nil {
		return err
	}
	for _, g := range c.Groups {
		if err := s.Send(ipc.KindReconfGroup, 0, -1, g.MarshalWire()); err != nil {
			return err
		}
	}
	return s.Send(ipc.KindReconfEnd, 0, -1, nil)
}
