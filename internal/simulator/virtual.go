package simulator

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/kineintra/kineintra/internal/transport"
)

// VirtualTarget is an in-memory transport.Target: each Open creates a pipe
// and serves the simulator on its far end.
type VirtualTarget struct {
	sim *Simulator

	mu   sync.Mutex
	done chan struct{}
}

var _ transport.Target = (*VirtualTarget)(nil)

// NewVirtualTarget creates a target backed by a fresh simulator.
func NewVirtualTarget(cfg Config) *VirtualTarget {
	return &VirtualTarget{sim: New(cfg)}
}

// Simulator returns the simulator behind the target, for fault injection
// and inspection.
func (v *VirtualTarget) Simulator() *Simulator {
	return v.sim
}

// Open waits for the previous session to wind down, then starts a new one.
func (v *VirtualTarget) Open(ctx context.Context) (transport.Channel, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.done != nil {
		select {
		case <-v.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	host, device := net.Pipe()
	done := make(chan struct{})
	v.done = done
	go func() {
		defer close(done)
		if err := v.sim.Serve(context.Background(), device); err != nil {
			v.sim.log.Warn("Virtual session ended", zap.Error(err))
		}
	}()
	return host, nil
}

func (v *VirtualTarget) String() string {
	return "virtual"
}
