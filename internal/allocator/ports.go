package allocator

import (
	"errors"
	"fmt"
)

const (
	MinPort       = 3000
	MaxPort       = 65535
	MaxExtraPorts = 20
)

var (
	// ErrPortTaken is returned when a requested port is outside the range or
	// already used on the node.
	ErrPortTaken = errors.New("port already used")
	// ErrPortsExhausted means the scan reached MaxPort without enough free ports.
	ErrPortsExhausted = errors.New("not enough free ports on node")
	ErrTooManyPorts   = fmt.Errorf("at most %d extra ports may be requested", MaxExtraPorts)
)

// PortRequest describes one provisioning allocation. Port is optional; zero
// means the first free port is chosen.
type PortRequest struct {
	Port       int
	ExtraPorts int
}

// Allocation is the primary port and the extra ports reserved for a server.
type Allocation struct {
	Port  int
	Extra []int
}

// AllocatePorts picks ports that appear nowhere in used. used must contain
// every primary and extra port already taken on the target node.
func AllocatePorts(used []int, req PortRequest) (Allocation, error) {
	if req.ExtraPorts < 0 || req.ExtraPorts > MaxExtraPorts {
		return Allocation{}, ErrTooManyPorts
	}

	taken := make(map[int]struct{}, len(used)+1+req.ExtraPorts)
	for _, p := range used {
		taken[p] = struct{}{}
	}

	var out Allocation
	if req.Port != 0 {
		if req.Port < MinPort || req.Port > MaxPort {
			return Allocation{}, fmt.Errorf("%w: %d is outside %d-%d", ErrPortTaken, req.Port, MinPort, MaxPort)
		}
		if _, ok := taken[req.Port]; ok {
			return Allocation{}, fmt.Errorf("%w: %d", ErrPortTaken, req.Port)
		}
		out.Port = req.Port
		taken[req.Port] = struct{}{}
	}

	next := MinPort
	claim := func() (int, error) {
		for ; next <= MaxPort; next++ {
			if _, ok := taken[next]; ok {
				continue
			}
			p := next
			taken[p] = struct{}{}
			next++
			return p, nil
		}
		return 0, ErrPortsExhausted
	}

	if out.Port == 0 {
		p, err := claim()
		if err != nil {
			return Allocation{}, err
		}
		out.Port = p
	}
	if req.ExtraPorts > 0 {
		out.Extra = make([]int, 0, req.ExtraPorts)
	}
	for i := 0; i < req.ExtraPorts; i++ {
		p, err := claim()
		if err != nil {
			return Allocation{}, err
		}
		out.Extra = append(out.Extra, p)
	}
	return out, nil
}
