package coordinator

import (
	"math/big"
	"sync"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/domains"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/metrics"
)

// DomainVolume is a snapshot of one domain's settled totals
type DomainVolume struct {
	Input  *big.Int
	Output *big.Int
}

// domainVolume carries one domain's running totals
type domainVolume struct {
	input  *big.Int
	output *big.Int
}

// volumeTracker accumulates settled swap volume per target domain
type volumeTracker struct {
	mu     sync.Mutex
	totals map[uint32]*domainVolume
}

func newVolumeTracker() *volumeTracker {
	return &volumeTracker{
		totals: make(map[uint32]*domainVolume),
	}
}

// RecordSettled adds a completed swap's input and delivered amounts to the
// domain totals and refreshes the volume gauge
func (v *volumeTracker) RecordSettled(domain uint32, input, output *big.Int) {
	if input == nil && output == nil {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	totals, ok := v.totals[domain]
	if !ok {
		totals = &domainVolume{input: new(big.Int), output: new(big.Int)}
		v.totals[domain] = totals
	}
	if input != nil {
		totals.input.Add(totals.input, input)
	}
	if output != nil {
		totals.output.Add(totals.output, output)
	}

	gauge, _ := new(big.Float).SetInt(totals.input).Float64()
	metrics.Volume.WithLabelValues(domains.GetDomainName(domain)).Set(gauge)
}

// Totals returns a copy of the per-domain volume totals
func (v *volumeTracker) Totals() map[uint32]DomainVolume {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make(map[uint32]DomainVolume, len(v.totals))
	for domain, totals := range v.totals {
		out[domain] = DomainVolume{
			Input:  new(big.Int).Set(totals.input),
			Output: new(big.Int).Set(totals.output),
		}
	}
	return out
}
