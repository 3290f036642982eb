package transport

import (
	"net/http"
	"sync/atomic"
)

// RoundRobinTransport cycles requests across a fixed pool of underlying
// http.RoundTrippers, one per configured connection, so HTTP/1.1 keep-alive
// connections to a single upstream are spread across several sockets
// instead of funneling through one. Supplements the distillation with the
// original implementation's round_robin.rs, adapted from its
// pick-any-ready-transport selection to a plain round-robin counter: Go's
// http.Transport pools connections internally, so "readiness" isn't a
// per-transport concept here the way it is for the original's pluggable
// transport trait.
type RoundRobinTransport struct {
	pool []http.RoundTripper
	next uint64
}

// NewRoundRobinTransport builds a pool of size n, each entry a fresh
// http.Transport so the kernel socket pools don't share state.
func NewRoundRobinTransport(n int) *RoundRobinTransport {
	if n < 1 {
		n = 1
	}
	pool := make([]http.RoundTripper, n)
	for i := range pool {
		pool[i] = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &RoundRobinTransport{pool: pool}
}

func (rr *RoundRobinTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	idx := atomic.AddUint64(&rr.next, 1) % uint64(len(rr.pool))
	return rr.pool[idx].RoundTrip(req)
}
