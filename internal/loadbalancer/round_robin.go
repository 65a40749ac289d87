package loadbalancer

import "sync/atomic"

type RoundRobin struct {
	next atomic.Uint64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (r *RoundRobin) Next(upstreams []string) string {
	if len(upstreams) == 0 {
		return ""
	}
	n := r.next.Add(1) - 1
	return upstreams[n%uint64(len(upstreams))]
}

func (r *RoundRobin) Name() string {
	return "round_robin"
}
