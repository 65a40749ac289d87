package loadbalancer

import "math/rand/v2"

type Random struct{}

func NewRandom() *Random {
	return &Random{}
}

func (Random) Next(upstreams []string) string {
	if len(upstreams) == 0 {
		return ""
	}
	return upstreams[rand.IntN(len(upstreams))]
}

func (Random) Name() string {
	return "random"
}
