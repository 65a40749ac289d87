// Package loadbalancer picks which backend upstream serves the next completion.
package loadbalancer

import "fmt"

type Strategy interface {
	// Next selects one of upstreams, or "" when there are none
	Next(upstreams []string) string

	Name() string
}

// Tracker is implemented by strategies that weigh in-flight calls
type Tracker interface {
	Begin(upstream string)
	Done(upstream string)
}

func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "round_robin", "round-robin", "":
		return NewRoundRobin(), nil
	case "random":
		return NewRandom(), nil
	case "least_busy", "least-busy":
		return NewLeastBusy(), nil
	default:
		return nil, fmt.Errorf("unknown balancing strategy: %s", name)
	}
}
