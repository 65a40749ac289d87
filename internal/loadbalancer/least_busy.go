package loadbalancer

import "sync"

// LeastBusy sends the next call to the upstream with the fewest calls in
// flight. Ties go to the earliest upstream in the list.
type LeastBusy struct {
	mu       sync.Mutex
	inFlight map[string]int
}

func NewLeastBusy() *LeastBusy {
	return &LeastBusy{inFlight: make(map[string]int)}
}

func (l *LeastBusy) Next(upstreams []string) string {
	if len(upstreams) == 0 {
		return ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	selected := upstreams[0]
	for _, u := range upstreams[1:] {
		if l.inFlight[u] < l.inFlight[selected] {
			selected = u
		}
	}
	return selected
}

func (l *LeastBusy) Begin(upstream string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight[upstream]++
}

func (l *LeastBusy) Done(upstream string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight[upstream] > 1 {
		l.inFlight[upstream]--
		return
	}
	delete(l.inFlight, upstream)
}

func (l *LeastBusy) Name() string {
	return "least_busy"
}
