package link

import (
	"sync"

	"github.com/temoto/alive/v2"
	"github.com/temoto/linkctl/log2"
)

// notifier delivers callbacks on single goroutine in push order.
// Queue is unbounded so producers (read loop, client lock holders) never block.
type notifier struct {
	mu     sync.Mutex
	alive  *alive.Alive
	log    *log2.Log
	q      []func()
	signal chan struct{}
}

func newNotifier(log *log2.Log) *notifier {
	n := &notifier{
		alive:  alive.NewAlive(),
		log:    log,
		signal: make(chan struct{}, 1),
	}
	n.alive.Add(1)
	go n.run()
	return n
}

func (n *notifier) push(f func()) {
	if f == nil {
		return
	}
	n.mu.Lock()
	n.q = append(n.q, f)
	n.mu.Unlock()
	select {
	case n.signal <- struct{}{}:
	default:
	}
}

// stop delivers already queued callbacks and waits for dispatcher exit.
func (n *notifier) stop() {
	n.alive.Stop()
	n.alive.Wait()
}

func (n *notifier) run() {
	defer n.alive.Done()
	stopch := n.alive.StopChan()
	for {
		select {
		case <-n.signal:
			n.drain()
		case <-stopch:
			n.drain()
			return
		}
	}
}

func (n *notifier) drain() {
	for {
		n.mu.Lock()
		batch := n.q
		n.q = nil
		n.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, f := range batch {
			n.call(f)
		}
	}
}

func (n *notifier) call(f func()) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Errorf("link: callback panic: %v", r)
		}
	}()
	f()
}
