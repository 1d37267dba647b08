package layers

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// gatedSink holds the first snapshot until release is closed.
type gatedSink struct {
	release chan struct{}
	once    sync.Once

	mu   sync.Mutex
	gens []uint64
}

func (s *gatedSink) PublishSnapshot(_ context.Context, snap Snapshot) error {
	s.once.Do(func() { <-s.release })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens = append(s.gens, snap.Generation)
	return nil
}

func TestBase_PublishesSnapshotsInGenerationOrder(t *testing.T) {
	env := newTestEnv(t)
	sink := &gatedSink{release: make(chan struct{})}
	deps := env.deps
	deps.Sink = sink
	b := newBase(KeyWeather, deps)

	for gen := uint64(1); gen <= 5; gen++ {
		b.publish(gen)
	}
	close(sink.release)
	b.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, sink.gens)
}

func TestBase_PublishAfterRemoveIsDropped(t *testing.T) {
	env := newTestEnv(t)
	b := newBase(KeyWeather, env.deps)

	b.bgMu.Lock()
	b.bgClosed = true
	b.bgMu.Unlock()

	b.publish(1)
	b.Wait()
	assert.Empty(t, env.sink.all())

	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	assert.False(t, b.draining)
	assert.Empty(t, b.pending)
}
