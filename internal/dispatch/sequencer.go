package dispatch

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Sequencer runs tasks of one key strictly in submission order and tasks of
// different keys concurrently. A worker goroutine lives only while its key
// has pending tasks.
type Sequencer struct {
	mu     sync.Mutex
	queues map[int64][]func()
	wg     sync.WaitGroup
}

func NewSequencer() *Sequencer {
	return &Sequencer{queues: make(map[int64][]func())}
}

func (s *Sequencer) Submit(key int64, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.queues[key]; ok {
		s.queues[key] = append(q, task)
		return
	}

	s.queues[key] = []func(){task}
	s.wg.Add(1)
	go s.drain(key)
}

// Wait blocks until every submitted task has finished.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

func (s *Sequencer) drain(key int64) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		q := s.queues[key]
		if len(q) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		task := q[0]
		q[0] = nil
		s.queues[key] = q[1:]
		s.mu.Unlock()

		s.run(key, task)
	}
}

func (s *Sequencer) run(key int64, task func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("key", key).Errorf("task panicked: %v", r)
		}
	}()
	task()
}
