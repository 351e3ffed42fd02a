package utils

import (
	"sync"
)

// WorkerPool runs jobs on a bounded number of goroutines.
type WorkerPool struct {
	maxWorkers int
	semaphore  chan struct{}
	wg         sync.WaitGroup
}

// NewWorkerPool creates a WorkerPool with the given concurrency.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// Submit enqueues a job for execution in the pool. It blocks while all
// workers are busy.
func (wp *WorkerPool) Submit(job func()) {
	wp.wg.Add(1)
	wp.semaphore <- struct{}{}

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()
		job()
	}()
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// SiteSet is a thread-safe set of sites currently owned by an engine.
// A site's checkpoint and missing dataset have no locking of their own, so
// at most one engine may hold a site at a time.
type SiteSet struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewSiteSet creates an empty SiteSet.
func NewSiteSet() *SiteSet {
	return &SiteSet{held: make(map[string]struct{})}
}

// Acquire returns true if the site was free and is now held.
func (s *SiteSet) Acquire(site string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.held[site]; exists {
		return false
	}
	s.held[site] = struct{}{}
	return true
}

// Release frees a held site.
func (s *SiteSet) Release(site string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, site)
}

// Size returns the number of held sites.
func (s *SiteSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}
