package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

// StateRepository keeps the state document in memory
type StateRepository struct {
	LoadErr error
	SaveErr error
	doc     []byte
	mu      sync.Mutex
}

func (r *StateRepository) Load(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.LoadErr != nil {
		return nil, r.LoadErr
	}
	if r.doc == nil {
		return nil, domain.ErrStateNotFound
	}
	return append([]byte(nil), r.doc...), nil
}

func (r *StateRepository) Save(ctx context.Context, doc []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.doc = append([]byte(nil), doc...)
	return nil
}

func (r *StateRepository) Delete(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = nil
	return nil
}

// Raw returns the stored document
func (r *StateRepository) Raw() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc
}

// SetRaw overwrites the stored document
func (r *StateRepository) SetRaw(doc []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = doc
}

// Scheduler is an in-memory FIFO of batch jobs
type Scheduler struct {
	EnqueueErr error
	Jobs       []ports.Job
	seq        int
	mu         sync.Mutex
}

func (s *Scheduler) Enqueue(ctx context.Context, kind ports.JobKind, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EnqueueErr != nil {
		return s.EnqueueErr
	}
	s.seq++
	s.Jobs = append(s.Jobs, ports.Job{ID: fmt.Sprintf("job-%d", s.seq), Kind: kind, Offset: offset})
	return nil
}

func (s *Scheduler) ClearAll(ctx context.Context, kind ports.JobKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.Jobs[:0]
	for _, j := range s.Jobs {
		if j.Kind != kind {
			kept = append(kept, j)
		}
	}
	s.Jobs = kept
	return nil
}

func (s *Scheduler) IsPending(ctx context.Context, kind ports.JobKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.Jobs {
		if j.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

// Pop removes and returns the oldest job
func (s *Scheduler) Pop() (ports.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Jobs) == 0 {
		return ports.Job{}, false
	}
	j := s.Jobs[0]
	s.Jobs = s.Jobs[1:]
	return j, true
}

// Len returns the number of queued jobs
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Jobs)
}

// VetoLog records vetoes in memory
type VetoLog struct {
	AppendErr error
	Vetoes    []domain.RenewalVeto
	mu        sync.Mutex
}

func (l *VetoLog) Append(ctx context.Context, veto domain.RenewalVeto) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.AppendErr != nil {
		return l.AppendErr
	}
	l.Vetoes = append(l.Vetoes, veto)
	return nil
}

func (l *VetoLog) Recent(ctx context.Context, limit int) ([]domain.RenewalVeto, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.RenewalVeto, 0, limit)
	for i := len(l.Vetoes) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.Vetoes[i])
	}
	return out, nil
}

// Archive collects archived error entries
type Archive struct {
	Err     error
	Entries []domain.ErrorEntry
	mu      sync.Mutex
}

func (a *Archive) Archive(ctx context.Context, entries []domain.ErrorEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.Entries = append(a.Entries, entries...)
	return nil
}
