package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"fetchbox/internal/domain"
)

var (
	// ErrNotFound is returned when no job with the given id exists.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when an operation needs a live job but the
	// job already reached done, error, or cancelled.
	ErrTerminal = errors.New("job already terminal")
)

// Registry is the authoritative in-memory table of job records. Every
// mutation goes through it and is serialized by a single lock; engines and
// the route layer only ever see copies of a record, never the stored one.
//
// Terminal jobs are evicted after the retention window so the table does
// not grow without bound in a long-lived process.
type Registry struct {
	retention time.Duration

	mu      sync.RWMutex
	seq     uint64
	entries map[string]*entry
}

type entry struct {
	seq    uint64
	job    domain.Job
	cancel context.CancelFunc
}

// New builds an empty registry. Jobs that reach a terminal status are
// removed retention after the transition; retention <= 0 disables
// automatic eviction.
func New(retention time.Duration) *Registry {
	return &Registry{
		retention: retention,
		entries:   make(map[string]*entry),
	}
}

// Create records a new job in status queued and attaches its cancellation
// handle. The returned copy carries the stamped timestamps. Stamping
// happens under the lock so creation order and creation time agree.
func (r *Registry) Create(job domain.Job, cancel context.CancelFunc) domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	job.Status = domain.JobStatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now

	r.seq++
	r.entries[job.ID] = &entry{seq: r.seq, job: job, cancel: cancel}
	return cloneJob(job)
}

// Get returns a copy of the job with the given id.
func (r *Registry) Get(id string) (domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return domain.Job{}, ErrNotFound
	}
	return cloneJob(e.job), nil
}

// List returns copies of all jobs, newest first.
func (r *Registry) List() []domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ordered := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].seq > ordered[j].seq
	})

	jobs := make([]domain.Job, 0, len(ordered))
	for _, e := range ordered {
		jobs = append(jobs, cloneJob(e.job))
	}
	return jobs
}

// Transition moves a job to next and applies patch to the record under the
// same lock. The move only happens when next is a legal successor of the
// current status; otherwise the record is untouched and the current copy
// comes back with ErrTerminal for a finished job, or a plain illegal-move
// error for a live one. Engines rely on that gate: a late transition
// attempt after a user cancellation is a silent no-op.
func (r *Registry) Transition(id string, next domain.JobStatus, patch func(*domain.Job)) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.Job{}, ErrNotFound
	}
	if !e.job.Status.CanTransition(next) {
		if e.job.Status.Terminal() {
			return cloneJob(e.job), fmt.Errorf("%w: already %s", ErrTerminal, e.job.Status)
		}
		return cloneJob(e.job), fmt.Errorf("illegal transition: %s to %s", e.job.Status, next)
	}

	e.job.Status = next
	if patch != nil {
		patch(&e.job)
	}
	e.job.UpdatedAt = time.Now().UTC()
	if next.Terminal() {
		r.finalizeLocked(id, e)
	}
	return cloneJob(e.job), nil
}

// Update applies patch to a job that is still downloading. It reports
// whether the patch was applied: false means the job is gone or already
// left downloading, and the caller should stop producing updates.
func (r *Registry) Update(id string, patch func(*domain.Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.job.Status != domain.JobStatusDownloading {
		return false
	}
	patch(&e.job)
	e.job.UpdatedAt = time.Now().UTC()
	return true
}

// Cancel moves a live job to cancelled and fires its cancellation handle.
// The record changes first, so by the time the engine observes the signal
// every further write it attempts is already gated off. Cancelling a
// terminal job returns ErrTerminal and mutates nothing.
func (r *Registry) Cancel(id string) (domain.Job, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return domain.Job{}, ErrNotFound
	}
	if e.job.Status.Terminal() {
		job := cloneJob(e.job)
		r.mu.Unlock()
		return job, fmt.Errorf("%w: already %s", ErrTerminal, job.Status)
	}

	e.job.Status = domain.JobStatusCancelled
	e.job.Message = "cancelled by user"
	e.job.UpdatedAt = time.Now().UTC()
	cancel := e.cancel
	r.finalizeLocked(id, e)
	job := cloneJob(e.job)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return job, nil
}

// EvictAfter arms a one-shot timer that removes the job after d,
// independent of further reads. A job turns terminal exactly once, so the
// timer is fire-and-forget; removing an already removed id is a no-op.
func (r *Registry) EvictAfter(id string, d time.Duration) {
	time.AfterFunc(d, func() { r.remove(id) })
}

// Len reports how many jobs are currently held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// finalizeLocked clears the live-only state of a job that just became
// terminal: the cancellation handle, the sampled swarm counters, and it
// arms the retention timer.
func (r *Registry) finalizeLocked(id string, e *entry) {
	e.cancel = nil
	e.job.Torrent = nil
	if r.retention > 0 {
		r.EvictAfter(id, r.retention)
	}
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// cloneJob returns a copy safe to hand outside the lock: the torrent
// counters and file list are duplicated so callers cannot reach the
// stored record.
func cloneJob(j domain.Job) domain.Job {
	if j.Torrent != nil {
		t := *j.Torrent
		j.Torrent = &t
	}
	if j.Files != nil {
		j.Files = append([]domain.TorrentFile(nil), j.Files...)
	}
	return j
}
