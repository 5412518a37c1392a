// Package jobmgr tracks named recurring jobs with cancellation.
//
// Each job owns one goroutine driven by a ticker; the first fire happens
// after one full interval, never immediately. Jobs run until stopped:
//
//	jm := jobmgr.NewManager(func(msg string) {
//	    log.Println("JOB:", msg)
//	})
//
//	_ = jm.StartPeriodic("sched-42", time.Hour, func(ctx context.Context) error {
//	    // one firing
//	    return nil
//	})
//
//	// later...
//	_ = jm.Stop("sched-42")
//
// The package is intentionally minimal: no retry logic, no persistence.
package jobmgr

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Job represents one recurring unit of work.
type Job struct {
	Name   string
	Every  time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

// StatusReporter receives lifecycle events for jobs.
// Example messages:
//
//	started:sched-42
//	error:sched-42:no such channel
//	stopped:sched-42
type StatusReporter func(string)

// Manager orchestrates starting, stopping and tracking recurring jobs.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	Reporter StatusReporter
}

// NewManager creates a Manager. The reporter callback may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*Job),
		Reporter: reporter,
	}
}

// StartPeriodic runs fire every interval until the job is stopped. A job
// with the same name already running is an error. Errors returned by fire
// are reported and do not stop the job.
func (m *Manager) StartPeriodic(name string, every time.Duration, fire func(ctx context.Context) error) error {
	if every <= 0 {
		return fmt.Errorf("job '%s': interval must be positive", name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{Name: name, Every: every, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("job '%s' is already running", name)
	}
	m.jobs[name] = job
	m.mu.Unlock()

	go func() {
		defer close(job.done)
		m.report("started:" + name)

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				m.report("stopped:" + name)
				return
			case <-ticker.C:
				if err := fire(ctx); err != nil {
					m.report("error:" + name + ":" + err.Error())
				}
			}
		}
	}()

	return nil
}

// Stop cancels a running job by name and waits for its goroutine to exit.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("job '%s' not running", name)
	}

	job.cancel()
	<-job.done
	return nil
}

// StopAll cancels every running job and waits for them to exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.jobs = make(map[string]*Job)
	m.mu.Unlock()

	for _, job := range jobs {
		job.cancel()
		<-job.done
	}
}

// List returns the active job names, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Running reports whether the named job is active.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// report delivers lifecycle messages to the reporter if present.
func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}
