// Package supervisor keeps long-running tasks alive, restarting them with
// exponential backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	// MaxRestarts gives up on a task after that many restarts; zero retries
	// forever.
	MaxRestarts int
}

type RestartPolicy string

const (
	// RestartPermanent restarts a task whenever it returns.
	RestartPermanent RestartPolicy = "permanent"
	// RestartTransient restarts a task only when it returns an error.
	RestartTransient RestartPolicy = "transient"
	// RestartTemporary never restarts.
	RestartTemporary RestartPolicy = "temporary"
)

type Spec struct {
	Name    string
	Restart RestartPolicy
}

type Status struct {
	Name          string        `json:"name"`
	RestartPolicy RestartPolicy `json:"restart_policy"`
	Restarts      int           `json:"restarts"`
	LastError     string        `json:"last_error,omitempty"`
	GaveUp        bool          `json:"gave_up"`
	Running       bool          `json:"running"`
}

type Hooks struct {
	OnRestart func(name string, err error, restarts int)
	OnGiveUp  func(name string, err error, restarts int)
}

func DefaultPolicy() Policy {
	return Policy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2,
	}
}

func normalizePolicy(p Policy) Policy {
	def := DefaultPolicy()
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = def.BackoffFactor
	}
	return p
}

type Supervisor struct {
	policy Policy
	hooks  Hooks

	mu    sync.Mutex
	tasks map[string]*task
}

type task struct {
	spec   Spec
	cancel context.CancelFunc
	done   chan struct{}

	restarts int
	lastErr  error
	gaveUp   bool
	running  bool
}

func New(policy Policy, hooks Hooks) *Supervisor {
	return &Supervisor{
		policy: normalizePolicy(policy),
		hooks:  hooks,
		tasks:  make(map[string]*task),
	}
}

// Start runs fn under spec until ctx is cancelled, Stop is called or the
// restart policy lets it finish.
func (s *Supervisor) Start(ctx context.Context, spec Spec, fn func(ctx context.Context) error) error {
	if spec.Name == "" {
		return errors.New("task name is required")
	}
	if fn == nil {
		return errors.New("task function is required")
	}
	switch spec.Restart {
	case RestartPermanent, RestartTransient, RestartTemporary:
	default:
		spec.Restart = RestartPermanent
	}

	s.mu.Lock()
	if t, ok := s.tasks[spec.Name]; ok && t.running {
		s.mu.Unlock()
		return fmt.Errorf("task already running: %s", spec.Name)
	}
	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{spec: spec, cancel: cancel, done: make(chan struct{}), running: true}
	s.tasks[spec.Name] = t
	s.mu.Unlock()

	go s.run(taskCtx, t, fn)
	return nil
}

func (s *Supervisor) run(ctx context.Context, t *task, fn func(ctx context.Context) error) {
	defer func() {
		s.mu.Lock()
		t.running = false
		s.mu.Unlock()
		t.cancel()
		close(t.done)
	}()

	backoff := s.policy.InitialBackoff
	for {
		err := fn(ctx)
		if ctx.Err() != nil || !shouldRestart(t.spec.Restart, err) {
			return
		}

		s.mu.Lock()
		t.lastErr = err
		if s.policy.MaxRestarts > 0 && t.restarts >= s.policy.MaxRestarts {
			t.gaveUp = true
			restarts := t.restarts
			s.mu.Unlock()
			if s.hooks.OnGiveUp != nil {
				s.hooks.OnGiveUp(t.spec.Name, err, restarts)
			}
			return
		}
		t.restarts++
		restarts := t.restarts
		s.mu.Unlock()

		if s.hooks.OnRestart != nil {
			s.hooks.OnRestart(t.spec.Name, err, restarts)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(time.Duration(float64(backoff)*s.policy.BackoffFactor), s.policy.MaxBackoff)
	}
}

func shouldRestart(policy RestartPolicy, err error) bool {
	switch policy {
	case RestartTransient:
		return err != nil
	case RestartTemporary:
		return false
	default:
		return true
	}
}

// Stop cancels the named task and waits for it to return.
func (s *Supervisor) Stop(name string) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

func (s *Supervisor) StopAll() {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// Wait blocks until the named task has finished for good.
func (s *Supervisor) Wait(name string) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if ok {
		<-t.done
	}
}

func (s *Supervisor) Children() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Status, 0, len(names))
	for _, name := range names {
		t := s.tasks[name]
		st := Status{
			Name:          name,
			RestartPolicy: t.spec.Restart,
			Restarts:      t.restarts,
			GaveUp:        t.gaveUp,
			Running:       t.running,
		}
		if t.lastErr != nil {
			st.LastError = t.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}
