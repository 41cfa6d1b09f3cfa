package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskflow/domain"
)

// Sleeper waits for d to simulate a network round trip. It returns early with
// ctx.Err() when the context is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoDelay skips the simulated latency. Used by tests.
func NoDelay(context.Context, time.Duration) error { return nil }

// Latency holds the simulated delay of each operation.
type Latency struct {
	GetAll  time.Duration
	GetByID time.Duration
	Create  time.Duration
	Update  time.Duration
	Delete  time.Duration
}

// DefaultLatency is the delay profile of a typical hosted record API.
var DefaultLatency = Latency{
	GetAll:  200 * time.Millisecond,
	GetByID: 150 * time.Millisecond,
	Create:  250 * time.Millisecond,
	Update:  300 * time.Millisecond,
	Delete:  200 * time.Millisecond,
}

// Scale multiplies every delay by f. A zero factor disables latency.
func (l Latency) Scale(f float64) Latency {
	scale := func(d time.Duration) time.Duration { return time.Duration(float64(d) * f) }
	return Latency{
		GetAll:  scale(l.GetAll),
		GetByID: scale(l.GetByID),
		Create:  scale(l.Create),
		Update:  scale(l.Update),
		Delete:  scale(l.Delete),
	}
}

// MemoryOptions configures a Memory store. Zero values pick the defaults.
type MemoryOptions struct {
	Latency Latency
	Sleep   Sleeper
	Now     func() time.Time
	NewID   func() string
}

// Memory is the in-process entity store. It stands in for a remote backend
// and simulates its latency; every record it hands out is a copy.
type Memory struct {
	tasks      *collection[domain.Task, domain.TaskFields]
	categories *collection[domain.Category, domain.CategoryFields]
	settings   *MemorySettings
}

// NewMemory creates an empty store.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Memory{
		tasks:      newCollection(domain.TaskKind, opts),
		categories: newCollection(domain.CategoryKind, opts),
		settings:   newMemorySettings(opts),
	}
}

func (m *Memory) Tasks() domain.TaskService { return m.tasks }

func (m *Memory) Categories() domain.CategoryService { return m.categories }

func (m *Memory) Settings() *MemorySettings { return m.settings }

// Seed inserts records with their ids preserved, in order. Ids already in use
// are rejected.
func (m *Memory) Seed(s Seed) error {
	for _, c := range s.Categories {
		if err := m.categories.insert(c); err != nil {
			return err
		}
	}
	for _, t := range s.Tasks {
		if err := m.tasks.insert(t); err != nil {
			return err
		}
	}
	return nil
}

type collection[E any, F any] struct {
	kind domain.Kind[E, F]
	opts MemoryOptions

	mu    sync.RWMutex
	order []string
	items map[string]E
	// issued holds every id ever handed out so deleted ids are never reused.
	issued map[string]struct{}
}

func newCollection[E any, F any](kind domain.Kind[E, F], opts MemoryOptions) *collection[E, F] {
	return &collection[E, F]{
		kind:   kind,
		opts:   opts,
		items:  make(map[string]E),
		issued: make(map[string]struct{}),
	}
}

func (c *collection[E, F]) GetAll(ctx context.Context) ([]E, error) {
	if err := c.opts.Sleep(ctx, c.opts.Latency.GetAll); err != nil {
		return nil, domain.FetchFailed(c.kind.Name, err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]E, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.kind.Clone(c.items[id]))
	}
	return out, nil
}

func (c *collection[E, F]) GetByID(ctx context.Context, id string) (E, error) {
	var zero E
	if err := c.opts.Sleep(ctx, c.opts.Latency.GetByID); err != nil {
		return zero, domain.OperationFailed(c.kind.Name, "get", id, "", err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[id]
	if !ok {
		return zero, domain.NotFound(c.kind.Name, "get", id)
	}
	return c.kind.Clone(e), nil
}

func (c *collection[E, F]) Create(ctx context.Context, fields F) (E, error) {
	var zero E
	if err := c.opts.Sleep(ctx, c.opts.Latency.Create); err != nil {
		return zero, domain.OperationFailed(c.kind.Name, "create", "", "", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID()
	e := c.kind.New(id, fields, c.opts.Now())
	c.items[id] = c.kind.Clone(e)
	c.order = append(c.order, id)
	return e, nil
}

func (c *collection[E, F]) Update(ctx context.Context, id string, fields F) (E, error) {
	var zero E
	if err := c.opts.Sleep(ctx, c.opts.Latency.Update); err != nil {
		return zero, domain.OperationFailed(c.kind.Name, "update", id, "", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.items[id]
	if !ok {
		return zero, domain.NotFound(c.kind.Name, "update", id)
	}
	e := c.kind.Merge(cur, fields, c.opts.Now())
	c.items[id] = c.kind.Clone(e)
	return e, nil
}

func (c *collection[E, F]) Delete(ctx context.Context, id string) error {
	if err := c.opts.Sleep(ctx, c.opts.Latency.Delete); err != nil {
		return domain.OperationFailed(c.kind.Name, "delete", id, "", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return domain.NotFound(c.kind.Name, "delete", id)
	}
	delete(c.items, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// nextID must be called with mu held.
func (c *collection[E, F]) nextID() string {
	for {
		id := c.opts.NewID()
		if _, used := c.issued[id]; id == "" || used {
			continue
		}
		c.issued[id] = struct{}{}
		return id
	}
}

func (c *collection[E, F]) insert(e E) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.kind.ID(e)
	if id == "" {
		return domain.OperationFailed(c.kind.Name, "seed", id, "seed record without id", nil)
	}
	if _, used := c.issued[id]; used {
		return domain.OperationFailed(c.kind.Name, "seed", id, "duplicate "+c.kind.Name+" id "+id, nil)
	}
	c.issued[id] = struct{}{}
	c.items[id] = c.kind.Clone(e)
	c.order = append(c.order, id)
	return nil
}

// MemorySettings keeps the single settings record in memory.
type MemorySettings struct {
	latency Latency
	sleep   Sleeper
	now     func() time.Time

	mu       sync.RWMutex
	settings domain.Settings
}

func newMemorySettings(opts MemoryOptions) *MemorySettings {
	return &MemorySettings{
		latency:  opts.Latency,
		sleep:    opts.Sleep,
		now:      opts.Now,
		settings: domain.DefaultSettings(),
	}
}

func (s *MemorySettings) Get(ctx context.Context, id string) (domain.Settings, error) {
	if err := s.sleep(ctx, s.latency.GetByID); err != nil {
		return domain.Settings{}, domain.OperationFailed("settings", "get", id, "", err)
	}
	if id != domain.SettingsID {
		return domain.Settings{}, domain.NotFound("settings", "get", id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *MemorySettings) Update(ctx context.Context, id string, fields domain.SettingsFields) (domain.Settings, error) {
	if err := s.sleep(ctx, s.latency.Update); err != nil {
		return domain.Settings{}, domain.OperationFailed("settings", "update", id, "", err)
	}
	if id != domain.SettingsID {
		return domain.Settings{}, domain.NotFound("settings", "update", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.settings.Apply(fields)
	next.UpdatedAt = domain.NextStamp(s.settings.UpdatedAt, s.now())
	s.settings = next
	return next, nil
}

func (s *MemorySettings) Reset(ctx context.Context, id string) error {
	if err := s.sleep(ctx, s.latency.Delete); err != nil {
		return domain.OperationFailed("settings", "reset", id, "", err)
	}
	if id != domain.SettingsID {
		return domain.NotFound("settings", "reset", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = domain.DefaultSettings()
	return nil
}
