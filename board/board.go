package board

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskflow/domain"
)

// Board holds the local copy of tasks and categories and keeps it in step
// with the façades. Local state changes only after a successful call, and
// always to the record the backend returned.
type Board struct {
	tasks      domain.TaskService
	categories domain.CategoryService
	logger     *log.Logger
	now        func() time.Time

	mu           sync.RWMutex
	taskList     []domain.Task
	categoryList []domain.Category
}

func New(tasks domain.TaskService, categories domain.CategoryService, logger *log.Logger) *Board {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Board{
		tasks:      tasks,
		categories: categories,
		logger:     logger,
		now:        time.Now,
	}
}

// Load fetches tasks and categories concurrently. The local lists are
// replaced only when both calls succeed.
func (b *Board) Load(ctx context.Context) error {
	var (
		wg              sync.WaitGroup
		tasks           []domain.Task
		categories      []domain.Category
		taskErr, catErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		tasks, taskErr = b.tasks.GetAll(ctx)
	}()
	go func() {
		defer wg.Done()
		categories, catErr = b.categories.GetAll(ctx)
	}()
	wg.Wait()

	if taskErr != nil {
		b.logger.WithError(taskErr).Error("load tasks")
		return taskErr
	}
	if catErr != nil {
		b.logger.WithError(catErr).Error("load categories")
		return catErr
	}

	b.mu.Lock()
	b.taskList = tasks
	b.categoryList = categories
	b.mu.Unlock()
	b.logger.WithFields(log.Fields{"tasks": len(tasks), "categories": len(categories)}).Debug("board loaded")
	return nil
}

// Tasks returns a copy of the local task list.
func (b *Board) Tasks() []domain.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Task, len(b.taskList))
	for i, t := range b.taskList {
		out[i] = t.Clone()
	}
	return out
}

// Categories returns a copy of the local category list.
func (b *Board) Categories() []domain.Category {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]domain.Category(nil), b.categoryList...)
}

// Task fetches one task and refreshes its local copy.
func (b *Board) Task(ctx context.Context, id string) (domain.Task, error) {
	t, err := b.tasks.GetByID(ctx, id)
	if err != nil {
		return t, err
	}
	b.mu.Lock()
	b.taskList = replaceOrAppend(b.taskList, t.Clone(), func(x domain.Task) string { return x.ID })
	b.mu.Unlock()
	return t, nil
}

func (b *Board) AddTask(ctx context.Context, f domain.TaskFields) (domain.Task, error) {
	f, err := ValidateTask(f, true, b.now())
	if err != nil {
		return domain.Task{}, err
	}
	t, err := b.tasks.Create(ctx, f)
	if err != nil {
		b.logger.WithError(err).Warn("create task")
		return domain.Task{}, err
	}
	b.mu.Lock()
	b.taskList = append(b.taskList, t.Clone())
	b.mu.Unlock()
	return t, nil
}

func (b *Board) EditTask(ctx context.Context, id string, f domain.TaskFields) (domain.Task, error) {
	f, err := ValidateTask(f, false, b.now())
	if err != nil {
		return domain.Task{}, err
	}
	return b.updateTask(ctx, id, f)
}

// ToggleTask flips a task between completed and todo.
func (b *Board) ToggleTask(ctx context.Context, id string) (domain.Task, error) {
	b.mu.RLock()
	cur, ok := find(b.taskList, id, func(t domain.Task) string { return t.ID })
	b.mu.RUnlock()
	if !ok {
		var err error
		if cur, err = b.tasks.GetByID(ctx, id); err != nil {
			return domain.Task{}, err
		}
	}
	next := domain.StatusCompleted
	if cur.Completed() {
		next = domain.StatusTodo
	}
	return b.updateTask(ctx, id, domain.TaskFields{Status: &next})
}

func (b *Board) updateTask(ctx context.Context, id string, f domain.TaskFields) (domain.Task, error) {
	t, err := b.tasks.Update(ctx, id, f)
	if err != nil {
		b.logger.WithError(err).WithField("task", id).Warn("update task")
		return domain.Task{}, err
	}
	b.mu.Lock()
	b.taskList = replaceOrAppend(b.taskList, t.Clone(), func(x domain.Task) string { return x.ID })
	b.mu.Unlock()
	return t, nil
}

func (b *Board) RemoveTask(ctx context.Context, id string) error {
	if err := b.tasks.Delete(ctx, id); err != nil {
		b.logger.WithError(err).WithField("task", id).Warn("delete task")
		return err
	}
	b.mu.Lock()
	b.taskList = remove(b.taskList, id, func(t domain.Task) string { return t.ID })
	b.mu.Unlock()
	return nil
}

// Category fetches one category and refreshes its local copy.
func (b *Board) Category(ctx context.Context, id string) (domain.Category, error) {
	c, err := b.categories.GetByID(ctx, id)
	if err != nil {
		return c, err
	}
	b.mu.Lock()
	b.categoryList = replaceOrAppend(b.categoryList, c, func(x domain.Category) string { return x.ID })
	b.mu.Unlock()
	return c, nil
}

func (b *Board) AddCategory(ctx context.Context, f domain.CategoryFields) (domain.Category, error) {
	f, err := ValidateCategory(f, true)
	if err != nil {
		return domain.Category{}, err
	}
	c, err := b.categories.Create(ctx, f)
	if err != nil {
		b.logger.WithError(err).Warn("create category")
		return domain.Category{}, err
	}
	b.mu.Lock()
	b.categoryList = append(b.categoryList, c)
	b.mu.Unlock()
	return c, nil
}

func (b *Board) EditCategory(ctx context.Context, id string, f domain.CategoryFields) (domain.Category, error) {
	f, err := ValidateCategory(f, false)
	if err != nil {
		return domain.Category{}, err
	}
	c, err := b.categories.Update(ctx, id, f)
	if err != nil {
		b.logger.WithError(err).WithField("category", id).Warn("update category")
		return domain.Category{}, err
	}
	b.mu.Lock()
	b.categoryList = replaceOrAppend(b.categoryList, c, func(x domain.Category) string { return x.ID })
	b.mu.Unlock()
	return c, nil
}

// RemoveCategory deletes a category. Tasks that reference it are left as
// they are and show the category as unknown.
func (b *Board) RemoveCategory(ctx context.Context, id string) error {
	if err := b.categories.Delete(ctx, id); err != nil {
		b.logger.WithError(err).WithField("category", id).Warn("delete category")
		return err
	}
	b.mu.Lock()
	b.categoryList = remove(b.categoryList, id, func(c domain.Category) string { return c.ID })
	b.mu.Unlock()
	return nil
}

// Filter returns the local tasks in category whose title or description
// contains query, ignoring case. An empty category or "all" matches every task.
func (b *Board) Filter(category, query string) []domain.Task {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []domain.Task{}
	for _, t := range b.Tasks() {
		if category != "" && category != "all" && !t.InCategory(category) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(t.Title), q) && !strings.Contains(strings.ToLower(t.Description), q) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// CategoryCount returns how many local tasks reference the category.
func (b *Board) CategoryCount(id string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, t := range b.taskList {
		if t.InCategory(id) {
			n++
		}
	}
	return n
}

// CategoryName resolves a task's category for display.
func (b *Board) CategoryName(id *string) string {
	if id == nil {
		return domain.UnknownCategory
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if c, ok := find(b.categoryList, *id, func(c domain.Category) string { return c.ID }); ok {
		return c.Name
	}
	return domain.UnknownCategory
}

// Stats summarises the local task list.
func (b *Board) Stats() Stats {
	return ComputeStats(b.Tasks(), b.now())
}

func find[E any](list []E, id string, key func(E) string) (E, bool) {
	for _, e := range list {
		if key(e) == id {
			return e, true
		}
	}
	var zero E
	return zero, false
}

func replaceOrAppend[E any](list []E, e E, key func(E) string) []E {
	id := key(e)
	for i := range list {
		if key(list[i]) == id {
			list[i] = e
			return list
		}
	}
	return append(list, e)
}

func remove[E any](list []E, id string, key func(E) string) []E {
	for i := range list {
		if key(list[i]) == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
