package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"taskflow/domain"
)

type fakePublisher struct {
	mu      sync.Mutex
	changes []domain.Change
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, c domain.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.changes = append(p.changes, c)
	return nil
}

func TestJournalPublishesSuccessfulMutations(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &fakePublisher{}
	ctx := context.Background()
	j := NewJournal(newTestMemory(t).Tasks(), domain.TaskKind, pub, logger)

	created, err := j.Create(ctx, domain.TaskFields{Title: ptr("Write report")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := j.Update(ctx, created.ID, domain.TaskFields{Status: ptr(domain.StatusCompleted)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := j.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := j.GetAll(ctx); err != nil {
		t.Fatalf("get all: %v", err)
	}

	if len(pub.changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(pub.changes))
	}
	wantTypes := []domain.ChangeType{domain.Created, domain.Updated, domain.Deleted}
	for i, c := range pub.changes {
		if c.Type != wantTypes[i] || c.EntityID != created.ID || c.EntityType != "task" {
			t.Fatalf("unexpected change %d: %+v", i, c)
		}
		if i > 0 && c.Timestamp <= pub.changes[i-1].Timestamp {
			t.Fatalf("timestamps must increase: %d then %d", pub.changes[i-1].Timestamp, c.Timestamp)
		}
	}

	var updated domain.Task
	if err := sonic.Unmarshal(pub.changes[1].Data, &updated); err != nil {
		t.Fatalf("decode change data: %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Fatalf("expected server record in change data, got %+v", updated)
	}
	if len(pub.changes[2].Data) != 0 {
		t.Fatalf("delete change should carry no data, got %s", pub.changes[2].Data)
	}
}

func TestJournalSkipsFailedMutations(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &fakePublisher{}
	j := NewJournal(newTestMemory(t).Tasks(), domain.TaskKind, pub, logger)

	if _, err := j.Update(context.Background(), "missing", domain.TaskFields{Title: ptr("x")}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := j.Delete(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(pub.changes) != 0 {
		t.Fatalf("expected no changes, got %+v", pub.changes)
	}
}

func TestJournalLogsPublishFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pub := &fakePublisher{err: errors.New("queue unavailable")}
	j := NewJournal(newTestMemory(t).Categories(), domain.CategoryKind, pub, logger)

	c, err := j.Create(context.Background(), domain.CategoryFields{Name: ptr("Errands")})
	if err != nil {
		t.Fatalf("publish failure must not fail the mutation: %v", err)
	}
	if c.Name != "Errands" {
		t.Fatalf("unexpected category: %+v", c)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.ErrorLevel {
		t.Fatalf("expected error log, got %+v", entry)
	}
	if entry.Data["entityType"] != "category" || entry.Data["entityId"] != c.ID {
		t.Fatalf("unexpected log fields: %v", entry.Data)
	}
}

type fakeQueue struct {
	messages []string
}

func (q *fakeQueue) EnqueueMessage(_ context.Context, content string, _ *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	q.messages = append(q.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func TestQueuePublisherEncodesChange(t *testing.T) {
	q := &fakeQueue{}
	p := NewQueuePublisher(q)
	change := domain.Change{ID: "c1", EntityType: "task", Type: domain.Deleted, EntityID: "t1", Timestamp: 42}

	if err := p.Publish(context.Background(), change); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(q.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(q.messages))
	}
	var got domain.Change
	if err := sonic.UnmarshalString(q.messages[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "c1" || got.Type != domain.Deleted || got.EntityID != "t1" || got.Timestamp != 42 {
		t.Fatalf("unexpected message: %+v", got)
	}
}
