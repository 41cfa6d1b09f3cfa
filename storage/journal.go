package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskflow/domain"
)

// Publisher delivers change records to subscribers.
type Publisher interface {
	Publish(ctx context.Context, c domain.Change) error
}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueuePublisher sends change records to an Azure Storage queue.
type QueuePublisher struct {
	queue queueClient
}

// NewQueueClient connects to the named queue with the storage retry policy.
func NewQueueClient(connStr, queue string) (*azqueue.QueueClient, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	return azqueue.NewQueueClientFromConnectionString(connStr, queue, &opts)
}

func NewQueuePublisher(q queueClient) *QueuePublisher {
	return &QueuePublisher{queue: q}
}

func (p *QueuePublisher) Publish(ctx context.Context, c domain.Change) error {
	data, err := sonic.Marshal(c)
	if err != nil {
		return err
	}
	_, err = p.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

var lastTimestamp int64

// nextTimestamp returns unix nanoseconds that strictly increase across calls.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

// Journal publishes a change record after every successful mutation of the
// wrapped façade. Publish failures are logged and never fail the call.
type Journal[E any, F any] struct {
	base   domain.Service[E, F]
	kind   domain.Kind[E, F]
	pub    Publisher
	logger *log.Logger
}

func NewJournal[E any, F any](base domain.Service[E, F], kind domain.Kind[E, F], pub Publisher, logger *log.Logger) *Journal[E, F] {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Journal[E, F]{base: base, kind: kind, pub: pub, logger: logger}
}

func (j *Journal[E, F]) GetAll(ctx context.Context) ([]E, error) { return j.base.GetAll(ctx) }

func (j *Journal[E, F]) GetByID(ctx context.Context, id string) (E, error) {
	return j.base.GetByID(ctx, id)
}

func (j *Journal[E, F]) Create(ctx context.Context, fields F) (E, error) {
	e, err := j.base.Create(ctx, fields)
	if err == nil {
		j.publish(ctx, domain.Created, j.kind.ID(e), e)
	}
	return e, err
}

func (j *Journal[E, F]) Update(ctx context.Context, id string, fields F) (E, error) {
	e, err := j.base.Update(ctx, id, fields)
	if err == nil {
		j.publish(ctx, domain.Updated, id, e)
	}
	return e, err
}

func (j *Journal[E, F]) Delete(ctx context.Context, id string) error {
	err := j.base.Delete(ctx, id)
	if err == nil {
		j.publish(ctx, domain.Deleted, id, nil)
	}
	return err
}

func (j *Journal[E, F]) publish(ctx context.Context, typ domain.ChangeType, id string, data any) {
	if j.pub == nil {
		return
	}
	change := domain.Change{
		ID:         uuid.NewString(),
		EntityType: j.kind.Name,
		Type:       typ,
		EntityID:   id,
		Timestamp:  nextTimestamp(),
	}
	if data != nil {
		raw, err := sonic.Marshal(data)
		if err != nil {
			j.logger.WithError(err).WithField("entityId", id).Error("encode change")
			return
		}
		change.Data = sonic.NoCopyRawMessage(raw)
	}
	if err := j.pub.Publish(ctx, change); err != nil {
		j.logger.WithError(err).WithFields(log.Fields{
			"entityType": change.EntityType,
			"entityId":   id,
			"type":       typ,
		}).Error("publish change")
		return
	}
	j.logger.WithFields(log.Fields{"entityType": change.EntityType, "entityId": id, "type": typ}).Debug("change published")
}
