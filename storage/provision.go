package storage

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

type tableCreator interface {
	CreateTable(ctx context.Context, o *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

type queueCreator interface {
	Create(ctx context.Context, o *azqueue.CreateOptions) (azqueue.CreateResponse, error)
}

// EnsureTables creates the named tables, skipping empty names and tables that
// already exist.
func (t *Tables) EnsureTables(ctx context.Context, names ...string) error {
	creators := make(map[string]tableCreator, len(names))
	for _, name := range names {
		if name != "" {
			creators[name] = t.svc.NewClient(name)
		}
	}
	return EnsureTables(ctx, creators)
}

// EnsureTables creates every table in creators, keyed by table name.
func EnsureTables(ctx context.Context, creators map[string]tableCreator) error {
	for name, c := range creators {
		_, err := c.CreateTable(ctx, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
		log.WithField("table", name).Debug("table ready")
	}
	return nil
}

// EnsureQueue creates a queue unless it already exists.
func EnsureQueue(ctx context.Context, q queueCreator) error {
	_, err := q.Create(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
			return err
		}
	}
	return nil
}
