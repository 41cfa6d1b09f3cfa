package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"taskflow/domain"
)

const (
	maxUpdateAttempts = 3
	maxCreateAttempts = 3
)

type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, o *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, o *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// Tables opens table clients on one storage account.
type Tables struct {
	svc *aztables.ServiceClient
}

// NewTables creates a Tables instance from the given connection string.
func NewTables(connStr string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{svc: svc}, nil
}

// Tasks returns the task façade backed by the named table.
func (t *Tables) Tasks(name string) *Table[domain.Task, domain.TaskFields] {
	return NewTable(t.svc.NewClient(name), domain.TaskKind, taskCodec)
}

// Categories returns the category façade backed by the named table.
func (t *Tables) Categories(name string) *Table[domain.Category, domain.CategoryFields] {
	return NewTable(t.svc.NewClient(name), domain.CategoryKind, categoryCodec)
}

// TableCodec converts records to and from table entities.
type TableCodec[E any] struct {
	Encode func(partition string, e E) ([]byte, error)
	Decode func(data []byte) (E, error)
}

// Table is a façade over one Azure table. Every record lives in the
// partition named after its kind.
type Table[E any, F any] struct {
	client tableClient
	kind   domain.Kind[E, F]
	codec  TableCodec[E]
	now    func() time.Time
	newID  func() string
}

func NewTable[E any, F any](client tableClient, kind domain.Kind[E, F], codec TableCodec[E]) *Table[E, F] {
	return &Table[E, F]{
		client: client,
		kind:   kind,
		codec:  codec,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

func (t *Table[E, F]) GetAll(ctx context.Context) ([]E, error) {
	filter := "PartitionKey eq '" + t.kind.Name + "'"
	pager := t.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []E{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, domain.FetchFailed(t.kind.Name, err)
		}
		for _, raw := range resp.Entities {
			e, err := t.codec.Decode(raw)
			if err != nil {
				return nil, domain.FetchFailed(t.kind.Name, err)
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *Table[E, F]) GetByID(ctx context.Context, id string) (E, error) {
	e, _, err := t.get(ctx, "get", id)
	return e, err
}

func (t *Table[E, F]) Create(ctx context.Context, fields F) (E, error) {
	var zero E
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		e := t.kind.New(t.newID(), fields, t.now())
		payload, err := t.codec.Encode(t.kind.Name, e)
		if err != nil {
			return zero, domain.OperationFailed(t.kind.Name, "create", "", "", err)
		}
		_, err = t.client.AddEntity(ctx, payload, nil)
		if err == nil {
			return e, nil
		}
		if statusCode(err) != http.StatusConflict {
			return zero, t.wrap("create", "", err)
		}
	}
	return zero, domain.OperationFailed(t.kind.Name, "create", "", "could not allocate a unique id", nil)
}

func (t *Table[E, F]) Update(ctx context.Context, id string, fields F) (E, error) {
	var zero E
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		cur, etag, err := t.get(ctx, "update", id)
		if err != nil {
			return zero, err
		}
		next := t.kind.Merge(cur, fields, t.now())
		payload, err := t.codec.Encode(t.kind.Name, next)
		if err != nil {
			return zero, domain.OperationFailed(t.kind.Name, "update", id, "", err)
		}
		_, err = t.client.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		if err == nil {
			return next, nil
		}
		if statusCode(err) != http.StatusPreconditionFailed {
			return zero, t.wrap("update", id, err)
		}
	}
	return zero, domain.OperationFailed(t.kind.Name, "update", id, "concurrent modification", nil)
}

func (t *Table[E, F]) Delete(ctx context.Context, id string) error {
	if _, err := t.client.DeleteEntity(ctx, t.kind.Name, id, nil); err != nil {
		return t.wrap("delete", id, err)
	}
	return nil
}

func (t *Table[E, F]) get(ctx context.Context, op, id string) (E, azcore.ETag, error) {
	var zero E
	resp, err := t.client.GetEntity(ctx, t.kind.Name, id, nil)
	if err != nil {
		return zero, "", t.wrap(op, id, err)
	}
	e, err := t.codec.Decode(resp.Value)
	if err != nil {
		return zero, "", domain.OperationFailed(t.kind.Name, op, id, "", err)
	}
	return e, resp.ETag, nil
}

func (t *Table[E, F]) wrap(op, id string, err error) error {
	if statusCode(err) == http.StatusNotFound {
		return domain.NotFound(t.kind.Name, op, id)
	}
	return domain.OperationFailed(t.kind.Name, op, id, "", err)
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

type tableKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type taskEntity struct {
	tableKeys
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Notes       string `json:"Notes"`
	Priority    string `json:"Priority"`
	Status      string `json:"Status"`
	DueDate     string `json:"DueDate,omitempty"`
	CategoryID  string `json:"CategoryId,omitempty"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

type categoryEntity struct {
	tableKeys
	Name      string `json:"Name"`
	Icon      string `json:"Icon,omitempty"`
	CreatedAt string `json:"CreatedAt"`
	UpdatedAt string `json:"UpdatedAt"`
}

var taskCodec = TableCodec[domain.Task]{
	Encode: func(pk string, t domain.Task) ([]byte, error) {
		ent := taskEntity{
			tableKeys:   tableKeys{PartitionKey: pk, RowKey: t.ID},
			Title:       t.Title,
			Description: t.Description,
			Notes:       t.Notes,
			Priority:    string(t.Priority),
			Status:      string(t.Status),
			CreatedAt:   formatStamp(t.CreatedAt),
			UpdatedAt:   formatStamp(t.UpdatedAt),
		}
		if t.DueDate != nil {
			ent.DueDate = formatStamp(*t.DueDate)
		}
		if t.CategoryID != nil {
			ent.CategoryID = *t.CategoryID
		}
		return json.Marshal(ent)
	},
	Decode: func(data []byte) (domain.Task, error) {
		var ent taskEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return domain.Task{}, err
		}
		t := domain.Task{
			ID:          ent.RowKey,
			Title:       ent.Title,
			Description: ent.Description,
			Notes:       ent.Notes,
			Priority:    domain.Priority(ent.Priority),
			Status:      domain.Status(ent.Status),
		}
		var err error
		if t.CreatedAt, err = parseStamp(ent.CreatedAt); err != nil {
			return domain.Task{}, err
		}
		if t.UpdatedAt, err = parseStamp(ent.UpdatedAt); err != nil {
			return domain.Task{}, err
		}
		if ent.DueDate != "" {
			due, err := parseStamp(ent.DueDate)
			if err != nil {
				return domain.Task{}, err
			}
			t.DueDate = &due
		}
		if ent.CategoryID != "" {
			c := ent.CategoryID
			t.CategoryID = &c
		}
		return t, nil
	},
}

var categoryCodec = TableCodec[domain.Category]{
	Encode: func(pk string, c domain.Category) ([]byte, error) {
		return json.Marshal(categoryEntity{
			tableKeys: tableKeys{PartitionKey: pk, RowKey: c.ID},
			Name:      c.Name,
			Icon:      c.Icon,
			CreatedAt: formatStamp(c.CreatedAt),
			UpdatedAt: formatStamp(c.UpdatedAt),
		})
	},
	Decode: func(data []byte) (domain.Category, error) {
		var ent categoryEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return domain.Category{}, err
		}
		c := domain.Category{ID: ent.RowKey, Name: ent.Name, Icon: ent.Icon}
		var err error
		if c.CreatedAt, err = parseStamp(ent.CreatedAt); err != nil {
			return domain.Category{}, err
		}
		if c.UpdatedAt, err = parseStamp(ent.UpdatedAt); err != nil {
			return domain.Category{}, err
		}
		return c, nil
	},
}

func formatStamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseStamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
