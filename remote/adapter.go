package remote

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"taskflow/domain"
)

// Schema binds an entity kind to its backend table.
type Schema[E any, F any] struct {
	Table  string
	Fields FieldMap
	// Patch returns the local fields present in a partial update.
	Patch func(F) map[string]any
}

// TaskSchema maps tasks onto the "task" table.
var TaskSchema = Schema[domain.Task, domain.TaskFields]{
	Table:  "task",
	Fields: TaskFields,
	Patch:  taskPatch,
}

// CategorySchema maps categories onto the "category" table.
var CategorySchema = Schema[domain.Category, domain.CategoryFields]{
	Table:  "category",
	Fields: CategoryFields,
	Patch:  categoryPatch,
}

// Service is a façade backed by the record API.
type Service[E any, F any] struct {
	client *Client
	kind   domain.Kind[E, F]
	schema Schema[E, F]
	now    func() time.Time
}

func NewService[E any, F any](client *Client, kind domain.Kind[E, F], schema Schema[E, F]) *Service[E, F] {
	return &Service[E, F]{
		client: client,
		kind:   kind,
		schema: schema,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewTaskService returns the task façade of the record API.
func NewTaskService(c *Client) *Service[domain.Task, domain.TaskFields] {
	return NewService(c, domain.TaskKind, TaskSchema)
}

// NewCategoryService returns the category façade of the record API.
func NewCategoryService(c *Client) *Service[domain.Category, domain.CategoryFields] {
	return NewService(c, domain.CategoryKind, CategorySchema)
}

func (s *Service[E, F]) GetAll(ctx context.Context) ([]E, error) {
	resp, err := s.client.FetchRecords(ctx, s.schema.Table, s.schema.Fields.Columns())
	if err != nil {
		return nil, domain.FetchFailed(s.kind.Name, err)
	}
	if !resp.Success {
		return nil, &domain.Error{Kind: domain.ErrFetchFailed, Entity: s.kind.Name, Op: "fetch", Message: resp.Message}
	}
	if isNull(resp.Data) {
		return []E{}, nil
	}
	var rows []Record
	if err := sonic.Unmarshal(resp.Data, &rows); err != nil {
		return nil, domain.FetchFailed(s.kind.Name, err)
	}
	out := make([]E, 0, len(rows))
	for _, r := range rows {
		e, err := s.decode(r)
		if err != nil {
			return nil, domain.FetchFailed(s.kind.Name, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Service[E, F]) GetByID(ctx context.Context, id string) (E, error) {
	var zero E
	resp, err := s.client.GetRecordByID(ctx, s.schema.Table, id, s.schema.Fields.Columns())
	if err != nil {
		return zero, s.wrap("get", id, err)
	}
	if !resp.Success {
		return zero, s.missing("get", id, resp.Message)
	}
	if isNull(resp.Data) {
		return zero, domain.NotFound(s.kind.Name, "get", id)
	}
	return s.decodeRaw("get", id, resp.Data)
}

func (s *Service[E, F]) Create(ctx context.Context, fields F) (E, error) {
	var zero E
	local, err := toMap(s.kind.New("", fields, s.now()))
	if err != nil {
		return zero, domain.OperationFailed(s.kind.Name, "create", "", "", err)
	}
	resp, err := s.client.CreateRecord(ctx, s.schema.Table, []Record{s.schema.Fields.ToRemote(local)})
	if err != nil {
		return zero, domain.OperationFailed(s.kind.Name, "create", "", "", err)
	}
	data, err := s.unwrap("create", "", resp)
	if err != nil {
		return zero, err
	}
	if isNull(data) {
		return zero, domain.OperationFailed(s.kind.Name, "create", "", "empty response", nil)
	}
	return s.decodeRaw("create", "", data)
}

func (s *Service[E, F]) Update(ctx context.Context, id string, fields F) (E, error) {
	var zero E
	row := s.schema.Fields.ToRemote(s.schema.Patch(fields))
	idCol, _ := s.schema.Fields.RemoteName("id")
	row[idCol] = id
	resp, err := s.client.UpdateRecord(ctx, s.schema.Table, []Record{row})
	if err != nil {
		return zero, s.wrap("update", id, err)
	}
	data, err := s.unwrap("update", id, resp)
	if err != nil {
		return zero, err
	}
	if isNull(data) {
		return zero, domain.NotFound(s.kind.Name, "update", id)
	}
	return s.decodeRaw("update", id, data)
}

func (s *Service[E, F]) Delete(ctx context.Context, id string) error {
	resp, err := s.client.DeleteRecord(ctx, s.schema.Table, []string{id})
	if err != nil {
		return s.wrap("delete", id, err)
	}
	if !resp.Success {
		return s.missing("delete", id, firstMessage(resp))
	}
	_, err = s.unwrap("delete", id, resp)
	return err
}

// unwrap returns the payload of a single-record batch response and raises
// the first failing result.
func (s *Service[E, F]) unwrap(op, id string, resp *Response) (sonic.NoCopyRawMessage, error) {
	if !resp.Success {
		return nil, domain.OperationFailed(s.kind.Name, op, id, firstMessage(resp), nil)
	}
	for _, r := range resp.Results {
		if !r.Success {
			return nil, domain.OperationFailed(s.kind.Name, op, id, r.Message, nil)
		}
	}
	if len(resp.Results) > 0 {
		return resp.Results[0].Data, nil
	}
	return resp.Data, nil
}

// missing reports a lookup the backend answered with success=false. The
// record API signals an unknown id this way on reads and deletes.
func (s *Service[E, F]) missing(op, id, msg string) error {
	return &domain.Error{Kind: domain.ErrNotFound, Entity: s.kind.Name, Op: op, ID: id, Message: msg}
}

func (s *Service[E, F]) wrap(op, id string, err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusNotFound {
			return domain.NotFound(s.kind.Name, op, id)
		}
		return domain.OperationFailed(s.kind.Name, op, id, se.Message, err)
	}
	return domain.OperationFailed(s.kind.Name, op, id, "", err)
}

func (s *Service[E, F]) decodeRaw(op, id string, data []byte) (E, error) {
	var zero E
	var r Record
	if err := sonic.Unmarshal(data, &r); err != nil {
		return zero, domain.OperationFailed(s.kind.Name, op, id, "", err)
	}
	e, err := s.decode(r)
	if err != nil {
		return zero, domain.OperationFailed(s.kind.Name, op, id, "", err)
	}
	return e, nil
}

func (s *Service[E, F]) decode(r Record) (E, error) {
	var e E
	data, err := sonic.Marshal(s.schema.Fields.ToLocal(r))
	if err != nil {
		return e, err
	}
	err = sonic.Unmarshal(data, &e)
	return e, err
}

func firstMessage(resp *Response) string {
	for _, r := range resp.Results {
		if !r.Success && r.Message != "" {
			return r.Message
		}
	}
	return resp.Message
}

func isNull(data []byte) bool {
	return len(data) == 0 || string(data) == "null"
}

func toMap(v any) (map[string]any, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	err = sonic.Unmarshal(data, &m)
	return m, err
}

func taskPatch(f domain.TaskFields) map[string]any {
	m := map[string]any{}
	if f.Title != nil {
		m["title"] = *f.Title
	}
	if f.Description != nil {
		m["description"] = *f.Description
	}
	if f.Notes != nil {
		m["notes"] = *f.Notes
	}
	if f.Priority != nil {
		m["priority"] = string(*f.Priority)
	}
	if f.Status != nil {
		m["status"] = string(*f.Status)
	}
	if f.DueDate.Set {
		if f.DueDate.Value == nil {
			m["dueDate"] = nil
		} else {
			m["dueDate"] = f.DueDate.Value.UTC().Format(time.DateOnly)
		}
	}
	if f.CategoryID.Set {
		if f.CategoryID.Value == nil {
			m["categoryId"] = nil
		} else {
			m["categoryId"] = *f.CategoryID.Value
		}
	}
	return m
}

func categoryPatch(f domain.CategoryFields) map[string]any {
	m := map[string]any{}
	if f.Name != nil {
		m["name"] = *f.Name
	}
	if f.Icon != nil {
		m["icon"] = *f.Icon
	}
	return m
}
