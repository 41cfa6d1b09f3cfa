package domain

import "github.com/bytedance/sonic"

// ChangeType names what happened to an entity.
type ChangeType string

const (
	Created ChangeType = "created"
	Updated ChangeType = "updated"
	Deleted ChangeType = "deleted"
)

// Change is a journal record emitted after a successful mutation.
type Change struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entityType"`
	Type       ChangeType             `json:"type"`
	EntityID   string                 `json:"entityId"`
	Data       sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
}
