package api

import (
	"taskflow/domain"
)

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type categoryView struct {
	domain.Category
	TaskCount int `json:"taskCount"`
}

type categoriesResponse struct {
	Categories []categoryView `json:"categories"`
}
