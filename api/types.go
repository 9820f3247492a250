package api

import (
	"context"

	"github.com/lnbits/scrum/domain"
)

// Boards is the board use-case surface the handlers depend on.
type Boards interface {
	Create(ctx context.Context, ownerID string, data domain.CreateBoard) (domain.Board, error)
	Get(ctx context.Context, ownerID, boardID string) (domain.Board, error)
	List(ctx context.Context, ownerID string, q domain.Query) (domain.Page[domain.Board], error)
	Update(ctx context.Context, ownerID, boardID string, upd domain.BoardUpdate) (domain.Board, error)
	Delete(ctx context.Context, ownerID, boardID string, clearTasks bool) error
	PublicView(ctx context.Context, boardID string) (domain.PublicBoard, error)
}

// Tasks is the task use-case surface the handlers depend on.
type Tasks interface {
	Create(ctx context.Context, ownerID string, data domain.CreateTask) (domain.Task, error)
	Get(ctx context.Context, ownerID, taskID string) (domain.Task, error)
	List(ctx context.Context, ownerID, boardID string, q domain.Query) (domain.Page[domain.Task], error)
	Delete(ctx context.Context, ownerID, taskID string) error
	UpdateTask(ctx context.Context, ownerID, taskID string, upd domain.TaskUpdate) (domain.UpdateResult, error)
	UpdateTaskPublic(ctx context.Context, taskID string, pub domain.PublicTaskUpdate) (domain.UpdateResult, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
