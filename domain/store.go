package domain

import "context"

// BoardStore persists boards. Lookups return nil, nil when nothing matches.
type BoardStore interface {
	InsertBoard(ctx context.Context, b Board) error
	GetBoard(ctx context.Context, ownerID, boardID string) (*Board, error)
	GetBoardByID(ctx context.Context, boardID string) (*Board, error)
	ListBoardIDs(ctx context.Context, ownerID string) ([]string, error)
	ListBoards(ctx context.Context, ownerID string, q Query) (Page[Board], error)
	UpdateBoard(ctx context.Context, b Board) error
	DeleteBoard(ctx context.Context, ownerID, boardID string) error
}

// TaskStore persists tasks. UpdateTask is conditioned on t.ETag and returns
// ErrConcurrencyConflict when the stored task changed since it was read.
type TaskStore interface {
	InsertTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, boardID, taskID string) (*Task, error)
	GetTaskByID(ctx context.Context, taskID string) (*Task, error)
	ListTasks(ctx context.Context, boardIDs []string, q Query) (Page[Task], error)
	UpdateTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, boardID, taskID string) error
	DeleteTasksForBoard(ctx context.Context, boardID string) (int, error)
}
