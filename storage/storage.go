package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/lnbits/scrum/domain"
)

const (
	// Azure Tables rejects filters with more than 15 discrete comparisons.
	maxFilterComparisons = 15
	// Entity group transactions are capped at 100 operations.
	maxBatchSize = 100
)

// Storage keeps boards and tasks in Azure Tables.
// Boards are partitioned by owner, tasks by board.
type Storage struct {
	boardTable *aztables.Client
	taskTable  *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, boardsTable, tasksTable string) (*Storage, error) {
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
	return &Storage{boardTable: svc.NewClient(boardsTable), taskTable: svc.NewClient(tasksTable)}, nil
}

func (s *Storage) InsertBoard(ctx context.Context, b domain.Board) error {
	payload, err := json.Marshal(toBoardEntity(b))
	if err != nil {
		return err
	}
	_, err = s.boardTable.AddEntity(ctx, payload, nil)
	return err
}

func (s *Storage) GetBoard(ctx context.Context, ownerID, boardID string) (*domain.Board, error) {
	resp, err := s.boardTable.GetEntity(ctx, ownerID, boardID, nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, nil
		}
		return nil, err
	}
	b, err := decodeBoard(resp.Value, string(resp.ETag))
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBoardByID finds a board without knowing its owner.
func (s *Storage) GetBoardByID(ctx context.Context, boardID string) (*domain.Board, error) {
	var found *domain.Board
	err := s.scanBoards(ctx, "RowKey eq "+quote(boardID), nil, func(b domain.Board) bool {
		found = &b
		return false
	})
	return found, err
}

func (s *Storage) ListBoardIDs(ctx context.Context, ownerID string) ([]string, error) {
	sel := "PartitionKey,RowKey"
	ids := []string{}
	err := s.scanBoards(ctx, "PartitionKey eq "+quote(ownerID), &sel, func(b domain.Board) bool {
		ids = append(ids, b.ID)
		return true
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Storage) ListBoards(ctx context.Context, ownerID string, q domain.Query) (domain.Page[domain.Board], error) {
	boards := []domain.Board{}
	err := s.scanBoards(ctx, "PartitionKey eq "+quote(ownerID), nil, func(b domain.Board) bool {
		boards = append(boards, b)
		return true
	})
	if err != nil {
		return domain.Page[domain.Board]{}, err
	}
	return domain.PaginateBoards(boards, q)
}

func (s *Storage) UpdateBoard(ctx context.Context, b domain.Board) error {
	payload, err := json.Marshal(toBoardEntity(b))
	if err != nil {
		return err
	}
	_, err = s.boardTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    ifMatch(b.ETag),
		UpdateMode: aztables.UpdateModeReplace,
	})
	return mapWriteErr(err, "board", b.ID)
}

func (s *Storage) DeleteBoard(ctx context.Context, ownerID, boardID string) error {
	_, err := s.boardTable.DeleteEntity(ctx, ownerID, boardID, nil)
	if err != nil && !isStatus(err, 404) {
		return err
	}
	return nil
}

func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	payload, err := json.Marshal(toTaskEntity(t))
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, payload, nil)
	return err
}

func (s *Storage) GetTask(ctx context.Context, boardID, taskID string) (*domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, boardID, taskID, nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, nil
		}
		return nil, err
	}
	t, err := decodeTask(resp.Value, string(resp.ETag))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTaskByID finds a task without knowing its board.
func (s *Storage) GetTaskByID(ctx context.Context, taskID string) (*domain.Task, error) {
	var found *domain.Task
	err := s.scanTasks(ctx, "RowKey eq "+quote(taskID), nil, func(t domain.Task) bool {
		found = &t
		return false
	})
	return found, err
}

// ListTasks returns one page of the tasks that belong to any of boardIDs.
func (s *Storage) ListTasks(ctx context.Context, boardIDs []string, q domain.Query) (domain.Page[domain.Task], error) {
	tasks := []domain.Task{}
	for _, filter := range partitionFilters(boardIDs) {
		err := s.scanTasks(ctx, filter, nil, func(t domain.Task) bool {
			tasks = append(tasks, t)
			return true
		})
		if err != nil {
			return domain.Page[domain.Task]{}, err
		}
	}
	return domain.PaginateTasks(tasks, q)
}

// UpdateTask replaces the stored task if its ETag still matches.
func (s *Storage) UpdateTask(ctx context.Context, t domain.Task) error {
	payload, err := json.Marshal(toTaskEntity(t))
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    ifMatch(t.ETag),
		UpdateMode: aztables.UpdateModeReplace,
	})
	return mapWriteErr(err, "task", t.ID)
}

func (s *Storage) DeleteTask(ctx context.Context, boardID, taskID string) error {
	_, err := s.taskTable.DeleteEntity(ctx, boardID, taskID, nil)
	if err != nil && !isStatus(err, 404) {
		return err
	}
	return nil
}

// DeleteTasksForBoard removes every task in the board partition using
// batched transactions and reports how many were removed.
func (s *Storage) DeleteTasksForBoard(ctx context.Context, boardID string) (int, error) {
	sel := "PartitionKey,RowKey"
	var actions []aztables.TransactionAction
	err := s.scanTasks(ctx, "PartitionKey eq "+quote(boardID), &sel, func(t domain.Task) bool {
		key, err := json.Marshal(entity{PartitionKey: t.BoardID, RowKey: t.ID})
		if err == nil {
			actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeDelete, Entity: key})
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	deleted := 0
	for start := 0; start < len(actions); start += maxBatchSize {
		end := min(start+maxBatchSize, len(actions))
		if _, err := s.taskTable.SubmitTransaction(ctx, actions[start:end], nil); err != nil {
			return deleted, fmt.Errorf("delete tasks of board %s: %w", boardID, err)
		}
		deleted += end - start
	}
	return deleted, nil
}

func (s *Storage) scanBoards(ctx context.Context, filter string, sel *string, fn func(domain.Board) bool) error {
	pager := s.boardTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Select: sel})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range resp.Entities {
			b, err := decodeBoard(raw, "")
			if err != nil {
				return err
			}
			if !fn(b) {
				return nil
			}
		}
	}
	return nil
}

func (s *Storage) scanTasks(ctx context.Context, filter string, sel *string, fn func(domain.Task) bool) error {
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Select: sel})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range resp.Entities {
			t, err := decodeTask(raw, "")
			if err != nil {
				return err
			}
			if !fn(t) {
				return nil
			}
		}
	}
	return nil
}

func decodeBoard(data []byte, etag string) (domain.Board, error) {
	var ent boardEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Board{}, err
	}
	if etag != "" {
		ent.ETag = etag
	}
	return ent.toDomain(), nil
}

func decodeTask(data []byte, etag string) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	if etag != "" {
		ent.ETag = etag
	}
	return ent.toDomain(), nil
}

// partitionFilters ORs PartitionKey comparisons in chunks the service accepts.
func partitionFilters(ids []string) []string {
	var filters []string
	for start := 0; start < len(ids); start += maxFilterComparisons {
		end := min(start+maxFilterComparisons, len(ids))
		parts := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			parts = append(parts, "PartitionKey eq "+quote(id))
		}
		filters = append(filters, strings.Join(parts, " or "))
	}
	return filters
}

// quote renders s as an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func ifMatch(etag string) *azcore.ETag {
	et := azcore.ETagAny
	if etag != "" {
		et = azcore.ETag(etag)
	}
	return &et
}

func mapWriteErr(err error, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case isStatus(err, 412):
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrConcurrencyConflict)
	case isStatus(err, 404):
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return err
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
