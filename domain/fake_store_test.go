package domain

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

type fakeStore struct {
	mu      sync.Mutex
	boards  map[string]Board
	tasks   map[string]Task
	version int

	listTaskCalls   int
	updateTaskCalls int
	// conflicts makes the next N UpdateTask calls fail with ErrConcurrencyConflict.
	conflicts int

	updateBoardCalls int
	// beforeBoardUpdate runs under the store lock ahead of each UpdateBoard.
	beforeBoardUpdate func(f *fakeStore)
}

func newFakeStore() *fakeStore {
	return &fakeStore{boards: map[string]Board{}, tasks: map[string]Task{}}
}

func (f *fakeStore) nextETag() string {
	f.version++
	return strconv.Itoa(f.version)
}

func (f *fakeStore) InsertBoard(ctx context.Context, b Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ETag = f.nextETag()
	f.boards[b.ID] = b
	return nil
}

func (f *fakeStore) GetBoard(ctx context.Context, ownerID, boardID string) (*Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[boardID]
	if !ok || b.OwnerID != ownerID {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) GetBoardByID(ctx context.Context, boardID string) (*Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[boardID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) ListBoardIDs(ctx context.Context, ownerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, b := range f.boards {
		if b.OwnerID == ownerID {
			ids = append(ids, b.ID)
		}
	}
	return ids, nil
}

func (f *fakeStore) ListBoards(ctx context.Context, ownerID string, q Query) (Page[Board], error) {
	f.mu.Lock()
	var boards []Board
	for _, b := range f.boards {
		if ownerID == "" || b.OwnerID == ownerID {
			boards = append(boards, b)
		}
	}
	f.mu.Unlock()
	return PaginateBoards(boards, q)
}

func (f *fakeStore) UpdateBoard(ctx context.Context, b Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateBoardCalls++
	if f.beforeBoardUpdate != nil {
		f.beforeBoardUpdate(f)
	}
	cur, ok := f.boards[b.ID]
	if !ok {
		return ErrNotFound
	}
	if b.ETag != "" && cur.ETag != b.ETag {
		return ErrConcurrencyConflict
	}
	b.ETag = f.nextETag()
	f.boards[b.ID] = b
	return nil
}

func (f *fakeStore) DeleteBoard(ctx context.Context, ownerID, boardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.boards[boardID]; ok && b.OwnerID == ownerID {
		delete(f.boards, boardID)
	}
	return nil
}

func (f *fakeStore) InsertTask(ctx context.Context, t Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ETag = f.nextETag()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, boardID, taskID string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || t.BoardID != boardID {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) GetTaskByID(ctx context.Context, taskID string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) ListTasks(ctx context.Context, boardIDs []string, q Query) (Page[Task], error) {
	f.mu.Lock()
	f.listTaskCalls++
	scope := map[string]bool{}
	for _, id := range boardIDs {
		scope[id] = true
	}
	var tasks []Task
	for _, t := range f.tasks {
		if scope[t.BoardID] {
			tasks = append(tasks, t)
		}
	}
	f.mu.Unlock()
	return PaginateTasks(tasks, q)
}

func (f *fakeStore) UpdateTask(ctx context.Context, t Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateTaskCalls++
	if f.conflicts > 0 {
		f.conflicts--
		return ErrConcurrencyConflict
	}
	cur, ok := f.tasks[t.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.ETag != t.ETag {
		return ErrConcurrencyConflict
	}
	t.ETag = f.nextETag()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, boardID, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[taskID]; ok && t.BoardID == boardID {
		delete(f.tasks, taskID)
	}
	return nil
}

func (f *fakeStore) DeleteTasksForBoard(ctx context.Context, boardID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, t := range f.tasks {
		if t.BoardID == boardID {
			delete(f.tasks, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) task(id string) Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id]
}

type fakeResolver struct {
	calls   atomic.Int32
	err     error
	invoice string
	block   chan struct{}
}

func (r *fakeResolver) Resolve(ctx context.Context, assignee string, amountSats int64) (string, error) {
	r.calls.Add(1)
	if r.block != nil {
		<-r.block
	}
	if r.err != nil {
		return "", r.err
	}
	if r.invoice == "" {
		return "lnbc500n1fake", nil
	}
	return r.invoice, nil
}

type fakePayer struct {
	calls atomic.Int32
	err   error

	mu   sync.Mutex
	last PaymentRequest
}

func (p *fakePayer) Pay(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.last = req
	p.mu.Unlock()
	if p.err != nil {
		return PaymentResult{}, p.err
	}
	return PaymentResult{PaymentHash: "hash-" + req.Extra["task_id"]}, nil
}
