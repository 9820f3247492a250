package domain

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// BoardService handles owner-scoped board operations.
type BoardService struct {
	boards  BoardStore
	tasks   TaskStore
	logger  *log.Logger
	retries int
	now     func() time.Time
}

func NewBoardService(boards BoardStore, tasks TaskStore, logger *log.Logger) *BoardService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &BoardService{boards: boards, tasks: tasks, logger: logger, retries: defaultUpdateRetries, now: utcNow}
}

func (s *BoardService) Create(ctx context.Context, ownerID string, data CreateBoard) (Board, error) {
	if err := data.validate(); err != nil {
		return Board{}, err
	}
	now := s.now()
	b := Board{
		ID:              NewID(),
		OwnerID:         ownerID,
		Name:            data.Name,
		Description:     data.Description,
		PublicAssigning: data.PublicAssigning,
		Wallet:          data.Wallet,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.boards.InsertBoard(ctx, b); err != nil {
		return Board{}, err
	}
	return b, nil
}

func (s *BoardService) Get(ctx context.Context, ownerID, boardID string) (Board, error) {
	b, err := s.boards.GetBoard(ctx, ownerID, boardID)
	if err != nil {
		return Board{}, err
	}
	if b == nil {
		return Board{}, notFound("Board not found.")
	}
	return *b, nil
}

func (s *BoardService) List(ctx context.Context, ownerID string, q Query) (Page[Board], error) {
	return s.boards.ListBoards(ctx, ownerID, q)
}

// Update applies upd to a board the caller owns. A concurrent write re-reads
// the board and re-applies upd, up to the retry limit.
func (s *BoardService) Update(ctx context.Context, ownerID, boardID string, upd BoardUpdate) (Board, error) {
	for attempt := 0; ; attempt++ {
		b, err := s.Get(ctx, ownerID, boardID)
		if err != nil {
			return Board{}, err
		}
		if err := upd.apply(&b); err != nil {
			return Board{}, err
		}
		b.UpdatedAt = s.now()
		err = s.boards.UpdateBoard(ctx, b)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) || attempt >= s.retries {
			return Board{}, err
		}
		s.logger.WithFields(log.Fields{"board": boardID, "attempt": attempt + 1}).Debug("board changed during update, retrying")
	}
}

// Delete removes a board the caller owns. Its tasks are removed only when
// clearTasks is set; otherwise they stay behind as orphans.
func (s *BoardService) Delete(ctx context.Context, ownerID, boardID string, clearTasks bool) error {
	if _, err := s.Get(ctx, ownerID, boardID); err != nil {
		return err
	}
	if err := s.boards.DeleteBoard(ctx, ownerID, boardID); err != nil {
		return err
	}
	if !clearTasks {
		return nil
	}
	n, err := s.tasks.DeleteTasksForBoard(ctx, boardID)
	if err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{"board": boardID, "tasks": n}).Debug("board tasks cleared")
	return nil
}

// PublicView returns the share-link view of a board without checking ownership.
func (s *BoardService) PublicView(ctx context.Context, boardID string) (PublicBoard, error) {
	b, err := s.boards.GetBoardByID(ctx, boardID)
	if err != nil {
		return PublicBoard{}, err
	}
	if b == nil {
		return PublicBoard{}, notFound("Board does not exist.")
	}
	page, err := s.tasks.ListTasks(ctx, []string{b.ID}, Query{})
	if err != nil {
		return PublicBoard{}, err
	}
	return PublicBoard{
		ID:              b.ID,
		Name:            b.Name,
		Description:     b.Description,
		PublicAssigning: b.PublicAssigning,
		Tasks:           page.Data,
	}, nil
}

func utcNow() time.Time { return time.Now().UTC() }
