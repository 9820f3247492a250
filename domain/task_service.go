package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultUpdateRetries = 3
	defaultLockWait      = 30 * time.Second
)

// UpdateResult reports the updated task and whether a reward went out with it.
type UpdateResult struct {
	Task            Task
	PayoutAttempted bool
	PaidOut         bool
	PaymentHash     string
}

// TaskService owns task CRUD and the reward payout that runs when a task is completed.
type TaskService struct {
	boards   BoardStore
	tasks    TaskStore
	resolver InvoiceResolver
	payer    Payer
	locker   Locker
	logger   *log.Logger

	now      func() time.Time
	retries  int
	lockWait time.Duration
}

func NewTaskService(boards BoardStore, tasks TaskStore, resolver InvoiceResolver, payer Payer, locker Locker, logger *log.Logger) *TaskService {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TaskService{
		boards:   boards,
		tasks:    tasks,
		resolver: resolver,
		payer:    payer,
		locker:   locker,
		logger:   logger,
		now:      utcNow,
		retries:  defaultUpdateRetries,
		lockWait: defaultLockWait,
	}
}

func (s *TaskService) Create(ctx context.Context, ownerID string, data CreateTask) (Task, error) {
	t, err := data.build(s.now())
	if err != nil {
		return Task{}, err
	}
	board, err := s.boards.GetBoard(ctx, ownerID, data.BoardID)
	if err != nil {
		return Task{}, err
	}
	if board == nil {
		return Task{}, notFound("Board not found.")
	}
	if err := checkRewardWallet(*board, t); err != nil {
		return Task{}, err
	}
	if err := s.tasks.InsertTask(ctx, t); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *TaskService) Get(ctx context.Context, ownerID, taskID string) (Task, error) {
	t, _, err := s.loadOwned(ctx, ownerID, taskID)
	return t, err
}

// List returns tasks on the caller's boards, or on boardID alone when given.
func (s *TaskService) List(ctx context.Context, ownerID, boardID string, q Query) (Page[Task], error) {
	ids, err := s.boards.ListBoardIDs(ctx, ownerID)
	if err != nil {
		return Page[Task]{}, err
	}
	if boardID != "" {
		owned := false
		for _, id := range ids {
			if id == boardID {
				owned = true
				break
			}
		}
		if !owned {
			return Page[Task]{}, forbidden("Not your board.")
		}
		ids = []string{boardID}
	}
	if len(ids) == 0 {
		return Page[Task]{Data: []Task{}, Total: 0}, nil
	}
	return s.tasks.ListTasks(ctx, ids, q)
}

func (s *TaskService) Delete(ctx context.Context, ownerID, taskID string) error {
	t, board, err := s.loadOwned(ctx, ownerID, taskID)
	if err != nil {
		return err
	}
	return s.tasks.DeleteTask(ctx, board.ID, t.ID)
}

// UpdateTask applies an owner's update. Setting complete on an incomplete task
// pays the reward first; if the payout fails nothing is written.
func (s *TaskService) UpdateTask(ctx context.Context, ownerID, taskID string, upd TaskUpdate) (UpdateResult, error) {
	if err := upd.validate(); err != nil {
		return UpdateResult{}, err
	}
	t, board, err := s.loadOwned(ctx, ownerID, taskID)
	if err != nil {
		return UpdateResult{}, err
	}
	return s.update(ctx, board, t, upd, nil)
}

// UpdateTaskPublic applies an update arriving through a board's share link.
func (s *TaskService) UpdateTaskPublic(ctx context.Context, taskID string, pub PublicTaskUpdate) (UpdateResult, error) {
	upd := pub.toTaskUpdate()
	if err := upd.validate(); err != nil {
		return UpdateResult{}, err
	}
	t, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		return UpdateResult{}, err
	}
	if t == nil {
		return UpdateResult{}, notFound("Task not found.")
	}
	board, err := s.boards.GetBoardByID(ctx, t.BoardID)
	if err != nil {
		return UpdateResult{}, err
	}
	if board == nil {
		return UpdateResult{}, notFound("Board not found.")
	}
	check := func(cur Task) error { return CheckPublicAssign(*board, cur, pub.Assignee) }
	return s.update(ctx, *board, *t, upd, check)
}

// CheckPublicAssign rejects an assignee change from a share-link caller unless
// the board allows public assigning. Resubmitting the current value is allowed.
func CheckPublicAssign(board Board, current Task, requested *string) error {
	if board.PublicAssigning || requested == nil {
		return nil
	}
	if deref(normalizeAssignee(*requested)) == deref(current.Assignee) {
		return nil
	}
	return forbidden("You cant edit the assignee.")
}

func (s *TaskService) loadOwned(ctx context.Context, ownerID, taskID string) (Task, Board, error) {
	t, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		return Task{}, Board{}, err
	}
	if t == nil {
		return Task{}, Board{}, notFound("Task not found.")
	}
	board, err := s.boards.GetBoard(ctx, ownerID, t.BoardID)
	if err != nil {
		return Task{}, Board{}, err
	}
	if board == nil {
		return Task{}, Board{}, notFound("Board deleted for this task.")
	}
	return *t, *board, nil
}

func (s *TaskService) update(ctx context.Context, board Board, cur Task, upd TaskUpdate, check func(Task) error) (UpdateResult, error) {
	for attempt := 0; ; attempt++ {
		if upd.completes(cur) {
			return s.complete(ctx, board, cur.ID, upd, check)
		}
		t, err := s.persist(ctx, board, cur, upd, check)
		if err == nil {
			return UpdateResult{Task: t}, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) || attempt >= s.retries {
			return UpdateResult{}, err
		}
		s.logger.WithFields(log.Fields{"task": cur.ID, "attempt": attempt + 1}).Debug("task changed during update, retrying")
		if cur, err = s.reload(ctx, board.ID, cur.ID); err != nil {
			return UpdateResult{}, err
		}
	}
}

func (s *TaskService) persist(ctx context.Context, board Board, cur Task, upd TaskUpdate, check func(Task) error) (Task, error) {
	if check != nil {
		if err := check(cur); err != nil {
			return Task{}, err
		}
	}
	next := cur
	upd.apply(&next)
	if err := checkRewardWallet(board, next); err != nil {
		return Task{}, err
	}
	next.UpdatedAt = s.now()
	if err := s.tasks.UpdateTask(ctx, next); err != nil {
		return Task{}, err
	}
	return next, nil
}

// complete runs the read-guard-pay-write sequence under the per-task lock so
// concurrent completions of the same task pay at most once.
func (s *TaskService) complete(ctx context.Context, board Board, taskID string, upd TaskUpdate, check func(Task) error) (UpdateResult, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	unlock, err := s.locker.Lock(lockCtx, taskLockKey(taskID))
	cancel()
	if err != nil {
		return UpdateResult{}, &Error{Kind: ErrConcurrencyConflict, Message: "Task is being updated, try again.", Err: err}
	}
	defer unlock()

	cur, err := s.reload(ctx, board.ID, taskID)
	if err != nil {
		return UpdateResult{}, err
	}

	var res UpdateResult
	for attempt := 0; ; attempt++ {
		if check != nil {
			if err := check(cur); err != nil {
				s.logUnsettled(res, board.ID, taskID, err)
				return res, err
			}
		}
		next := cur
		upd.apply(&next)
		if err := checkRewardWallet(board, next); err != nil {
			s.logUnsettled(res, board.ID, taskID, err)
			return res, err
		}
		if !res.PaidOut && upd.completes(cur) && payable(next) {
			res.PayoutAttempted = true
			payment, err := s.payout(ctx, board, next)
			if err != nil {
				return res, err
			}
			res.PaidOut = true
			res.PaymentHash = payment.PaymentHash
		}
		if res.PaidOut {
			next.Paid = true
			next.Complete = true
		}
		next.UpdatedAt = s.now()

		err := s.tasks.UpdateTask(ctx, next)
		if err == nil {
			res.Task = next
			return res, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) || attempt >= s.retries {
			s.logUnsettled(res, board.ID, taskID, err)
			return res, err
		}
		if cur, err = s.reload(ctx, board.ID, taskID); err != nil {
			s.logUnsettled(res, board.ID, taskID, err)
			return res, err
		}
	}
}

func (s *TaskService) payout(ctx context.Context, board Board, t Task) (PaymentResult, error) {
	amount := t.RewardSats()
	fields := log.Fields{"task": t.ID, "board": board.ID, "amount_sat": amount}

	invoice, err := s.resolver.Resolve(ctx, *t.Assignee, amount)
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Warn("assignee could not be resolved to an invoice")
		return PaymentResult{}, &Error{Kind: ErrPayoutResolution, Message: "Could not get an invoice from the assignee's lightning address.", Err: err}
	}

	res, err := s.payer.Pay(ctx, PaymentRequest{
		WalletID:    board.Wallet,
		Invoice:     invoice,
		MaxSat:      amount,
		Description: "Scrum task reward: " + t.Task,
		Extra: map[string]string{
			"tag":      PaymentTag,
			"task_id":  t.ID,
			"board_id": board.ID,
		},
	})
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Warn("reward payment failed")
		return PaymentResult{}, &Error{Kind: ErrPaymentExecution, Message: "Paying the task reward failed.", Err: err}
	}
	s.logger.WithFields(fields).WithField("payment_hash", res.PaymentHash).Info("task reward paid")
	return res, nil
}

// logUnsettled records a payout that went out but could not be persisted so
// it can be reconciled by hand.
func (s *TaskService) logUnsettled(res UpdateResult, boardID, taskID string, err error) {
	if !res.PaidOut {
		return
	}
	s.logger.WithFields(log.Fields{
		"task":         taskID,
		"board":        boardID,
		"payment_hash": res.PaymentHash,
	}).WithError(err).Error("reward paid but task was not marked paid")
}

func (s *TaskService) reload(ctx context.Context, boardID, taskID string) (Task, error) {
	t, err := s.tasks.GetTask(ctx, boardID, taskID)
	if err != nil {
		return Task{}, fmt.Errorf("reload task %s: %w", taskID, err)
	}
	if t == nil {
		return Task{}, notFound("Task not found.")
	}
	return *t, nil
}

func payable(t Task) bool {
	return t.RewardSats() > 0 && !t.Paid && t.Assignee != nil
}

func checkRewardWallet(board Board, t Task) error {
	if t.RewardSats() > 0 && board.Wallet == "" {
		return validation("board has no wallet to fund task rewards")
	}
	return nil
}

func taskLockKey(taskID string) string {
	return "task:" + taskID
}
