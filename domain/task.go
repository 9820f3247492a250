package domain

import (
	"strings"
	"time"
)

// Task is a unit of work on a board, optionally carrying a sat reward for its assignee.
type Task struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"board_id"`
	Task      string    `json:"task"`
	Notes     string    `json:"notes"`
	Stage     Stage     `json:"stage"`
	Assignee  *string   `json:"assignee"`
	Reward    *int64    `json:"reward"`
	Paid      bool      `json:"paid"`
	Complete  bool      `json:"complete"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ETag string `json:"-"`
}

// RewardSats returns the configured reward, 0 when none is set.
func (t Task) RewardSats() int64 {
	if t.Reward == nil {
		return 0
	}
	return *t.Reward
}

// CreateTask carries the fields accepted when creating a task.
type CreateTask struct {
	BoardID  string  `json:"board_id"`
	Task     string  `json:"task"`
	Notes    string  `json:"notes"`
	Stage    string  `json:"stage"`
	Assignee *string `json:"assignee"`
	Reward   *int64  `json:"reward"`
	Complete bool    `json:"complete"`
}

// TaskUpdate is a partial task update. Nil fields are left unchanged; an empty
// assignee clears it.
type TaskUpdate struct {
	Task     *string `json:"task"`
	Notes    *string `json:"notes"`
	Stage    *string `json:"stage"`
	Assignee *string `json:"assignee"`
	Reward   *int64  `json:"reward"`
	Complete *bool   `json:"complete"`
}

// PublicTaskUpdate is the field set open to unauthenticated share-link holders.
type PublicTaskUpdate struct {
	Assignee *string `json:"assignee"`
	Stage    *string `json:"stage"`
	Notes    *string `json:"notes"`
}

func (p PublicTaskUpdate) toTaskUpdate() TaskUpdate {
	return TaskUpdate{Assignee: p.Assignee, Stage: p.Stage, Notes: p.Notes}
}

// completes reports whether applying u to t starts the completion workflow.
func (u TaskUpdate) completes(t Task) bool {
	return u.Complete != nil && *u.Complete && !t.Complete
}

func (u TaskUpdate) validate() error {
	if u.Task != nil && strings.TrimSpace(*u.Task) == "" {
		return validation("task cannot be empty")
	}
	if u.Stage != nil {
		if _, err := ParseStage(*u.Stage); err != nil {
			return err
		}
	}
	if u.Reward != nil && *u.Reward < 0 {
		return validation("reward cannot be negative")
	}
	return nil
}

// apply merges u into t. Paid is never touched here.
func (u TaskUpdate) apply(t *Task) {
	if u.Task != nil {
		t.Task = *u.Task
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
	if u.Stage != nil {
		t.Stage, _ = ParseStage(*u.Stage)
	}
	if u.Assignee != nil {
		t.Assignee = normalizeAssignee(*u.Assignee)
	}
	if u.Reward != nil {
		r := *u.Reward
		t.Reward = &r
	}
	if u.Complete != nil {
		t.Complete = *u.Complete
	}
}

func (c CreateTask) build(now time.Time) (Task, error) {
	if strings.TrimSpace(c.BoardID) == "" {
		return Task{}, validation("board_id is required")
	}
	if strings.TrimSpace(c.Task) == "" {
		return Task{}, validation("task is required")
	}
	stage := StageTodo
	if strings.TrimSpace(c.Stage) != "" {
		s, err := ParseStage(c.Stage)
		if err != nil {
			return Task{}, err
		}
		stage = s
	}
	if c.Reward != nil && *c.Reward < 0 {
		return Task{}, validation("reward cannot be negative")
	}
	if c.Complete && c.Reward != nil && *c.Reward > 0 {
		return Task{}, validation("a rewarded task must be created incomplete; complete it to pay the reward")
	}
	t := Task{
		ID:        NewID(),
		BoardID:   c.BoardID,
		Task:      c.Task,
		Notes:     c.Notes,
		Stage:     stage,
		Reward:    c.Reward,
		Complete:  c.Complete,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if c.Assignee != nil {
		t.Assignee = normalizeAssignee(*c.Assignee)
	}
	return t, nil
}

func normalizeAssignee(raw string) *string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	return &v
}
