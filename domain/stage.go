package domain

import "strings"

// Stage is the kanban column a task sits in.
type Stage string

const (
	StageTodo  Stage = "todo"
	StageDoing Stage = "doing"
	StageDone  Stage = "done"
)

// ParseStage validates raw input. An empty value is rejected; callers that
// want a default apply it before parsing.
func ParseStage(raw string) (Stage, error) {
	switch s := Stage(strings.ToLower(strings.TrimSpace(raw))); s {
	case StageTodo, StageDoing, StageDone:
		return s, nil
	default:
		return "", validation("stage must be one of todo, doing, done")
	}
}
