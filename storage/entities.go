package storage

import (
	"time"

	"github.com/lnbits/scrum/domain"
)

const edmInt64 = "Edm.Int64"

// entity carries the table keys. Writes never send odata.etag.
type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	ETag         string `json:"odata.etag,omitempty"`
}

type boardEntity struct {
	entity
	Name            string `json:"Name"`
	Description     string `json:"Description"`
	PublicAssigning bool   `json:"PublicAssigning"`
	Wallet          string `json:"Wallet"`
	CreatedAt       int64  `json:"CreatedAt,string"`
	CreatedAtType   string `json:"CreatedAt@odata.type"`
	UpdatedAt       int64  `json:"UpdatedAt,string"`
	UpdatedAtType   string `json:"UpdatedAt@odata.type"`
}

type taskEntity struct {
	entity
	Task          string  `json:"Task"`
	Notes         string  `json:"Notes"`
	Stage         string  `json:"Stage"`
	Assignee      *string `json:"Assignee,omitempty"`
	Reward        *int64  `json:"Reward,omitempty,string"`
	RewardType    *string `json:"Reward@odata.type,omitempty"`
	Paid          bool    `json:"Paid"`
	Complete      bool    `json:"Complete"`
	CreatedAt     int64   `json:"CreatedAt,string"`
	CreatedAtType string  `json:"CreatedAt@odata.type"`
	UpdatedAt     int64   `json:"UpdatedAt,string"`
	UpdatedAtType string  `json:"UpdatedAt@odata.type"`
}

func toBoardEntity(b domain.Board) boardEntity {
	return boardEntity{
		entity:          entity{PartitionKey: b.OwnerID, RowKey: b.ID},
		Name:            b.Name,
		Description:     b.Description,
		PublicAssigning: b.PublicAssigning,
		Wallet:          b.Wallet,
		CreatedAt:       b.CreatedAt.UnixNano(),
		CreatedAtType:   edmInt64,
		UpdatedAt:       b.UpdatedAt.UnixNano(),
		UpdatedAtType:   edmInt64,
	}
}

func (e boardEntity) toDomain() domain.Board {
	return domain.Board{
		ID:              e.RowKey,
		OwnerID:         e.PartitionKey,
		Name:            e.Name,
		Description:     e.Description,
		PublicAssigning: e.PublicAssigning,
		Wallet:          e.Wallet,
		CreatedAt:       fromUnixNano(e.CreatedAt),
		UpdatedAt:       fromUnixNano(e.UpdatedAt),
		ETag:            e.ETag,
	}
}

func toTaskEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		entity:        entity{PartitionKey: t.BoardID, RowKey: t.ID},
		Task:          t.Task,
		Notes:         t.Notes,
		Stage:         string(t.Stage),
		Assignee:      t.Assignee,
		Paid:          t.Paid,
		Complete:      t.Complete,
		CreatedAt:     t.CreatedAt.UnixNano(),
		CreatedAtType: edmInt64,
		UpdatedAt:     t.UpdatedAt.UnixNano(),
		UpdatedAtType: edmInt64,
	}
	if t.Reward != nil {
		r, typ := *t.Reward, edmInt64
		ent.Reward = &r
		ent.RewardType = &typ
	}
	return ent
}

func (e taskEntity) toDomain() domain.Task {
	return domain.Task{
		ID:        e.RowKey,
		BoardID:   e.PartitionKey,
		Task:      e.Task,
		Notes:     e.Notes,
		Stage:     domain.Stage(e.Stage),
		Assignee:  e.Assignee,
		Reward:    e.Reward,
		Paid:      e.Paid,
		Complete:  e.Complete,
		CreatedAt: fromUnixNano(e.CreatedAt),
		UpdatedAt: fromUnixNano(e.UpdatedAt),
		ETag:      e.ETag,
	}
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
