package domain

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Board is a task workspace owned by a single wallet user.
type Board struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"user_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	PublicAssigning bool      `json:"public_assigning"`
	Wallet          string    `json:"wallet"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	ETag string `json:"-"`
}

// CreateBoard carries the fields accepted when creating a board.
type CreateBoard struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	PublicAssigning bool   `json:"public_assigning"`
	Wallet          string `json:"wallet"`
}

// BoardUpdate carries a partial board update; nil fields are left unchanged.
type BoardUpdate struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	PublicAssigning *bool   `json:"public_assigning"`
	Wallet          *string `json:"wallet"`
}

// PublicBoard is the view of a board served to holders of its share link.
type PublicBoard struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	PublicAssigning bool   `json:"public_assigning"`
	Tasks           []Task `json:"tasks"`
}

func (c CreateBoard) validate() error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return validation("name is required")
	case strings.TrimSpace(c.Description) == "":
		return validation("description is required")
	case strings.TrimSpace(c.Wallet) == "":
		return validation("wallet is required")
	}
	return nil
}

func (u BoardUpdate) apply(b *Board) error {
	if u.Name != nil {
		if strings.TrimSpace(*u.Name) == "" {
			return validation("name cannot be empty")
		}
		b.Name = *u.Name
	}
	if u.Description != nil {
		if strings.TrimSpace(*u.Description) == "" {
			return validation("description cannot be empty")
		}
		b.Description = *u.Description
	}
	if u.PublicAssigning != nil {
		b.PublicAssigning = *u.PublicAssigning
	}
	if u.Wallet != nil {
		if strings.TrimSpace(*u.Wallet) == "" {
			return validation("wallet cannot be empty")
		}
		b.Wallet = *u.Wallet
	}
	return nil
}

// NewID returns a fresh URL-safe short identifier.
func NewID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}
