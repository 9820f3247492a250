package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCreateBoardValidation(t *testing.T) {
	svc := NewBoardService(newFakeStore(), newFakeStore(), nil)
	tests := map[string]CreateBoard{
		"no name":        {Description: "d", Wallet: "w"},
		"no description": {Name: "n", Wallet: "w"},
		"no wallet":      {Name: "n", Description: "d"},
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), "owner", data); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateAndUpdateBoard(t *testing.T) {
	store := newFakeStore()
	svc := NewBoardService(store, store, nil)
	ctx := context.Background()

	b, err := svc.Create(ctx, "owner", CreateBoard{Name: "Sprint 1", Description: "first", Wallet: "w1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(b.ID) != 22 || b.OwnerID != "owner" || b.CreatedAt.IsZero() {
		t.Fatalf("unexpected board: %#v", b)
	}

	updated, err := svc.Update(ctx, "owner", b.ID, BoardUpdate{PublicAssigning: ptrBool(true), Name: ptrString("Sprint 2")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.PublicAssigning || updated.Name != "Sprint 2" || updated.Description != "first" {
		t.Fatalf("unexpected update: %#v", updated)
	}
	if _, err := svc.Update(ctx, "intruder", b.ID, BoardUpdate{Name: ptrString("mine")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Update(ctx, "owner", b.ID, BoardUpdate{Wallet: ptrString("")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error clearing wallet, got %v", err)
	}
}

func TestUpdateBoardReappliesAfterConcurrentEdit(t *testing.T) {
	store := newFakeStore()
	svc := NewBoardService(store, store, nil)
	ctx := context.Background()
	b, _ := svc.Create(ctx, "owner", CreateBoard{Name: "Sprint", Description: "first", Wallet: "w1"})

	store.beforeBoardUpdate = func(f *fakeStore) {
		f.beforeBoardUpdate = nil
		other := f.boards[b.ID]
		other.Description = "edited elsewhere"
		other.ETag = f.nextETag()
		f.boards[b.ID] = other
	}
	updated, err := svc.Update(ctx, "owner", b.ID, BoardUpdate{PublicAssigning: ptrBool(true)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.PublicAssigning || updated.Description != "edited elsewhere" {
		t.Fatalf("expected both edits to survive, got %#v", updated)
	}
	if store.updateBoardCalls != 2 {
		t.Fatalf("expected 2 writes, got %d", store.updateBoardCalls)
	}
	stored, _ := store.GetBoardByID(ctx, b.ID)
	if !stored.PublicAssigning || stored.Description != "edited elsewhere" {
		t.Fatalf("unexpected stored board: %#v", stored)
	}
}

func TestUpdateBoardGivesUpAfterRetries(t *testing.T) {
	store := newFakeStore()
	svc := NewBoardService(store, store, nil)
	ctx := context.Background()
	b, _ := svc.Create(ctx, "owner", CreateBoard{Name: "Sprint", Description: "first", Wallet: "w1"})

	store.beforeBoardUpdate = func(f *fakeStore) {
		other := f.boards[b.ID]
		other.ETag = f.nextETag()
		f.boards[b.ID] = other
	}
	if _, err := svc.Update(ctx, "owner", b.ID, BoardUpdate{Name: ptrString("x")}); !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if store.updateBoardCalls != defaultUpdateRetries+1 {
		t.Fatalf("expected %d writes, got %d", defaultUpdateRetries+1, store.updateBoardCalls)
	}
}

func TestListBoardsSecondPage(t *testing.T) {
	store := newFakeStore()
	svc := NewBoardService(store, store, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 15; i++ {
		_ = store.InsertBoard(context.Background(), Board{
			ID:        fmt.Sprintf("board-%02d", i),
			OwnerID:   "owner",
			Name:      fmt.Sprintf("Board %02d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	_ = store.InsertBoard(context.Background(), Board{ID: "other", OwnerID: "someone-else", CreatedAt: base})

	page, err := svc.List(context.Background(), "owner", Query{Limit: 10, Offset: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 15 {
		t.Fatalf("expected total 15, got %d", page.Total)
	}
	if len(page.Data) != 5 {
		t.Fatalf("expected 5 boards, got %d", len(page.Data))
	}
	for i, b := range page.Data {
		if want := fmt.Sprintf("board-%02d", i+11); b.ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, b.ID)
		}
	}
}

func TestDeleteForeignBoardLeavesItIntact(t *testing.T) {
	store := newFakeStore()
	svc := NewBoardService(store, store, nil)
	ctx := context.Background()
	b, _ := svc.Create(ctx, "owner", CreateBoard{Name: "n", Description: "d", Wallet: "w"})

	if err := svc.Delete(ctx, "intruder", b.ID, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got, _ := store.GetBoardByID(ctx, b.ID); got == nil {
		t.Fatalf("board must survive a foreign delete")
	}
}

func TestDeleteBoardClearTasks(t *testing.T) {
	store := newFakeStore()
	svc := NewBoardService(store, store, nil)
	ctx := context.Background()
	keep, _ := svc.Create(ctx, "owner", CreateBoard{Name: "keep", Description: "d", Wallet: "w"})
	wipe, _ := svc.Create(ctx, "owner", CreateBoard{Name: "wipe", Description: "d", Wallet: "w"})
	_ = store.InsertTask(ctx, Task{ID: "orphan", BoardID: keep.ID, Task: "t", Stage: StageTodo})
	_ = store.InsertTask(ctx, Task{ID: "gone", BoardID: wipe.ID, Task: "t", Stage: StageTodo})

	if err := svc.Delete(ctx, "owner", keep.ID, false); err != nil {
		t.Fatalf("delete keep: %v", err)
	}
	if err := svc.Delete(ctx, "owner", wipe.ID, true); err != nil {
		t.Fatalf("delete wipe: %v", err)
	}
	if t1, _ := store.GetTaskByID(ctx, "orphan"); t1 == nil {
		t.Fatalf("tasks survive a delete without clear_tasks")
	}
	if t2, _ := store.GetTaskByID(ctx, "gone"); t2 != nil {
		t.Fatalf("tasks should be removed with clear_tasks")
	}
}

func TestPublicView(t *testing.T) {
	store := newFakeStore()
	svc := NewBoardService(store, store, nil)
	ctx := context.Background()
	b, _ := svc.Create(ctx, "owner", CreateBoard{Name: "n", Description: "d", Wallet: "secret-wallet"})
	_ = store.InsertTask(ctx, Task{ID: "t1", BoardID: b.ID, Task: "t", Stage: StageTodo})

	view, err := svc.PublicView(ctx, b.ID)
	if err != nil {
		t.Fatalf("public view: %v", err)
	}
	if view.Name != "n" || len(view.Tasks) != 1 {
		t.Fatalf("unexpected view: %#v", view)
	}
	if _, err := svc.PublicView(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
