package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/lnbits/scrum/domain"
)

func TestDecodeTaskEntity(t *testing.T) {
	data := []byte(`{
		"odata.etag":"W/\"datetime'2024-01-01T00%3A00%3A00Z'\"",
		"PartitionKey":"board-1","RowKey":"task-1",
		"Timestamp":"2024-01-01T00:00:00Z",
		"Task":"Ship it","Notes":"soon","Stage":"doing",
		"Assignee":"alice@pay.example",
		"Reward@odata.type":"Edm.Int64","Reward":"2500",
		"Paid":false,"Complete":false,
		"CreatedAt@odata.type":"Edm.Int64","CreatedAt":"1704067200000000000",
		"UpdatedAt@odata.type":"Edm.Int64","UpdatedAt":"1704067260000000000"
	}`)
	task, err := decodeTask(data, "")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ID != "task-1" || task.BoardID != "board-1" || task.Stage != domain.StageDoing {
		t.Fatalf("unexpected keys: %+v", task)
	}
	if task.Assignee == nil || *task.Assignee != "alice@pay.example" {
		t.Fatalf("unexpected assignee: %v", task.Assignee)
	}
	if task.RewardSats() != 2500 {
		t.Fatalf("expected reward 2500, got %d", task.RewardSats())
	}
	if !task.CreatedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created_at: %v", task.CreatedAt)
	}
	if !strings.HasPrefix(task.ETag, "W/") {
		t.Fatalf("expected listed etag to be kept, got %q", task.ETag)
	}

	task, err = decodeTask(data, `W/"override"`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ETag != `W/"override"` {
		t.Fatalf("expected response etag to win, got %q", task.ETag)
	}
}

func TestTaskEntityOmitsUnsetOptionalFields(t *testing.T) {
	now := time.Now().UTC()
	payload, err := json.Marshal(toTaskEntity(domain.Task{
		ID: "t1", BoardID: "b1", Task: "x", Stage: domain.StageTodo,
		CreatedAt: now, UpdatedAt: now, ETag: "etag-should-not-be-sent",
	}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"Reward", "Reward@odata.type", "Assignee", "odata.etag"} {
		if _, ok := raw[key]; ok {
			t.Fatalf("expected %s to be omitted, payload %s", key, payload)
		}
	}
	if raw["CreatedAt@odata.type"] != edmInt64 {
		t.Fatalf("expected Edm.Int64 annotation, payload %s", payload)
	}
	if raw["CreatedAt"] != fmt.Sprint(now.UnixNano()) {
		t.Fatalf("expected CreatedAt as string, payload %s", payload)
	}
}

func TestDecodeBoardEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"user-1","RowKey":"b1","Name":"Sprint","Description":"Q1",
		"PublicAssigning":true,"Wallet":"w1","CreatedAt":"0","UpdatedAt":"0"}`)
	b, err := decodeBoard(data, "etag-1")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.OwnerID != "user-1" || b.ID != "b1" || !b.PublicAssigning || b.Wallet != "w1" || b.ETag != "etag-1" {
		t.Fatalf("unexpected board: %+v", b)
	}
	if !b.CreatedAt.IsZero() {
		t.Fatalf("expected zero created_at, got %v", b.CreatedAt)
	}
}

func TestQuoteEscapesSingleQuotes(t *testing.T) {
	if got := quote("o'brien"); got != "'o''brien'" {
		t.Fatalf("quote = %s", got)
	}
}

func TestPartitionFiltersChunks(t *testing.T) {
	ids := make([]string, 31)
	for i := range ids {
		ids[i] = fmt.Sprintf("b%d", i)
	}
	filters := partitionFilters(ids)
	if len(filters) != 3 {
		t.Fatalf("expected 3 filters, got %d", len(filters))
	}
	if n := strings.Count(filters[0], " or "); n != maxFilterComparisons-1 {
		t.Fatalf("expected %d ors in first chunk, got %d", maxFilterComparisons-1, n)
	}
	if filters[2] != "PartitionKey eq 'b30'" {
		t.Fatalf("unexpected last filter %q", filters[2])
	}
	if len(partitionFilters(nil)) != 0 {
		t.Fatalf("expected no filters for empty scope")
	}
}

func TestMapWriteErr(t *testing.T) {
	if err := mapWriteErr(&azcore.ResponseError{StatusCode: 412}, "task", "t1"); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mapWriteErr(&azcore.ResponseError{StatusCode: 404}, "task", "t1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	other := &azcore.ResponseError{StatusCode: 500}
	if err := mapWriteErr(other, "task", "t1"); err != other {
		t.Fatalf("expected passthrough, got %v", err)
	}
	if mapWriteErr(nil, "task", "t1") != nil {
		t.Fatalf("expected nil")
	}
}

func TestIfMatchDefaultsToAny(t *testing.T) {
	if *ifMatch("") != azcore.ETagAny {
		t.Fatalf("expected ETagAny")
	}
	if *ifMatch("abc") != azcore.ETag("abc") {
		t.Fatalf("expected explicit etag")
	}
}

func TestAlreadyExists(t *testing.T) {
	exists := &azcore.ResponseError{StatusCode: 409, ErrorCode: queueAlreadyExists}
	if !alreadyExists(fmt.Errorf("create: %w", exists), queueAlreadyExists) {
		t.Fatalf("expected wrapped QueueAlreadyExists to match")
	}
	if alreadyExists(&azcore.ResponseError{StatusCode: 409, ErrorCode: "TableBeingDeleted"}, "TableAlreadyExists") {
		t.Fatalf("unexpected match on other error code")
	}
	if alreadyExists(errors.New("dial tcp: refused"), queueAlreadyExists) {
		t.Fatalf("plain errors never match")
	}
}
