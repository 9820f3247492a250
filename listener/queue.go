package listener

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// QueueSource reads payment notifications from an Azure Storage queue.
type QueueSource struct {
	queue *azqueue.QueueClient
}

// NewQueueSource creates a QueueSource from the given connection string.
func NewQueueSource(connStr, queueName string) (*QueueSource, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &QueueSource{queue: q}, nil
}

// Receive retrieves a single message, or nil when the queue is empty.
func (s *QueueSource) Receive(ctx context.Context) (*Message, error) {
	resp, err := s.queue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	m := resp.Messages[0]
	return &Message{ID: deref(m.MessageID), PopReceipt: deref(m.PopReceipt), Text: deref(m.MessageText)}, nil
}

// Delete removes a handled message from the queue.
func (s *QueueSource) Delete(ctx context.Context, m Message) error {
	_, err := s.queue.DeleteMessage(ctx, m.ID, m.PopReceipt, nil)
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
