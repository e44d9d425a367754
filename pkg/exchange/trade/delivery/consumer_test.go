package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	tradePkg "github.com/KeynihAV/tradecore/pkg/exchange/trade"
	tradeUsecasePkg "github.com/KeynihAV/tradecore/pkg/exchange/trade/usecase"
	"github.com/KeynihAV/tradecore/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProcessor struct {
	err       error
	processed []int64
}

func (f *fakeProcessor) Process(ctx context.Context, tradeID int64) error {
	f.processed = append(f.processed, tradeID)
	return f.err
}

type fakeRetries struct {
	attempts map[int64]int
	cleared  []int64
}

func (f *fakeRetries) Incr(tradeID int64) (int, error) {
	if f.attempts == nil {
		f.attempts = map[int64]int{}
	}
	f.attempts[tradeID]++
	return f.attempts[tradeID], nil
}

func (f *fakeRetries) Clear(tradeID int64) error {
	f.cleared = append(f.cleared, tradeID)
	return nil
}

type fakeQueue struct {
	deadLettered [][]byte
}

func (f *fakeQueue) Subscribe(handler func(body []byte) error) error { return nil }

func (f *fakeQueue) PublishDeadLetter(ctx context.Context, body []byte) error {
	f.deadLettered = append(f.deadLettered, body)
	return nil
}

func newConsumer(processorErr error) (*Consumer, *fakeProcessor, *fakeRetries, *fakeQueue) {
	processor := &fakeProcessor{err: processorErr}
	retries := &fakeRetries{}
	q := &fakeQueue{}
	return &Consumer{
		Processor:   processor,
		Retries:     retries,
		Queue:       q,
		MaxAttempts: 3,
		Logger:      &logging.Logger{Zap: zap.NewNop()},
	}, processor, retries, q
}

func tradeMessage(t *testing.T, tradeID int64) []byte {
	t.Helper()
	body, err := json.Marshal(&tradePkg.Trade{ID: tradeID})
	require.NoError(t, err)
	return body
}

func TestConsumer_AcksExpectedOutcomes(t *testing.T) {
	tests := []struct {
		name         string
		processorErr error
	}{
		{name: "processed", processorErr: nil},
		{name: "reference not found", processorErr: tradeUsecasePkg.ErrTradeNotFound},
		{name: "market closed", processorErr: tradeUsecasePkg.ErrMarketClosed},
		{name: "no counterpart", processorErr: tradeUsecasePkg.ErrNoCounterpart},
		{name: "no price", processorErr: tradeUsecasePkg.ErrNoPrice},
		{name: "insufficient funds", processorErr: tradeUsecasePkg.ErrInsufficientFunds},
		{name: "serialization conflict", processorErr: tradeUsecasePkg.ErrTxConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer, processor, retries, q := newConsumer(tt.processorErr)

			err := consumer.handleMessage(context.Background(), tradeMessage(t, 7))

			require.NoError(t, err, "expected outcome must acknowledge the message")
			assert.Equal(t, []int64{7}, processor.processed)
			assert.Empty(t, q.deadLettered)
			assert.Equal(t, []int64{7}, retries.cleared)
		})
	}
}

func TestConsumer_RequeuesUnexpectedErrors(t *testing.T) {
	cause := fmt.Errorf("storage is on fire")
	consumer, _, retries, q := newConsumer(cause)

	err := consumer.handleMessage(context.Background(), tradeMessage(t, 7))

	require.ErrorIs(t, err, cause, "unexpected error must reject the message back onto the queue")
	assert.Equal(t, 1, retries.attempts[7])
	assert.Empty(t, q.deadLettered)
	assert.Empty(t, retries.cleared)
}

func TestConsumer_DeadLettersAtAttemptCap(t *testing.T) {
	cause := fmt.Errorf("storage is on fire")
	consumer, _, retries, q := newConsumer(cause)
	body := tradeMessage(t, 7)

	var err error
	for i := 0; i < consumer.MaxAttempts; i++ {
		err = consumer.handleMessage(context.Background(), body)
	}

	require.NoError(t, err, "final attempt must acknowledge after dead lettering")
	require.Len(t, q.deadLettered, 1)
	assert.Equal(t, body, q.deadLettered[0])
	assert.Equal(t, []int64{7}, retries.cleared)
}

func TestConsumer_DeadLettersMalformedPayload(t *testing.T) {
	consumer, processor, _, q := newConsumer(nil)

	err := consumer.handleMessage(context.Background(), []byte("not json"))

	require.NoError(t, err)
	assert.Empty(t, processor.processed)
	require.Len(t, q.deadLettered, 1)
}
