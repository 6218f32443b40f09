package breaker_test

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"presence-chat/internal/domain"
	"presence-chat/internal/infra/persistence/breaker"
	"presence-chat/internal/repository/mocks"
)

func testSettings() breaker.Settings {
	st := breaker.DefaultSettings("messages-test")
	st.MinRequests = 2
	st.FailureThreshold = 0.5
	st.Timeout = time.Hour
	return st
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	next := new(mocks.MessageRepository)
	var transitions []gobreaker.State
	st := testSettings()
	st.OnStateChange = func(_ string, _, to gobreaker.State) { transitions = append(transitions, to) }
	repo := breaker.NewMessageRepository(next, st)
	ctx := context.Background()

	dbErr := errors.New("connection refused")
	next.On("Append", mock.Anything, mock.Anything).Return(dbErr).Twice()

	assert.ErrorIs(t, repo.Append(ctx, &domain.Message{}), dbErr)
	assert.ErrorIs(t, repo.Append(ctx, &domain.Message{}), dbErr)
	assert.Equal(t, gobreaker.StateOpen, repo.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	// 打开后不再访问下层
	err := repo.Append(ctx, &domain.Message{})
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	next.AssertNumberOfCalls(t, "Append", 2)

	for _, err := range repo.Between(ctx, "A", "B") {
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	}
	next.AssertNotCalled(t, "Between", mock.Anything, mock.Anything, mock.Anything)
}

func TestBreaker_PassesThroughWhenClosed(t *testing.T) {
	next := new(mocks.MessageRepository)
	repo := breaker.NewMessageRepository(next, testSettings())
	ctx := context.Background()

	next.On("Append", mock.Anything, mock.Anything).Return(nil).Once()
	var seq iter.Seq2[domain.Message, error] = func(yield func(domain.Message, error) bool) {
		yield(domain.Message{Content: "hi"}, nil)
	}
	next.On("Between", mock.Anything, "A", "B").Return(seq).Once()

	require.NoError(t, repo.Append(ctx, &domain.Message{}))
	var got []string
	for msg, err := range repo.Between(ctx, "A", "B") {
		require.NoError(t, err)
		got = append(got, msg.Content)
	}
	assert.Equal(t, []string{"hi"}, got)
	assert.Equal(t, gobreaker.StateClosed, repo.State())
	next.AssertExpectations(t)
}

func TestBreaker_CanceledDoesNotTrip(t *testing.T) {
	next := new(mocks.MessageRepository)
	repo := breaker.NewMessageRepository(next, testSettings())

	next.On("Append", mock.Anything, mock.Anything).Return(context.Canceled).Times(3)
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, repo.Append(context.Background(), &domain.Message{}), context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, repo.State())
}
