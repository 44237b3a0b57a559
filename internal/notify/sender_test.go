package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	args := m.Called(ctx, channel, message)
	return redis.NewIntResult(1, args.Error(0))
}

type countingSender struct {
	calls int
	err   error
}

func (s *countingSender) Send(context.Context, Message) error {
	s.calls++
	return s.err
}

func TestRedisSenderPublishesJSON(t *testing.T) {
	pub := new(mockPublisher)
	var payload []byte
	pub.On("Publish", mock.Anything, "support-notifications", mock.Anything).
		Run(func(args mock.Arguments) { payload = args.Get(2).([]byte) }).
		Return(nil).Once()

	sender := NewRedisSender(pub, "support-notifications")
	msg := Message{
		ID:        "m1",
		Channel:   ChannelEmail,
		Template:  TemplateTicketCreated,
		Recipient: "ann@example.com",
		Data:      map[string]any{"number": "TCK-0000000001"},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sender.Send(context.Background(), msg))
	pub.AssertExpectations(t)

	var decoded Message
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, TemplateTicketCreated, decoded.Template)
	assert.Equal(t, "ann@example.com", decoded.Recipient)
	assert.Equal(t, "TCK-0000000001", decoded.Data["number"])
}

func TestRedisSenderWrapsPublishError(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, "notifications", mock.Anything).Return(errors.New("conn refused"))

	err := NewRedisSender(pub, "").Send(context.Background(), Message{Template: TemplateTicketReply})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conn refused")
}

func TestRedisSenderWithoutClient(t *testing.T) {
	err := NewRedisSender(nil, "x").Send(context.Background(), Message{})
	assert.Error(t, err)
}

func TestBreakerSenderOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &countingSender{err: errors.New("down")}
	sender := NewBreakerSender(inner, BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute})

	assert.Error(t, sender.Send(context.Background(), Message{}))
	assert.Error(t, sender.Send(context.Background(), Message{}))
	assert.Equal(t, gobreaker.StateOpen, sender.State())

	err := sender.Send(context.Background(), Message{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls)
}

func TestBreakerSenderPassesThrough(t *testing.T) {
	inner := &countingSender{}
	sender := NewBreakerSender(inner, BreakerSettings{})
	require.NoError(t, sender.Send(context.Background(), Message{}))
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, gobreaker.StateClosed, sender.State())
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(zap.NewNop()).Send(context.Background(), Message{Template: TemplateInvitationWelcome}))
}
