package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, msg)
	return args.Error(0)
}

func TestAMQPSink_Publish(t *testing.T) {
	pub := &mockPublisher{}
	sink := NewAMQPSink(pub, "")

	event := simplemedia.Event{
		Type:        simplemedia.EventContentCreated,
		ContentID:   uuid.New(),
		OwnerID:     uuid.New(),
		ContentType: simplemedia.ContentTypeVideo,
		At:          time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	pub.On("PublishWithContext", DefaultExchange, "content.created", mock.MatchedBy(func(msg amqp.Publishing) bool {
		var got simplemedia.Event
		if err := json.Unmarshal(msg.Body, &got); err != nil {
			return false
		}
		return msg.ContentType == "application/json" &&
			msg.DeliveryMode == amqp.Persistent &&
			got.ContentID == event.ContentID &&
			got.Type == event.Type
	})).Return(nil).Once()

	require.NoError(t, sink.Publish(context.Background(), event))
	pub.AssertExpectations(t)
}

func TestAMQPSink_PublishError(t *testing.T) {
	pub := &mockPublisher{}
	sink := NewAMQPSink(pub, "media")

	pub.On("PublishWithContext", "media", "content.deleted", mock.Anything).Return(amqp.ErrClosed)

	err := sink.Publish(context.Background(), simplemedia.Event{Type: simplemedia.EventContentDeleted})
	assert.True(t, errors.Is(err, amqp.ErrClosed))
}

func TestAMQPSink_CloseWithoutConnection(t *testing.T) {
	sink := NewAMQPSink(&mockPublisher{}, "")
	assert.NoError(t, sink.Close())
}
