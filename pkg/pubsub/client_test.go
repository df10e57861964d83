package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/charityconnect/charityconnect-backend/pkg/config"
)

func TestResourceNames(t *testing.T) {
	assert.Equal(t, "projects/cc-dev/topics/cc-order-events", topicResourceName("cc-dev", "cc-order-events"))
	assert.Equal(t, "projects/cc-dev/subscriptions/notifier", subscriptionResourceName("cc-dev", " notifier "))
	assert.Equal(t, "projects/other/topics/t", topicResourceName("cc-dev", "projects/other/topics/t"))
	assert.Equal(t, "", topicResourceName("", "t"))
	assert.Equal(t, "", subscriptionResourceName("cc-dev", ""))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{OrdersTopic: "t"}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errTopicRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("t"))
	assert.Nil(t, c.Subscription("s"))
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.NoError(t, c.Close())
}
