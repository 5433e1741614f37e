package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-membership-api/internal/application/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func TestSendOTP_PublishesJSON(t *testing.T) {
	p := &mockPublisher{}
	var got *sns.PublishInput
	p.On("Publish", mock.Anything, mock.AnythingOfType("*sns.PublishInput")).
		Run(func(args mock.Arguments) { got = args.Get(1).(*sns.PublishInput) }).
		Return(&sns.PublishOutput{}, nil)

	n := &TopicNotifier{client: p, topicARN: "arn:aws:sns:ap-southeast-2:000000000000:otp"}
	exp := time.Date(2026, 5, 1, 10, 10, 0, 0, time.UTC)
	require.NoError(t, n.SendOTP(context.Background(), otp.Dispatch{
		OwnerID: "s1", Purpose: "SIGNUP", Recipient: "a@x.com", Code: "123456", ExpiresAt: exp,
	}))

	require.NotNil(t, got)
	assert.Equal(t, "arn:aws:sns:ap-southeast-2:000000000000:otp", aws.ToString(got.TopicArn))
	var msg message
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(got.Message)), &msg))
	assert.Equal(t, "123456", msg.Code)
	assert.Equal(t, "a@x.com", msg.Recipient)
	assert.True(t, exp.Equal(msg.ExpiresAt))
	assert.Equal(t, "SIGNUP", aws.ToString(got.MessageAttributes["purpose"].StringValue))
	p.AssertExpectations(t)
}

func TestSendOTP_PublishError(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))
	n := &TopicNotifier{client: p, topicARN: "arn"}
	err := n.SendOTP(context.Background(), otp.Dispatch{})
	assert.ErrorContains(t, err, "throttled")
}
