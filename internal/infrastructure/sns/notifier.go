package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-membership-api/internal/application/otp"
	"github.com/go-membership-api/internal/config"
)

// publisher is the slice of the SNS client the notifier uses.
type publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicNotifier hands code deliveries to an SNS topic; a subscriber owns the
// actual email rendering.
type TopicNotifier struct {
	client   publisher
	topicARN string
}

// message is the JSON body published per dispatch.
type message struct {
	Purpose   string    `json:"purpose"`
	OwnerID   string    `json:"ownerId"`
	Recipient string    `json:"recipient"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewTopicNotifier(ctx context.Context, cfg *config.Config) (*TopicNotifier, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.SNSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for SNS: %w", err)
	}
	clientOpts := []func(*sns.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return &TopicNotifier{client: sns.NewFromConfig(awsCfg, clientOpts...), topicARN: cfg.SNSTopicARN}, nil
}

func (n *TopicNotifier) SendOTP(ctx context.Context, d otp.Dispatch) error {
	body, err := json.Marshal(message{
		Purpose:   d.Purpose,
		OwnerID:   d.OwnerID,
		Recipient: d.Recipient,
		Code:      d.Code,
		ExpiresAt: d.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal otp message: %w", err)
	}
	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"purpose": {DataType: aws.String("String"), StringValue: aws.String(d.Purpose)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
