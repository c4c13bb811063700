// internal/common/aws/sns.go
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// PublishAPI is the part of *sns.Client used here.
type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSClient struct {
	client   PublishAPI
	senderID string
}

func NewSNSClient(ctx context.Context, region, senderID string) (*SNSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SNSClient{client: sns.NewFromConfig(cfg), senderID: senderID}, nil
}

// NewSNSClientWithAPI wraps an existing publisher.
func NewSNSClientWithAPI(api PublishAPI, senderID string) *SNSClient {
	return &SNSClient{client: api, senderID: senderID}
}

// SendSMS publishes a transactional SMS directly to phone and returns the message id.
func (s *SNSClient) SendSMS(ctx context.Context, phone, message string) (string, error) {
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    awssdk.String("String"),
			StringValue: awssdk.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    awssdk.String("String"),
			StringValue: awssdk.String(s.senderID),
		}
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       awssdk.String(phone),
		Message:           awssdk.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}
	return awssdk.ToString(out.MessageId), nil
}
