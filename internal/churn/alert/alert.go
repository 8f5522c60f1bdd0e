// Package alert publishes high churn-risk customers to an SNS topic so
// retention teams can act on them.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"churn-workers/internal/churn/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSService is the subset of the SNS client used here.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Publisher struct {
	sns       SNSService
	topicARN  string
	threshold float64
}

func NewPublisher(client SNSService, topicARN string, threshold float64) *Publisher {
	return &Publisher{sns: client, topicARN: topicARN, threshold: threshold}
}

type message struct {
	PredictionID     string  `json:"predictionId"`
	CustomerID       string  `json:"customerId,omitempty"`
	ChurnProbability float64 `json:"churnProbability"`
	RiskLevel        string  `json:"riskLevel"`
	Source           string  `json:"source"`
}

// Threshold is the probability at or above which Notify publishes.
func (p *Publisher) Threshold() float64 { return p.threshold }

// Notify publishes the prediction when it reaches the threshold and reports
// whether a message was sent.
func (p *Publisher) Notify(ctx context.Context, pred *store.Prediction) (bool, error) {
	if pred.Probability < p.threshold {
		return false, nil
	}

	body, err := json.Marshal(message{
		PredictionID:     pred.ID.String(),
		CustomerID:       pred.CustomerID,
		ChurnProbability: pred.Probability,
		RiskLevel:        pred.RiskLevel,
		Source:           pred.Source,
	})
	if err != nil {
		return false, fmt.Errorf("marshal alert: %w", err)
	}

	_, err = p.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String("High churn risk"),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"riskLevel": {
				DataType:    aws.String("String"),
				StringValue: aws.String(pred.RiskLevel),
			},
			"churnProbability": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatFloat(pred.Probability, 'f', 4, 64)),
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("publish alert: %w", err)
	}
	return true, nil
}
