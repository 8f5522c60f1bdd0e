package alert

import (
	"context"
	"fmt"
	"strings"

	"churn-workers/internal/churn/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the subset of the SES client used here.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Emailer mails high-risk predictions to a fixed recipient list.
type Emailer struct {
	ses       SESService
	from      string
	to        []string
	threshold float64
}

func NewEmailer(client SESService, from string, to []string, threshold float64) *Emailer {
	return &Emailer{ses: client, from: from, to: to, threshold: threshold}
}

func (e *Emailer) Notify(ctx context.Context, pred *store.Prediction) (bool, error) {
	if pred.Probability < e.threshold {
		return false, nil
	}

	customer := pred.CustomerID
	if customer == "" {
		customer = pred.ID.String()
	}
	subject := fmt.Sprintf("High churn risk: %s (%.0f%%)", customer, pred.Probability*100)

	var body strings.Builder
	fmt.Fprintf(&body, "Customer:          %s\n", customer)
	fmt.Fprintf(&body, "Churn probability: %.4f\n", pred.Probability)
	fmt.Fprintf(&body, "Risk level:        %s\n", pred.RiskLevel)
	fmt.Fprintf(&body, "Source:            %s\n", pred.Source)
	fmt.Fprintf(&body, "Prediction ID:     %s\n", pred.ID)
	for _, w := range pred.Warnings {
		fmt.Fprintf(&body, "Warning:           %s %s=%q\n", w.Kind, w.Field, w.Value)
	}

	_, err := e.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(e.from),
		Destination: &types.Destination{ToAddresses: e.to},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body.String())},
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("send alert email: %w", err)
	}
	return true, nil
}

// Notifier is anything that can alert on a prediction.
type Notifier interface {
	Notify(ctx context.Context, pred *store.Prediction) (bool, error)
}

// Fanout notifies every channel. It reports sent when any channel sent and
// returns the first error after trying all of them.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, pred *store.Prediction) (bool, error) {
	var (
		sent     bool
		firstErr error
	)
	for _, n := range f {
		ok, err := n.Notify(ctx, pred)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		sent = sent || ok
	}
	return sent, firstErr
}
