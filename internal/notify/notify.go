// Package notify sends the optional post-run notice email via AWS SES v2.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/novacomp/eml-relay/internal/email"
	"github.com/novacomp/eml-relay/internal/relay"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Config holds the configuration for creating a Notifier.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
	Recipient       string
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Notifier emails a summary of each processed notification via SES v2.
// Notice failures are the caller's to log; they never affect the run
// result.
type Notifier struct {
	sender    string
	recipient string
	client    SendEmailAPI
}

// New creates a Notifier with the given configuration.
func New(ctx context.Context, cfg Config) (*Notifier, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Notifier{
		sender:    cfg.Sender,
		recipient: cfg.Recipient,
		client:    sesv2.NewFromConfig(awsCfg),
	}, nil
}

// NewWithClient creates a Notifier with a custom client, used for testing.
func NewWithClient(sender, recipient string, client SendEmailAPI) *Notifier {
	return &Notifier{sender: sender, recipient: recipient, client: client}
}

// NotifyRun sends the notice for one processed record, retrying transient
// failures with exponential backoff.
func (n *Notifier) NotifyRun(ctx context.Context, sum *email.Summary) error {
	subject, body := composeNotice(sum)

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.sender),
		Destination: &types.Destination{
			ToAddresses: []string{n.recipient},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(body),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
			delay := backoffDelay(attempt)
			if err := sleepWithContext(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		_, err := n.client.SendEmail(ctx, input)
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("SES API error",
			"attempt", attempt,
			"error", err,
		)
	}

	return fmt.Errorf("SES API request failed after %d retries: %w", maxRetries, lastErr)
}

// composeNotice builds the notice subject and body. When the message
// carried attachments but none survived the allow-list, the notice is a
// rejection listing the accepted formats.
func composeNotice(sum *email.Summary) (string, string) {
	var b strings.Builder

	if sum.Found > 0 && sum.Valid == 0 {
		subject := "Attachments rejected: " + sum.Key
		fmt.Fprintf(&b, "None of the %d attachments in %s are in an accepted format.\n\n", sum.Found, sum.Key)
		fmt.Fprintf(&b, "Accepted formats: %s\n", strings.Join(relay.AllowedExtensions(), ", "))
		if sum.Sender != "" {
			fmt.Fprintf(&b, "Sender: %s\n", sum.Sender)
		}
		return subject, b.String()
	}

	subject := fmt.Sprintf("Processed %d attachments from %s", sum.Written, sum.Key)
	fmt.Fprintf(&b, "Source: %s/%s\n", sum.Bucket, sum.Key)
	if sum.Sender != "" {
		fmt.Fprintf(&b, "Sender: %s\n", sum.Sender)
	}
	fmt.Fprintf(&b, "Attachments found: %d, accepted: %d, written: %d, failed: %d\n", sum.Found, sum.Valid, sum.Written, sum.Failed)
	if len(sum.Keys) > 0 {
		fmt.Fprintf(&b, "\nWritten objects:\n")
		for _, key := range sum.Keys {
			fmt.Fprintf(&b, "  %s\n", key)
		}
	}
	return subject, b.String()
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func backoffDelay(attempt int) time.Duration {
	delay := baseRetryDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
