package ses

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/google/uuid"

	appconfig "github.com/databender/leadengine/internal/config"
	"github.com/databender/leadengine/internal/pkg/logger"
)

// API is the subset of the SES v2 client used here.
type API interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, in *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// Message is one outgoing email.
type Message struct {
	To             string
	Subject        string
	HTML           string
	Text           string
	ReplyTo        string
	UnsubscribeURL string
	Tags           map[string]string
}

// Client sends email through AWS SES v2. When disabled it only logs, which
// keeps local development from mailing real leads.
type Client struct {
	api     API
	from    string
	replyTo string
	enabled bool
	timeout time.Duration
}

// NewClient creates an SES client. Static credentials are used when an
// access key is configured, otherwise the default credential chain.
func NewClient(ctx context.Context, cfg appconfig.SESConfig) (*Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewClientWithAPI(sesv2.NewFromConfig(awsCfg), cfg), nil
}

// NewClientWithAPI wraps an existing API implementation.
func NewClientWithAPI(api API, cfg appconfig.SESConfig) *Client {
	return &Client{
		api:     api,
		from:    cfg.From(),
		replyTo: cfg.ReplyTo,
		enabled: cfg.Enabled,
		timeout: cfg.Timeout(),
	}
}

// Send delivers msg and returns the SES message ID.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", fmt.Errorf("recipient is required")
	}
	if !c.enabled {
		id := "local-" + uuid.NewString()
		logger.Info("email send skipped (ses disabled)", "to", msg.To, "subject", msg.Subject, "message_id", id)
		return id, nil
	}

	content := &types.Message{
		Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
		Body:    &types.Body{},
	}
	if msg.HTML != "" {
		content.Body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		content.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if msg.UnsubscribeURL != "" {
		content.Headers = []types.MessageHeader{
			{Name: aws.String("List-Unsubscribe"), Value: aws.String("<" + msg.UnsubscribeURL + ">")},
			{Name: aws.String("List-Unsubscribe-Post"), Value: aws.String("List-Unsubscribe=One-Click")},
		}
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content:          &types.EmailContent{Simple: content},
		EmailTags:        messageTags(msg.Tags),
	}
	replyTo := msg.ReplyTo
	if replyTo == "" {
		replyTo = c.replyTo
	}
	if replyTo != "" {
		in.ReplyToAddresses = []string{replyTo}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := c.api.SendEmail(ctx, in)
	if err != nil {
		return "", fmt.Errorf("ses send email: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// SES tag values only allow letters, digits, '_' and '-'.
func messageTags(tags map[string]string) []types.MessageTag {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.MessageTag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.MessageTag{Name: aws.String(sanitizeTag(k)), Value: aws.String(sanitizeTag(tags[k]))})
	}
	return out
}

func sanitizeTag(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}

// AccountStatus reports whether SES sending is enabled for the account and
// the remaining 24h quota.
type AccountStatus struct {
	SendingEnabled  bool    `json:"sendingEnabled"`
	ProductionMode  bool    `json:"productionMode"`
	Max24HourSend   float64 `json:"max24HourSend"`
	SentLast24Hours float64 `json:"sentLast24Hours"`
}

// CheckAccount fetches sending status from SES.
func (c *Client) CheckAccount(ctx context.Context) (*AccountStatus, error) {
	account, err := c.api.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return nil, fmt.Errorf("getting account info: %w", err)
	}
	st := &AccountStatus{
		SendingEnabled: account.SendingEnabled,
		ProductionMode: account.ProductionAccessEnabled,
	}
	if q := account.SendQuota; q != nil {
		st.Max24HourSend = q.Max24HourSend
		st.SentLast24Hours = q.SentLast24Hours
	}
	return st, nil
}
