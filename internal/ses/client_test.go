package ses

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/databender/leadengine/internal/config"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []*sesv2.SendEmailInput
	sendErr error
	account *sesv2.GetAccountOutput
}

func (f *fakeAPI) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, in)
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
}

func (f *fakeAPI) GetAccount(_ context.Context, _ *sesv2.GetAccountInput, _ ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error) {
	return f.account, nil
}

func testSESConfig() appconfig.SESConfig {
	return appconfig.SESConfig{
		FromAddress: "grant@mail.databender.co",
		FromName:    "Grant Bender",
		ReplyTo:     "grant@databender.co",
		Enabled:     true,
	}
}

func TestSend(t *testing.T) {
	api := &fakeAPI{}
	c := NewClientWithAPI(api, testSESConfig())

	id, err := c.Send(context.Background(), Message{
		To:             "dana@acme.com",
		Subject:        "Hello",
		HTML:           "<p>hi</p>",
		Text:           "hi",
		UnsubscribeURL: "https://databender.co/api/unsubscribe?token=t",
		Tags:           map[string]string{"sequence_type": "guide-legal", "email_day": "day0"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", id)

	require.Len(t, api.sent, 1)
	in := api.sent[0]
	assert.Equal(t, "Grant Bender <grant@mail.databender.co>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"dana@acme.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"grant@databender.co"}, in.ReplyToAddresses)
	assert.Equal(t, "<p>hi</p>", aws.ToString(in.Content.Simple.Body.Html.Data))
	assert.Equal(t, "hi", aws.ToString(in.Content.Simple.Body.Text.Data))
	require.Len(t, in.Content.Simple.Headers, 2)
	assert.Equal(t, "<https://databender.co/api/unsubscribe?token=t>", aws.ToString(in.Content.Simple.Headers[0].Value))
	require.Len(t, in.EmailTags, 2)
	assert.Equal(t, "email_day", aws.ToString(in.EmailTags[0].Name))
	assert.Equal(t, "guide-legal", aws.ToString(in.EmailTags[1].Value))
}

func TestSendDisabledDoesNotCallSES(t *testing.T) {
	api := &fakeAPI{}
	cfg := testSESConfig()
	cfg.Enabled = false
	c := NewClientWithAPI(api, cfg)

	id, err := c.Send(context.Background(), Message{To: "dana@acme.com", Subject: "x"})
	require.NoError(t, err)
	assert.Contains(t, id, "local-")
	assert.Empty(t, api.sent)
}

func TestSendErrors(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("throttled")}
	c := NewClientWithAPI(api, testSESConfig())

	_, err := c.Send(context.Background(), Message{})
	assert.Error(t, err)

	_, err = c.Send(context.Background(), Message{To: "dana@acme.com"})
	assert.ErrorContains(t, err, "throttled")
}

func TestSanitizeTag(t *testing.T) {
	assert.Equal(t, "day_7", sanitizeTag("day 7"))
	assert.Equal(t, "cold-cre", sanitizeTag("cold-cre"))
	assert.Equal(t, "a_b_c", sanitizeTag("a.b@c"))
}

func TestCheckAccount(t *testing.T) {
	api := &fakeAPI{account: &sesv2.GetAccountOutput{
		SendingEnabled:          true,
		ProductionAccessEnabled: true,
		SendQuota:               &types.SendQuota{Max24HourSend: 50000, SentLast24Hours: 120},
	}}
	c := NewClientWithAPI(api, testSESConfig())

	st, err := c.CheckAccount(context.Background())
	require.NoError(t, err)
	assert.True(t, st.SendingEnabled)
	assert.Equal(t, float64(50000), st.Max24HourSend)
	assert.Equal(t, float64(120), st.SentLast24Hours)
}
