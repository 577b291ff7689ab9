// internal/common/aws/aws_test.go
package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSES struct {
	input *ses.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.input = params
	return &ses.SendEmailOutput{}, m.err
}

type mockSNS struct {
	input *sns.PublishInput
	err   error
}

func (m *mockSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.input = params
	return &sns.PublishOutput{}, m.err
}

func TestSESClient_SendEmail(t *testing.T) {
	api := &mockSES{}
	client := NewSESClientWithAPI(api, "noreply@example.org")

	require.NoError(t, client.SendEmail(context.Background(), "donor@example.org", "Urgent: O- Blood Needed", "body"))

	require.NotNil(t, api.input)
	assert.Equal(t, []string{"donor@example.org"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "noreply@example.org", *api.input.Source)
	assert.Equal(t, "Urgent: O- Blood Needed", *api.input.Message.Subject.Data)
}

func TestSESClient_WrapsError(t *testing.T) {
	client := NewSESClientWithAPI(&mockSES{err: errors.New("throttled")}, "noreply@example.org")

	err := client.SendEmail(context.Background(), "a@b.c", "s", "b")

	assert.ErrorContains(t, err, "throttled")
}

func TestSNSClient_SendSMS(t *testing.T) {
	api := &mockSNS{}
	client := NewSNSClientWithAPI(api, "BLOODLINK")

	require.NoError(t, client.SendSMS(context.Background(), "+94771234567", "hello"))

	assert.Equal(t, "+94771234567", *api.input.PhoneNumber)
	assert.Equal(t, "Transactional", *api.input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue)
	assert.Equal(t, "BLOODLINK", *api.input.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue)
}

func TestSNSClient_OmitsEmptySenderID(t *testing.T) {
	api := &mockSNS{}

	require.NoError(t, NewSNSClientWithAPI(api, "").SendSMS(context.Background(), "+1555", "hi"))

	_, ok := api.input.MessageAttributes["AWS.SNS.SMS.SenderID"]
	assert.False(t, ok)
}
