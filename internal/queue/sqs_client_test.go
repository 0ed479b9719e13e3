package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	in  *sqs.SendMessageInput
	err error
}

func (f *fakeSender) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSClientSendsAttributes(t *testing.T) {
	api := &fakeSender{}
	c := &SQSClient{api: api, queueURL: "https://sqs.example/orphans"}

	msg := NewOrphanMessage("ab/key", "u1", "ingest_rollback_failed", "req-1")
	require.NoError(t, c.Send(context.Background(), msg))

	require.NotNil(t, api.in)
	assert.Equal(t, "https://sqs.example/orphans", aws.ToString(api.in.QueueUrl))
	assert.Equal(t, KindOrphanBlob, aws.ToString(api.in.MessageAttributes["kind"].StringValue))
	assert.Equal(t, "ingest_rollback_failed", aws.ToString(api.in.MessageAttributes["reason"].StringValue))

	decoded, err := DecodeMessage([]byte(aws.ToString(api.in.MessageBody)))
	require.NoError(t, err)
	assert.Equal(t, "ab/key", decoded.StorageKey)
	assert.Equal(t, "req-1", decoded.RequestID)
}

func TestSQSClientWrapsSendError(t *testing.T) {
	boom := errors.New("throttled")
	c := &SQSClient{api: &fakeSender{err: boom}, queueURL: "q"}

	err := c.Send(context.Background(), NewOrphanMessage("ab/key", "u1", "x", ""))
	assert.ErrorIs(t, err, boom)
}

func TestNewSQSClientRequiresURL(t *testing.T) {
	_, err := NewSQSClient(context.Background(), "us-east-1", "  ")
	assert.Error(t, err)
}
