package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	sent     []*sqs.SendMessageInput
	deleted  []string
	received *sqs.ReceiveMessageInput
	messages []types.Message
	err      error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.received = in
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueueStandardSend(t *testing.T) {
	api := &fakeSQS{}
	q := newSQSQueueWithAPI(api, "https://sqs.local/000/inbound")

	require.NoError(t, q.Send(context.Background(), `{"id":"1"}`, "5511999990001"))
	require.Len(t, api.sent, 1)
	assert.Equal(t, `{"id":"1"}`, aws.ToString(api.sent[0].MessageBody))
	assert.Nil(t, api.sent[0].MessageGroupId)
	assert.Nil(t, api.sent[0].MessageDeduplicationId)
}

func TestSQSQueueFIFOGroupsByCaller(t *testing.T) {
	api := &fakeSQS{}
	q := newSQSQueueWithAPI(api, "https://sqs.local/000/inbound.fifo")

	require.NoError(t, q.Send(context.Background(), "a", "5511999990001"))
	require.NoError(t, q.Send(context.Background(), "b", ""))
	require.Len(t, api.sent, 2)
	assert.Equal(t, "5511999990001", aws.ToString(api.sent[0].MessageGroupId))
	assert.Equal(t, "default", aws.ToString(api.sent[1].MessageGroupId))
	assert.NotEqual(t, aws.ToString(api.sent[0].MessageDeduplicationId), aws.ToString(api.sent[1].MessageDeduplicationId))
}

func TestSQSQueueReceiveAndDelete(t *testing.T) {
	api := &fakeSQS{messages: []types.Message{
		{MessageId: aws.String("m1"), Body: aws.String("body"), ReceiptHandle: aws.String("rh1")},
	}}
	q := newSQSQueueWithAPI(api, "https://sqs.local/000/inbound")

	msgs, err := q.Receive(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, queueMessage{ID: "m1", Body: "body", ReceiptHandle: "rh1"}, msgs[0])
	assert.Equal(t, int32(5), api.received.MaxNumberOfMessages)
	assert.Equal(t, int32(10), api.received.WaitTimeSeconds)

	require.NoError(t, q.Delete(context.Background(), "rh1"))
	require.NoError(t, q.Delete(context.Background(), ""))
	assert.Equal(t, []string{"rh1"}, api.deleted)
}

func TestSQSQueueWrapsErrors(t *testing.T) {
	api := &fakeSQS{err: errors.New("throttled")}
	q := newSQSQueueWithAPI(api, "https://sqs.local/000/inbound")

	err := q.Send(context.Background(), "x", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")

	_, err = q.Receive(context.Background(), 1, 0)
	require.Error(t, err)
}
