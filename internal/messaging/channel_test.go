package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agendmed/pkg/logging"
)

type stubChannel struct {
	name    string
	err     error
	sent    []string
	choices int
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(_ context.Context, _ string, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *stubChannel) SendChoices(_ context.Context, _ string, text string, _ []string) (ChoiceOutcome, error) {
	if s.err != nil {
		return ChoiceOutcome{}, s.err
	}
	s.choices++
	s.sent = append(s.sent, text)
	return ChoiceOutcome{Interactive: true}, nil
}

type memRecorder struct {
	mu   sync.Mutex
	msgs map[string][]TranscriptMessage
	err  error
}

func (m *memRecorder) Append(_ context.Context, caller string, msg TranscriptMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.msgs == nil {
		m.msgs = map[string][]TranscriptMessage{}
	}
	m.msgs[caller] = append(m.msgs[caller], msg)
	return nil
}

func TestFailoverChannelFallsBack(t *testing.T) {
	primary := &stubChannel{name: "whatsapp", err: errors.New("503")}
	secondary := &stubChannel{name: "log"}
	ch := NewFailoverChannel(primary, secondary, logging.Discard())

	require.NoError(t, ch.Send(context.Background(), "5511999990000", "oi"))
	assert.Equal(t, []string{"oi"}, secondary.sent)

	out, err := ch.SendChoices(context.Background(), "5511999990000", "escolha", []string{"1. a"})
	require.NoError(t, err)
	assert.True(t, out.Interactive)
	assert.Equal(t, "whatsapp", ch.Name())
}

func TestFailoverChannelWithoutSecondaryReturnsError(t *testing.T) {
	primary := &stubChannel{name: "whatsapp", err: errors.New("503")}
	ch := NewFailoverChannel(primary, nil, logging.Discard())
	assert.Error(t, ch.Send(context.Background(), "x", "oi"))
}

func TestRecordingChannelAppendsBotMessages(t *testing.T) {
	inner := &stubChannel{name: "log"}
	rec := &memRecorder{}
	ch := WrapWithRecorder(inner, rec, logging.Discard())

	require.NoError(t, ch.Send(context.Background(), "+55 11 99999-0000", "olá"))
	_, err := ch.SendChoices(context.Background(), "5511999990000", "Escolha:", []string{"1. Limpeza"})
	require.NoError(t, err)

	msgs := rec.msgs["5511999990000"]
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleBot, msgs[0].Role)
	assert.Equal(t, "olá", msgs[0].Content)
	assert.Equal(t, "Escolha:\n\n1. Limpeza", msgs[1].Content)
	assert.WithinDuration(t, time.Now(), msgs[0].Timestamp, time.Minute)
	assert.Equal(t, 1, inner.choices)
}

func TestRecordingChannelIgnoresRecorderFailure(t *testing.T) {
	inner := &stubChannel{name: "log"}
	ch := WrapWithRecorder(inner, &memRecorder{err: errors.New("redis down")}, logging.Discard())
	require.NoError(t, ch.Send(context.Background(), "5511999990000", "olá"))
	assert.Len(t, inner.sent, 1)
}

func TestWrapWithRecorderNil(t *testing.T) {
	inner := &stubChannel{name: "log"}
	assert.Same(t, inner, WrapWithRecorder(inner, nil, nil).(*stubChannel))
}

func TestChoicesAsText(t *testing.T) {
	assert.Equal(t, "pick\n\n1. a\n2. b", ChoicesAsText("pick", []string{"1. a", "2. b"}))
	assert.Equal(t, "list 1. a", ChoicesAsText("list 1. a", []string{"1. a"}))
	assert.Equal(t, "plain", ChoicesAsText("plain", nil))
}

func TestChoiceValueAndLabel(t *testing.T) {
	assert.Equal(t, "2", ChoiceValue("2. Tarde (12:00 - 18:00)"))
	assert.Equal(t, "Tarde (12:00 - 18:00)", ChoiceLabel("2. Tarde (12:00 - 18:00)"))
	assert.Equal(t, "sim", ChoiceValue("sim"))
	assert.Equal(t, "não", ChoiceLabel("não"))
}
