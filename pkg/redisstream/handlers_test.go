package redisstream

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	gepevents "github.com/go-go-golems/geppetto/pkg/events"
	supportevents "github.com/go-go-golems/supportbot/pkg/inference/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(t *testing.T, e gepevents.Event) *message.Message {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return message.NewMessage(uuid.NewString(), b)
}

func TestSupportEventLogger_Escalation(t *testing.T) {
	var buf bytes.Buffer
	h := SupportEventLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	md := gepevents.EventMetadata{ID: uuid.New(), SessionID: "s1"}
	require.NoError(t, h(payload(t, supportevents.NewEscalationRaised(md, "r1", "High", "raised"))))

	out := buf.String()
	assert.Contains(t, out, "escalation raised")
	assert.Contains(t, out, `"priority":"High"`)
	assert.Contains(t, out, `"session_id":"s1"`)
}

func TestSupportEventLogger_StepFailureIsWarn(t *testing.T) {
	var buf bytes.Buffer
	h := SupportEventLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))

	ok := supportevents.NewSupportStep(supportevents.TypeStepCompleted, gepevents.EventMetadata{}, "r1", "answer")
	require.NoError(t, h(payload(t, ok)))
	assert.Empty(t, buf.String())

	failed := supportevents.NewSupportStep(supportevents.TypeStepFailed, gepevents.EventMetadata{}, "r1", "retrieve")
	failed.ErrorKind = "capability_failure"
	failed.Fallback = true
	require.NoError(t, h(payload(t, failed)))
	assert.Contains(t, buf.String(), `"error_kind":"capability_failure"`)
	assert.Contains(t, buf.String(), `"step":"retrieve"`)
}

func TestSupportEventLogger_BadPayload(t *testing.T) {
	var buf bytes.Buffer
	h := SupportEventLogger(zerolog.New(&buf))
	assert.NoError(t, h(message.NewMessage(uuid.NewString(), []byte("not json"))))
}
