package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventKinds(t *testing.T) {
	cases := map[string]EventKind{
		`{"event":"start"}`:                               EventStart,
		`{"event":"llm_token","token":"x"}`:               EventLLMToken,
		`{"event":"agent_thought","thought":"x"}`:         EventAgentThought,
		`{"event":"llm_start"}`:                           EventLLMStart,
		`{"event":"llm_end","response":"x"}`:              EventLLMEnd,
		`{"event":"agent_action","tool":"t"}`:             EventAgentAction,
		`{"event":"tool_start","tool":"t"}`:               EventToolStart,
		`{"event":"tool_end","observation":"o"}`:          EventToolEnd,
		`{"event":"agent_observation","observation":"o"}`: EventAgentObservation,
		`{"event":"trace_note","note":"n"}`:               EventTraceNote,
		`{"event":"final"}`:                               EventFinal,
		`{"event":"error","error_message":"m"}`:           EventError,
		`{"event":"end"}`:                                 EventEnd,
		`{"event_type":"llm_token","token":"fallback"}`:   EventLLMToken,
		`{"event":"heartbeat","event_type":"llm_token"}`:  EventKind("heartbeat"),
	}
	for record, want := range cases {
		ev, err := DecodeEvent([]byte(record))
		require.NoError(t, err, record)
		assert.Equal(t, want, ev.Kind(), record)
	}
}

func TestDecodeEventErrors(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"token":"x"}`))
	assert.ErrorIs(t, err, ErrNoDiscriminator)

	_, err = DecodeEvent([]byte(`{"event":`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestDecodeEnvelope(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event":"tool_start","tool":"loki","tool_input":{"q":"x"},
		"stepId":"step-3","workflow_stage":"executing","timestamp":"2024-05-01T10:00:00","session_id":"s"}`))
	require.NoError(t, err)

	meta := ev.Meta()
	assert.Equal(t, "step-3", meta.StepID)
	assert.Equal(t, StageExecuting, meta.WorkflowStage)
	assert.Equal(t, "s", meta.SessionID)
	require.NotNil(t, meta.Timestamp)
	assert.True(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).Equal(*meta.Timestamp))

	ts := ev.(*ToolStartEvent)
	assert.True(t, ts.ToolInput.IsRecord())
	assert.Equal(t, `{"q":"x"}`, ts.ToolInput.Text())
}

func TestDecodeErrorFallsBackToMessage(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event":"error","message":"agent crashed"}`))
	require.NoError(t, err)
	assert.Equal(t, "agent crashed", ev.(*ErrorEvent).ErrorMessage)
}

func TestDecodeActionDropsEmptyLog(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event":"agent_action","tool":"t","log":""}`))
	require.NoError(t, err)
	assert.Nil(t, ev.(*ActionEvent).Log)
}

func TestDecodeNonStringFieldsDegradeToText(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event":"agent_thought","thought":{"plan": ["query", "summarize"]}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"plan":["query","summarize"]}`, ev.(*ThoughtEvent).Thought)

	ev, err = DecodeEvent([]byte(`{"event":"llm_start","prompt":["system","user"],"model":"m"}`))
	require.NoError(t, err)
	assert.Equal(t, `["system","user"]`, ev.(*LLMStartEvent).Prompt)
	assert.Equal(t, "m", ev.(*LLMStartEvent).Model)

	ev, err = DecodeEvent([]byte(`{"event":"llm_token","token":"x","timestamp":1714557600}`))
	require.NoError(t, err)
	assert.Nil(t, ev.Meta().Timestamp)
	assert.Equal(t, "x", ev.(*TokenEvent).Token)

	ev, err = DecodeEvent([]byte(`{"event":"agent_action","tool":"loki_query","log":{"line":3}}`))
	require.NoError(t, err)
	action := ev.(*ActionEvent)
	require.NotNil(t, action.Log)
	assert.Equal(t, `{"line":3}`, *action.Log)

	ev, err = DecodeEvent([]byte(`{"event":"start","lookback_hours":48}`))
	require.NoError(t, err)
	assert.Equal(t, 48, ev.(*StartEvent).LookbackHours)
}

func TestDecodeFinalFields(t *testing.T) {
	final, err := DecodeFinal([]byte(`{"answer":"","count":0,"missing":null,"start":"2024-05-01 10:00:00",
		"trace":{"steps":[{"index":0,"tool":"a","tool_input":"x","observation":null}]},"step_id":"step-9"}`))
	require.NoError(t, err)

	assert.True(t, final.Has("answer"))
	assert.True(t, final.Has("count"))
	assert.False(t, final.Has("missing"))
	assert.False(t, final.Has("absent"))
	assert.False(t, final.Has("step_id"), "envelope keys are not domain fields")

	var answer string
	assert.True(t, final.Field("answer", &answer))
	var wrong int
	assert.False(t, final.Field("answer", &wrong))

	start, ok := final.Time("start")
	require.True(t, ok)
	assert.Equal(t, 10, start.Hour())

	require.NotNil(t, final.Trace)
	assert.Len(t, final.Trace.Steps, 1)
	assert.Nil(t, final.Trace.Steps[0].Observation)

	_, err = DecodeFinal([]byte(`"text"`))
	assert.Error(t, err)
}

func TestValueRoundTrip(t *testing.T) {
	var v struct {
		Text   *Value `json:"text"`
		Record *Value `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"text":"hello","record":{ "a" : [1, 2] }}`), &v))

	assert.False(t, v.Text.IsRecord())
	assert.Equal(t, "hello", v.Text.String())
	assert.True(t, v.Record.IsRecord())
	assert.Equal(t, `{"a":[1,2]}`, v.Record.Text())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hello","record":{"a":[1,2]}}`, string(out))
}

func TestValueRecordFromStringifiedJSON(t *testing.T) {
	var dst struct {
		Lines []string `json:"lines"`
	}
	require.NoError(t, TextValue(`{"lines":["a"]}`).Decode(&dst))
	assert.Equal(t, []string{"a"}, dst.Lines)

	assert.ErrorIs(t, TextValue("plain").Decode(&dst), ErrNotRecord)

	var nilValue *Value
	assert.Equal(t, "", nilValue.Text())
	_, ok := nilValue.Record()
	assert.False(t, ok)
}

func TestTraceOperations(t *testing.T) {
	var tr Trace
	tr = tr.Observe(TextValue("orphan"))
	assert.Zero(t, tr.Len())

	a := tr.Append("a", nil, nil, nil)
	b := a.Append("b", TextValue("in"), nil, nil)
	c := b.Observe(TextValue("out"))

	assert.Equal(t, 1, a.Len())
	assert.Nil(t, b.Steps[1].Observation)
	assert.Equal(t, "out", c.Steps[1].Observation.Text())
	assert.Equal(t, 1, c.Steps[1].Index)

	c.Steps[0].Index = 5
	assert.Equal(t, 0, c.Reindexed().Steps[0].Index)
	assert.Equal(t, 5, c.Steps[0].Index)
}

func TestRequestValidation(t *testing.T) {
	chat := &ChatOpsRequest{Question: "how many errors?"}
	require.NoError(t, chat.Validate())
	require.NotNil(t, chat.TimeRange)
	assert.Equal(t, DefaultLastMinutes, *chat.TimeRange.LastMinutes)

	assert.Error(t, (&ChatOpsRequest{Question: "q", TimeRange: LastMinutes(0)}).Validate())
	assert.Error(t, (&ChatOpsRequest{Question: strings.Repeat("x", maxQuestionLen+1)}).Validate())
	assert.Error(t, (&ChatOpsRequest{Question: "q", SessionID: strings.Repeat("s", maxSessionIDLen+1)}).Validate())

	now := time.Now()
	assert.NoError(t, (&RCARequest{Description: "d", TimeRange: Between(now.Add(-time.Hour), now)}).Validate())
	assert.Error(t, (&RCARequest{Description: "d"}).Validate())
	assert.Error(t, (&RCARequest{Description: "d", TimeRange: Between(now, now)}).Validate())
	assert.Error(t, (&RCARequest{Description: "d", TimeRange: LastMinutes(5)}).Validate())

	p := &PredictRequest{ServiceName: "api"}
	require.NoError(t, p.Validate())
	assert.Equal(t, DefaultLookbackHours, p.LookbackHours)
	assert.Error(t, (&PredictRequest{ServiceName: "api", LookbackHours: -1}).Validate())
	assert.Error(t, (&PredictRequest{ServiceName: "\xff"}).Validate())
}

func TestKinds(t *testing.T) {
	k, err := ParseKind("rca")
	require.NoError(t, err)
	assert.Equal(t, KindRCA, k)
	_, err = ParseKind("billing")
	assert.Error(t, err)

	assert.Equal(t, "/api/chatops/query/stream", KindChatOps.StreamPath())
	assert.Equal(t, "/api/predict/run", KindPredict.SyncPath())

	for _, kind := range Kinds {
		req, err := NewRequest(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, req.Kind())
		req.SetSessionID("abc")
		assert.Equal(t, "abc", req.Session())
	}
}
