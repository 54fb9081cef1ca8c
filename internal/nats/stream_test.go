package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aegis-ops/console/internal/model"
)

func TestEventSubject(t *testing.T) {
	subject := EventSubject(model.KindRCA, "5f0c2a9e-2b1d-4c7e-9a51-0d2f1b6e7c33", model.EventToolEnd)
	assert.Equal(t, "aegis.rca.5f0c2a9e-2b1d-4c7e-9a51-0d2f1b6e7c33.event.tool_end", subject)
}

func TestSubjectTokensAreSanitized(t *testing.T) {
	assert.Equal(t, "aegis.chatops.a_b_c.event.x_y", EventSubject(model.KindChatOps, "a.b*c", "x>y"))
	assert.Equal(t, "aegis.predict._.event.>", SessionFilter(model.KindPredict, ""))
}

func TestSessionFilterMatchesEventSubjects(t *testing.T) {
	filter := SessionFilter(model.KindChatOps, "s1")
	subject := EventSubject(model.KindChatOps, "s1", model.EventFinal)
	assert.Equal(t, filter[:len(filter)-1], subject[:len(filter)-1])
}

func TestKindOfSubject(t *testing.T) {
	assert.Equal(t, "predict", kindOfSubject("aegis.predict.s1.event.start"))
	assert.Equal(t, "unknown", kindOfSubject("other.predict.s1"))
	assert.Equal(t, "unknown", kindOfSubject("aegis"))
}

func TestAppendRequiresWireRecord(t *testing.T) {
	j := NewJournal(&Client{}, JournalConfig{})
	err := j.Append(model.KindRCA, "s1", &model.EndEvent{})
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestNewJournalDefaults(t *testing.T) {
	j := NewJournal(&Client{}, JournalConfig{})
	assert.Equal(t, 1, j.cfg.Replicas)
	assert.Positive(t, j.cfg.MaxAge)
	assert.Positive(t, j.cfg.MaxBytes)
}
