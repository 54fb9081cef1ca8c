package agentsim

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// record is one NDJSON line. Envelope fields are added by the emitter.
type record map[string]any

// emitter writes stream records and assigns step identifiers.
type emitter struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	sessionID string
	step      int
	stage     string
	now       func() time.Time
}

func newEmitter(w http.ResponseWriter, sessionID string, now func() time.Time) (*emitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &emitter{w: w, flusher: flusher, sessionID: sessionID, stage: "thinking", now: now}, nil
}

// nextStep opens a new step group.
func (e *emitter) nextStep() {
	e.step++
}

// plain writes a record without step metadata; used for start, final,
// error and end.
func (e *emitter) plain(event string, fields record) error {
	rec := record{"event": event}
	for k, v := range fields {
		rec[k] = v
	}
	return e.write(rec)
}

// stepped writes a record of the current step in the given stage.
func (e *emitter) stepped(event, stage string, fields record) error {
	if stage != "" {
		e.stage = stage
	}
	rec := record{
		"event":          event,
		"event_type":     event,
		"workflow_stage": e.stage,
		"timestamp":      e.now().UTC().Format(time.RFC3339Nano),
		"session_id":     e.sessionID,
	}
	if e.step > 0 {
		rec["step_id"] = fmt.Sprintf("step-%d", e.step)
	}
	for k, v := range fields {
		rec[k] = v
	}
	return e.write(rec)
}

func (e *emitter) write(rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}
