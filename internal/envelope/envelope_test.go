package envelope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/taskerr"
)

func validEnvelope() Envelope {
	return Envelope{
		JobID:       "0f8fad5b-d9cb-469f-a165-70867728950e",
		TaskName:    "send_email",
		Args:        json.RawMessage(`[{"to":"a@example.com"}]`),
		EnqueuedAt:  time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		Attempt:     0,
		MaxAttempts: 3,
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{name: "fresh envelope", env: validEnvelope()},
		{
			name: "retried envelope",
			env: Envelope{
				JobID:       "a5b0e0b5-8d1f-4c40-bb1d-6a3bd7a1a111",
				TaskName:    "charge_card",
				Args:        json.RawMessage(`["cust-42",1999]`),
				EnqueuedAt:  time.Date(2025, 6, 2, 8, 0, 0, 123456789, time.UTC),
				Attempt:     2,
				MaxAttempts: 5,
			},
		},
		{
			name: "no args",
			env: Envelope{
				JobID:       "b16c0d1e-0000-4c40-bb1d-6a3bd7a1a222",
				TaskName:    "refresh_cache",
				EnqueuedAt:  time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
				MaxAttempts: 1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.env)
			require.NoError(t, err)

			got, err := Decode(data)
			require.NoError(t, err)

			assert.Equal(t, tt.env.JobID, got.JobID)
			assert.Equal(t, tt.env.TaskName, got.TaskName)
			assert.Equal(t, tt.env.Attempt, got.Attempt)
			assert.Equal(t, tt.env.MaxAttempts, got.MaxAttempts)
			assert.True(t, tt.env.EnqueuedAt.Equal(got.EnqueuedAt), "enqueued_at should survive the round trip")
			assert.JSONEq(t, string(nonEmpty(tt.env.Args)), string(nonEmpty(got.Args)))
		})
	}
}

func nonEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`null`)
	}
	return raw
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	// A newer dispatcher may append fields; older workers must not choke.
	data := []byte(`{
		"job_id": "0f8fad5b-d9cb-469f-a165-70867728950e",
		"task_name": "send_email",
		"args": [{"to":"a@example.com"}],
		"enqueued_at": "2025-06-01T12:30:00Z",
		"attempt": 0,
		"max_attempts": 3,
		"trace_id": "abc123",
		"priority": 7
	}`)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "send_email", got.TaskName)
	assert.Equal(t, 3, got.MaxAttempts)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "truncated input", data: []byte(`{"job_id":"x","task_na`)},
		{name: "not json", data: []byte(`????`)},
		{name: "empty input", data: nil},
		{name: "missing job_id", data: []byte(`{"task_name":"send_email","max_attempts":3}`)},
		{name: "missing task_name", data: []byte(`{"job_id":"x","max_attempts":3}`)},
		{name: "zero max_attempts", data: []byte(`{"job_id":"x","task_name":"t","max_attempts":0}`)},
		{name: "negative attempt", data: []byte(`{"job_id":"x","task_name":"t","attempt":-1,"max_attempts":3}`)},
		{name: "attempt beyond ceiling", data: []byte(`{"job_id":"x","task_name":"t","attempt":4,"max_attempts":3}`)},
		{name: "wrong field type", data: []byte(`{"job_id":1,"task_name":"t","max_attempts":3}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, taskerr.ErrMalformedEnvelope)
		})
	}
}

func TestEncode_RejectsInvalidEnvelope(t *testing.T) {
	env := validEnvelope()
	env.JobID = ""

	_, err := Encode(env)
	assert.ErrorIs(t, err, taskerr.ErrMalformedEnvelope)
}
