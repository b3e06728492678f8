package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ReturnsTypedEvent_When_LineIsValid(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)
	tests := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "run",
			line: `{"kind":"run","status":"initializing","run_name":"nightly"}`,
			want: RunEvent{Status: RunInitializing, RunName: "nightly"},
		},
		{
			name: "case with time",
			line: `{"kind":"case","id":"7","suite":"net.Ping","name":"v4","status":"failed","elapsed":1.25,"message":"timeout","stacktrace":"at ping()","time":"2024-03-09T14:30:05Z"}`,
			want: CaseEvent{
				ID: "7", SuiteFullName: "net.Ping", Name: "v4", Status: StatusFailed,
				Elapsed: 1.25, Message: "timeout", Stacktrace: "at ping()", Time: ts,
			},
		},
		{
			name: "sub",
			line: `{"kind":"sub","id":"7","name":"dns","status":"running","elapsed":0.5}`,
			want: SubEvent{ID: "7", Name: "dns", Status: StatusRunning, Elapsed: 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Decode([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_ReturnsError_When_LineIsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		line    string
		wantErr string
	}{
		{"not json", `plain text`, "decoding event"},
		{"unknown kind", `{"kind":"suite","status":"running"}`, `unknown event kind "suite"`},
		{"unknown run status", `{"kind":"run","status":"done"}`, `unknown status "done"`},
		{"unknown case status", `{"kind":"case","id":"1","status":"exploded"}`, `unknown status "exploded"`},
		{"case without id", `{"kind":"case","status":"running"}`, "missing id"},
		{"sub without id", `{"kind":"sub","name":"a","status":"passed"}`, "missing id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tt.line))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEncode_OmitsZeroTime(t *testing.T) {
	t.Parallel()

	data, err := Encode(SubEvent{ID: "1", Name: "a", Status: StatusPassed, Elapsed: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"sub","id":"1","name":"a","status":"passed","elapsed":2}`, string(data))

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, SubEvent{ID: "1", Name: "a", Status: StatusPassed, Elapsed: 2}, back)
}

func TestStatus_IsCompleted(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusPassed, StatusFailed, StatusSkipped, StatusAttempted} {
		assert.True(t, s.IsCompleted(), s)
	}
	for _, s := range []Status{StatusQueued, StatusAssigned, StatusRunning} {
		assert.False(t, s.IsCompleted(), s)
	}
	assert.False(t, Status("").Valid())
	assert.Equal(t, "suite.case", CaseEvent{SuiteFullName: "suite", Name: "case"}.FullName())
}
