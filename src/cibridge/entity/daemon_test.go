package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandValid(t *testing.T) {
	assert.True(t, CommandCompletions.Valid())
	assert.True(t, CommandGotoDefinition.Valid())
	assert.False(t, Command("hover").Valid())
}

func TestLinePrefix(t *testing.T) {
	doc := "<?php\n$foo->bar();\n\necho 1;"
	tests := []struct {
		name     string
		position Position
		want     string
	}{
		{name: "first line", position: Position{Row: 0, Column: 3}, want: "<?p"},
		{name: "middle line", position: Position{Row: 1, Column: 6}, want: "$foo->"},
		{name: "empty line", position: Position{Row: 2, Column: 4}, want: ""},
		{name: "last line without newline", position: Position{Row: 3, Column: 4}, want: "echo"},
		{name: "column past end", position: Position{Row: 3, Column: 40}, want: "echo 1;"},
		{name: "row past end", position: Position{Row: 9, Column: 0}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &PendingRequest{Document: doc, Position: tt.position}
			assert.Equal(t, tt.want, r.LinePrefix())
		})
	}

	t.Run("non-ascii line", func(t *testing.T) {
		// "é" is one UTF-16 unit, the emoji is two.
		r := &PendingRequest{Document: "<?php\n$café = '😀x';", Position: Position{Row: 1, Column: 5}}
		assert.Equal(t, "$café", r.LinePrefix())

		r.Position.Column = 11
		assert.Equal(t, "$café = '😀", r.LinePrefix())

		// A column inside a surrogate pair never splits the rune.
		r.Position.Column = 10
		assert.Equal(t, "$café = '", r.LinePrefix())
	})

	var nilReq *PendingRequest
	assert.Empty(t, nilReq.LinePrefix())
}

func TestHealthSignalKindString(t *testing.T) {
	assert.Equal(t, "none", SignalNone.String())
	assert.Equal(t, "listening", SignalListening.String())
	assert.Equal(t, "indexing-started", SignalIndexingStarted.String())
	assert.Equal(t, "indexing-finished", SignalIndexingFinished.String())
	assert.Equal(t, "warning", SignalWarning.String())
}

func TestDaemonStatus(t *testing.T) {
	s := DaemonStatus{State: DaemonListening, Generation: 2, PID: 42, Port: 10881}
	assert.Equal(t, "listening (generation 2, port 10881, pid 42)", s.String())

	s = DaemonStatus{State: DaemonFatal, Generation: 1, Port: 10881, LastError: "boom"}
	assert.Equal(t, "fatal (generation 1, port 10881)", s.String())

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"fatal","generation":1,"port":10881,"lastError":"boom"}`, string(out))
}

func TestDaemonStateUnmarshalText(t *testing.T) {
	var s DaemonStatus
	require.NoError(t, json.Unmarshal([]byte(`{"state":"already-serving","port":10881}`), &s))
	assert.Equal(t, DaemonAlreadyServing, s.State)

	assert.Error(t, json.Unmarshal([]byte(`{"state":"sleeping"}`), &s))
}
