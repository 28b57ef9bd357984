// Package entity contains the domain types shared by the cibridge controllers.
package entity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"
)

// Command names the daemon operation requested by the mode query parameter.
type Command string

const (
	// CommandCompletions asks for completion candidates at a position.
	CommandCompletions Command = "completions"
	// CommandGotoDefinition asks for the definition sites of the symbol at a position.
	CommandGotoDefinition Command = "goto_definitions"
)

// Valid reports whether the daemon understands the command.
func (c Command) Valid() bool {
	return c == CommandCompletions || c == CommandGotoDefinition
}

// Position is a zero-based cursor location.
type Position struct {
	Row    int `json:"row" zap:"row"`
	Column int `json:"column" zap:"column"`
}

// PendingRequest is a single code intelligence request on its way to the daemon.
type PendingRequest struct {
	Command  Command           `json:"command" zap:"command"`
	Path     string            `json:"path" zap:"path"`
	Position Position          `json:"position" zap:"position"`
	Document string            `json:"-" zap:"-"`
	Options  map[string]string `json:"options,omitempty" zap:"options"`

	// Retried is set once the request has triggered a daemon respawn.
	Retried bool `json:"-" zap:"retried"`
}

// LinePrefix returns the text of the cursor line up to the cursor column. The column counts UTF-16 code units, as LSP positions do.
func (r *PendingRequest) LinePrefix() string {
	if r == nil {
		return ""
	}
	rest := r.Document
	for row := 0; row < r.Position.Row; row++ {
		var found bool
		if _, rest, found = strings.Cut(rest, "\n"); !found {
			return ""
		}
	}
	line, _, _ := strings.Cut(rest, "\n")

	units := 0
	for i, c := range line {
		n := utf16.RuneLen(c)
		if n < 0 {
			n = 1
		}
		if units+n > r.Position.Column {
			return line[:i]
		}
		units += n
	}
	return line
}

// Result is a successful daemon exchange.
type Result struct {
	Payload    json.RawMessage `json:"payload"`
	RoundTrip  time.Duration   `json:"roundTrip"`
	ServerTime time.Duration   `json:"serverTime"`
}

// CompletionCandidate is one element of a completions payload.
type CompletionCandidate struct {
	Name        string `json:"name"`
	ReplaceText string `json:"replaceText,omitempty"`
	Meta        string `json:"meta,omitempty"`
	Doc         string `json:"doc,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// DefinitionSite is one element of a goto_definitions payload. Row is one-based.
type DefinitionSite struct {
	Path   string `json:"path"`
	Row    int    `json:"row"`
	Column int    `json:"column"`
}

// HealthSignalKind tags a HealthSignal.
type HealthSignalKind int

const (
	// SignalNone is returned for lines that carry no health information.
	SignalNone HealthSignalKind = iota
	// SignalListening means the daemon accepts requests.
	SignalListening
	// SignalIndexingStarted means the daemon began indexing Target.
	SignalIndexingStarted
	// SignalIndexingFinished means the daemon finished indexing.
	SignalIndexingFinished
	// SignalWarning carries a daemon diagnostic in Text.
	SignalWarning
)

func (k HealthSignalKind) String() string {
	switch k {
	case SignalListening:
		return "listening"
	case SignalIndexingStarted:
		return "indexing-started"
	case SignalIndexingFinished:
		return "indexing-finished"
	case SignalWarning:
		return "warning"
	default:
		return "none"
	}
}

// HealthSignal is the meaning of one daemon diagnostic line.
type HealthSignal struct {
	Kind   HealthSignalKind
	Target string
	Text   string
}

// DaemonState is the supervisor's view of the daemon.
type DaemonState int

const (
	DaemonAbsent DaemonState = iota
	DaemonStarting
	DaemonListening
	DaemonAlreadyServing
	DaemonFatal
	DaemonSpawnFailed
)

func (s DaemonState) String() string {
	switch s {
	case DaemonStarting:
		return "starting"
	case DaemonListening:
		return "listening"
	case DaemonAlreadyServing:
		return "already-serving"
	case DaemonFatal:
		return "fatal"
	case DaemonSpawnFailed:
		return "spawn-failed"
	default:
		return "absent"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s DaemonState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *DaemonState) UnmarshalText(text []byte) error {
	for state := DaemonAbsent; state <= DaemonSpawnFailed; state++ {
		if state.String() == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown daemon state %q", text)
}

// DaemonStatus is a snapshot of the supervised daemon.
type DaemonStatus struct {
	State      DaemonState `json:"state"`
	Generation uint64      `json:"generation"`
	PID        int         `json:"pid,omitempty"`
	Port       int         `json:"port"`
	MemoryRSS  uint64      `json:"memoryRSS,omitempty"`
	LastError  string      `json:"lastError,omitempty"`
}

// String implements fmt.Stringer.
func (s DaemonStatus) String() string {
	if s.PID == 0 {
		return fmt.Sprintf("%s (generation %d, port %d)", s.State, s.Generation, s.Port)
	}
	return fmt.Sprintf("%s (generation %d, port %d, pid %d)", s.State, s.Generation, s.Port, s.PID)
}
