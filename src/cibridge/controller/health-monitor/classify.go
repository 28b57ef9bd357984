package healthmonitor

import (
	"strings"

	"github.com/uber/cibridge/src/cibridge/entity"
)

const _diagnosticPrefix = "!!"

type classifier struct {
	prefix string
	signal func(line string, rest string) entity.HealthSignal
}

// Order matters, the first matching prefix wins and the bare prefix must come last.
var _classifiers = []classifier{
	{
		prefix: "!!Daemon listening",
		signal: func(string, string) entity.HealthSignal {
			return entity.HealthSignal{Kind: entity.SignalListening}
		},
	},
	{
		prefix: "!!Updating indexes for ",
		signal: func(_ string, rest string) entity.HealthSignal {
			return entity.HealthSignal{Kind: entity.SignalIndexingStarted, Target: strings.TrimSpace(rest)}
		},
	},
	{
		prefix: "!!Updated indexes",
		signal: func(string, string) entity.HealthSignal {
			return entity.HealthSignal{Kind: entity.SignalIndexingFinished}
		},
	},
	{
		prefix: _diagnosticPrefix,
		signal: func(line string, _ string) entity.HealthSignal {
			return entity.HealthSignal{Kind: entity.SignalWarning, Text: line}
		},
	},
}

// Classify maps one daemon diagnostic line to its health signal. Lines without the diagnostic prefix carry none.
func Classify(line string) entity.HealthSignal {
	line = strings.TrimRight(line, "\r\n")
	for _, c := range _classifiers {
		if rest, ok := strings.CutPrefix(line, c.prefix); ok {
			return c.signal(line, rest)
		}
	}
	return entity.HealthSignal{Kind: entity.SignalNone}
}
