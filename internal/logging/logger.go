// Package logging provides the shared logger the engine writes its
// lifecycle events to: serializer open, payload writes, dedup hits, legacy
// upgrades.
// Nothing in this package or its callers treats a log call as a control-flow
// decision point; logging never changes behavior.
package logging

import (
	"os"

	logger "github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// L is the engine's default logger. Host programs that want engine logs
// routed elsewhere should pass a serializer.Option overriding it rather than
// mutating this value from another goroutine.
var L = &logger.Logger{
	Out:   os.Stderr,
	Level: logger.InfoLevel,
	Formatter: &prefixed.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	},
}
