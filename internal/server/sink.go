package server

import (
	"knockknock/internal/protocol"
	"knockknock/util"
)

// LogSink logs each line a client sends at verbose level.  Session
// failures are logged by the Listener, not here.
func LogSink(logger *util.Logger) protocol.Sink {
	return protocol.SinkFuncs{
		OnLine: func(line string) { logger.Verbose("client: %s", line) },
	}
}
