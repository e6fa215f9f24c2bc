package main

import (
	"flag"
	"fmt"
	"os"

	"flowlock/overlay"
	"flowlock/pkg/ringlog"
	"flowlock/source"
	"flowlock/tracking"

	"github.com/golang/glog"
)

const overlayHistory = 50 // Log lines kept for the terminal overlay

// globalDebugLogger is installed by installDebugLogger before a run starts
var globalDebugLogger *DebugLogger

// debugMsg is the global convenience function for unified debug logging
func debugMsg(component, message string, sessionID ...string) {
	if globalDebugLogger != nil {
		globalDebugLogger.debugMsg(component, message, sessionID...)
		return
	}
	glog.InfoDepth(1, formatMsg(component, message, sessionID...))
}

// debugMsgVerbose only outputs at -v=1 or higher
func debugMsgVerbose(component, message string, sessionID ...string) {
	if !glog.V(1) {
		return
	}
	debugMsg(component, message, sessionID...)
}

// DebugLogger sends component-tagged messages to glog and keeps the most
// recent ones for the terminal overlay
type DebugLogger struct {
	history *ringlog.Buffer
}

// NewDebugLogger creates a logger retaining historySize lines
func NewDebugLogger(historySize int) *DebugLogger {
	return &DebugLogger{history: ringlog.New(historySize)}
}

func (dl *DebugLogger) debugMsg(component, message string, sessionID ...string) {
	line := formatMsg(component, message, sessionID...)
	glog.InfoDepth(2, line)
	dl.history.Add(line)
}

// History returns the retained lines, oldest first
func (dl *DebugLogger) History() []string {
	return dl.history.Recent()
}

// installDebugLogger routes every package's debug output through dl
func installDebugLogger(dl *DebugLogger) {
	globalDebugLogger = dl
	tracking.SetDebugFunction(dl.debugMsg)
	source.SetDebugFunction(dl.debugMsg)
	overlay.SetDebugFunction(dl.debugMsg)
}

// formatMsg renders "[COMPONENT] message", adding the first eight characters
// of the session id when one is given
func formatMsg(component, message string, sessionID ...string) string {
	if len(sessionID) > 0 && sessionID[0] != "" {
		id := sessionID[0]
		if len(id) > 8 {
			id = id[:8]
		}
		return fmt.Sprintf("[%s][%s] %s", component, id, message)
	}
	return fmt.Sprintf("[%s] %s", component, message)
}

func main() {
	// Console logging unless the user asks glog for files
	flag.Set("logtostderr", "true")

	err := NewRootCommand().Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
