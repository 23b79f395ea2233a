package runner

// NewNoopLogger returns a Logger that discards everything, for callers that
// don't want Runner's diagnostics wired to anything.
func NewNoopLogger() Logger {
	return noopLogger{}
}
