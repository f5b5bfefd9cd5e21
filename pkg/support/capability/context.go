package capability

import "context"

type sessionKey struct{}

type sessionInfo struct {
	sessionID string
	runID     string
}

// WithSession tags ctx with the session and run being executed so adapters
// can attribute their calls.
func WithSession(ctx context.Context, sessionID, runID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionInfo{sessionID: sessionID, runID: runID})
}

// SessionFrom returns the ids set by WithSession, or empty strings.
func SessionFrom(ctx context.Context) (sessionID, runID string) {
	if ctx == nil {
		return "", ""
	}
	if v, ok := ctx.Value(sessionKey{}).(sessionInfo); ok {
		return v.sessionID, v.runID
	}
	return "", ""
}
