// Package docintel abstracts the remote document-analysis service behind a
// submit/poll contract. The core depends only on this capability; the wire
// protocol lives in the adapter packages below.
package docintel

import (
	"context"
	"encoding/json"
	"errors"
)

// Remote job statuses as reported by Poll.
type Status string

const (
	StatusNotStarted Status = "notStarted"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// SubmitRequest carries everything needed to start a remote analysis job.
// Exactly one of DocumentURL or Content is set.
type SubmitRequest struct {
	ModelID     string
	DocumentURL string
	Content     []byte
	ContentType string
	Locale      string
	Pages       []string
}

// PollResult is one observation of a remote job. Payload holds the raw
// result document when the remote reported one; ErrorDetail is the remote's
// failure description when Status is failed.
type PollResult struct {
	Status      Status
	Payload     json.RawMessage
	ErrorDetail string
}

// Client is the remote analysis capability. Submit returns an opaque remote
// reference used for all subsequent polls. Implementations must tolerate
// concurrent calls for different references.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Poll(ctx context.Context, remoteRef string) (PollResult, error)
}

// Submit/Poll error classes. Adapters wrap these so callers can branch with
// errors.Is without knowing the wire protocol.
var (
	ErrUnreachable     = errors.New("remote service unreachable")
	ErrInvalidDocument = errors.New("remote service rejected the document")
	ErrAuthFailed      = errors.New("remote service rejected credentials")
	ErrRateLimited     = errors.New("remote service rate limited the request")
)
