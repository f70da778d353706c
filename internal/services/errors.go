package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedVersion = errors.New("malformed version")
	ErrFeedParse        = errors.New("feed parse error")
	ErrInsecureURL      = errors.New("insecure url")
	ErrIntegrity        = errors.New("integrity error")
	ErrDownload         = errors.New("download error")
	ErrInstall          = errors.New("install error")
	ErrFatal            = errors.New("fatal install failure")
	ErrConfiguration    = errors.New("configuration error")
	ErrSessionActive    = errors.New("update session already active")
)

// Kind labels a failure class. The orchestrator records it on the session and
// the notifier and CLI surface it to operators.
type Kind string

const (
	KindMalformedVersion Kind = "malformed_version"
	KindFeedParse        Kind = "feed_parse"
	KindInsecureURL      Kind = "insecure_url"
	KindIntegrity        Kind = "integrity"
	KindDownload         Kind = "download"
	KindInstall          Kind = "install"
	KindFatal            Kind = "fatal"
	KindConfiguration    Kind = "configuration"
	KindSessionActive    Kind = "session_active"
	KindUnknown          Kind = "unknown"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrDownload
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind maps an error chain to its failure class. ErrFatal dominates
// because a fatal chain usually also carries the marker of the step that
// triggered the rollback.
func FailureKind(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrFatal):
		return KindFatal
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, ErrInstall):
		return KindInstall
	case errors.Is(err, ErrDownload):
		return KindDownload
	case errors.Is(err, ErrFeedParse):
		return KindFeedParse
	case errors.Is(err, ErrInsecureURL):
		return KindInsecureURL
	case errors.Is(err, ErrMalformedVersion):
		return KindMalformedVersion
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrSessionActive):
		return KindSessionActive
	default:
		return KindUnknown
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
