package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
)

var (
	// ErrMissingCredential is returned when no API credential is configured
	ErrMissingCredential = errors.New("api credential is missing")

	// ErrPermissionDenied is returned when microphone access is refused
	ErrPermissionDenied = errors.New("microphone access denied")

	// ErrDeviceUnavailable is returned when an audio device context cannot be created or resumed
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrSessionActive is returned when a call is started while another is still live
	ErrSessionActive = errors.New("a call is already in progress")

	// ErrSessionClosed is returned when the call was torn down while waiting
	ErrSessionClosed = errors.New("live session closed")

	// ErrHandshakeTimeout is returned when the remote session never signals open
	ErrHandshakeTimeout = errors.New("live session handshake timed out")

	// ErrTransport is returned when the remote session fails
	ErrTransport = errors.New("live session transport failed")

	// ErrChatFailed is returned when the text chat round trip fails
	ErrChatFailed = errors.New("chat request failed")

	// ErrTooManyToolRounds is returned when the chat keeps requesting tools
	ErrTooManyToolRounds = errors.New("too many tool rounds")

	// ErrNilProvider is returned when a required provider is nil
	ErrNilProvider = errors.New("required provider is nil")

	// ErrClosed is returned after the orchestrator has been closed
	ErrClosed = errors.New("orchestrator closed")
)

// ErrorKind is the category of a session failure.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindPermission    ErrorKind = "permission"
	KindDevice        ErrorKind = "device"
	KindTransport     ErrorKind = "transport"
)

var userMessages = map[ErrorKind]string{
	KindConfiguration: "API Key is missing. Please check your configuration.",
	KindPermission:    "Microphone access is required to start a call.",
	KindDevice:        "Audio device could not be started.",
	KindTransport:     "Connection Failed. Please try again.",
}

// SessionError pairs an internal cause with the message shown to the user.
type SessionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func newSessionError(kind ErrorKind, err error) *SessionError {
	return &SessionError{Kind: kind, Message: userMessages[kind], Err: err}
}

// isNetworkError reports failures worth dropping a cached chat handle for.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &netErr) ||
		errors.As(err, &urlErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, ErrTransport)
}
