package polls

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindTransient Kind = iota
	KindNotFound
	KindClosed
	KindUnauthorized
	KindDuplicateDevice
	KindDuplicateIP
	KindRateLimited
	KindInvalid
)

var kindNames = map[Kind]string{
	KindTransient:       "UNAVAILABLE",
	KindNotFound:        "NOT_FOUND",
	KindClosed:          "CLOSED",
	KindUnauthorized:    "UNAUTHORIZED",
	KindDuplicateDevice: "ALREADY_VOTED_DEVICE",
	KindDuplicateIP:     "ALREADY_VOTED_IP",
	KindRateLimited:     "RATE_LIMITED",
	KindInvalid:         "INVALID",
}

// String is the state code clients branch on.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(k Kind, msg string) *Error {
	return &Error{Kind: k, Message: msg}
}

func transient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Message: msg, Err: err}
}

// KindOf classifies err. Errors that carry no kind are Transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrPollNotFound), errors.Is(err, ErrOptionNotFound):
		return KindNotFound
	case errors.Is(err, ErrPollClosed):
		return KindClosed
	case errors.Is(err, ErrFingerprintTaken):
		return KindDuplicateDevice
	case errors.Is(err, ErrIPTaken):
		return KindDuplicateIP
	case errors.Is(err, ErrInvitationUsed):
		return KindUnauthorized
	}
	return KindTransient
}

// Sentinels returned by Store implementations.
var (
	ErrPollNotFound     = errors.New("poll not found")
	ErrOptionNotFound   = errors.New("option not found")
	ErrPollClosed       = errors.New("poll closed")
	ErrFingerprintTaken = errors.New("fingerprint already voted on poll")
	ErrIPTaken          = errors.New("ip already voted on poll")
	ErrInvitationUsed   = errors.New("invitation missing or consumed")
)

var (
	errMissingFingerprint = newError(KindInvalid, "missing browser fingerprint")
	errMissingOption      = newError(KindInvalid, "missing option")
	errNotFound           = newError(KindNotFound, "poll not found")
	errOptionNotFound     = newError(KindNotFound, "option not found")
	errClosed             = newError(KindClosed, "poll is closed")
	errUnauthorized       = newError(KindUnauthorized, "a valid invitation is required")
	errWrongPassword      = newError(KindUnauthorized, "wrong password")
	errDuplicateDevice    = newError(KindDuplicateDevice, "already voted on this poll from this device")
	errDuplicateIP        = newError(KindDuplicateIP, "a vote was already recorded from this ip address")
	errRateLimited        = newError(KindRateLimited, "too many votes detected, try again in a few minutes")
)
