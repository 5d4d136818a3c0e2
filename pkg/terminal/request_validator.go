package terminal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/antibyte/retrofunge/pkg/befunge"
	"github.com/antibyte/retrofunge/pkg/shared"
)

const (
	// MaxContentLength leaves room for CRLF line endings on every row
	MaxContentLength = (befunge.Width + 2) * befunge.Height
	MaxNameLength    = 64
	MaxStepCount     = 100000
)

var (
	ErrRequestTooLarge   = errors.New("request too large")
	ErrUnknownRequest    = errors.New("unknown request type")
	ErrContentTooLong    = errors.New("program text too long")
	ErrInvalidStepCount  = errors.New("invalid step count")
	ErrInvalidName       = errors.New("invalid program name")
	ErrMissingProgramID  = errors.New("program id required")
	ErrUnexpectedPayload = errors.New("trailing data after request")
)

var knownRequests = map[shared.RequestType]bool{
	shared.RequestLoad:      true,
	shared.RequestStep:      true,
	shared.RequestRun:       true,
	shared.RequestStop:      true,
	shared.RequestState:     true,
	shared.RequestSave:      true,
	shared.RequestOpen:      true,
	shared.RequestList:      true,
	shared.RequestDelete:    true,
	shared.RequestKeepalive: true,
}

// RequestValidator decodes and checks client requests
type RequestValidator struct {
	MaxRequestSize int
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{MaxRequestSize: 16 * 1024}
}

// ParseRequest strictly decodes data into a Request and validates its fields
func (v *RequestValidator) ParseRequest(data []byte) (shared.Request, error) {
	var req shared.Request
	if len(data) > v.MaxRequestSize {
		return req, ErrRequestTooLarge
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return req, fmt.Errorf("invalid JSON: %w", err)
	}
	if decoder.More() {
		return req, ErrUnexpectedPayload
	}

	return req, v.validate(&req)
}

func (v *RequestValidator) validate(req *shared.Request) error {
	if !knownRequests[req.Type] {
		return fmt.Errorf("%w: %q", ErrUnknownRequest, req.Type)
	}
	if len(req.Content) > MaxContentLength {
		return ErrContentTooLong
	}

	switch req.Type {
	case shared.RequestStep:
		if req.Count == 0 {
			req.Count = 1
		}
		if req.Count < 0 || req.Count > MaxStepCount {
			return ErrInvalidStepCount
		}
	case shared.RequestSave:
		req.Name = strings.TrimSpace(req.Name)
		if !validProgramName(req.Name) {
			return ErrInvalidName
		}
	case shared.RequestOpen, shared.RequestDelete:
		if req.ProgramID == "" {
			return ErrMissingProgramID
		}
	}
	return nil
}

func validProgramName(name string) bool {
	if name == "" || len(name) > MaxNameLength {
		return false
	}
	for _, r := range name {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' || r == ' ') {
			return false
		}
	}
	return true
}
