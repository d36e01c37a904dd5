// classifier/pkg/logging/errors.go

package logging

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

type ErrorType string

const (
	ErrorTypeUnparsableRule   ErrorType = "UNPARSABLE_RULE"
	ErrorTypeSourceUnreadable ErrorType = "SOURCE_UNREADABLE"
	ErrorTypeWatchSetup       ErrorType = "WATCH_SETUP"
	ErrorTypeStore            ErrorType = "STORE"
	ErrorTypeConfig           ErrorType = "CONFIG"
)

type ClassifierError struct {
	Type    ErrorType
	Message string
	Err     error
	Fields  map[string]interface{}
}

func (e *ClassifierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}

func NewError(errType ErrorType, message string, err error, fields map[string]interface{}) *ClassifierError {
	return &ClassifierError{
		Type:    errType,
		Message: message,
		Err:     err,
		Fields:  fields,
	}
}

// IsType reports whether err wraps a ClassifierError of the given type.
func IsType(err error, errType ErrorType) bool {
	var cerr *ClassifierError
	return errors.As(err, &cerr) && cerr.Type == errType
}

func LogError(logger zerolog.Logger, err error) {
	var cerr *ClassifierError
	if !errors.As(err, &cerr) {
		logger.Error().Err(err).Msg(err.Error())
		return
	}

	event := logger.Error().Err(cerr.Err).
		Str("error_type", string(cerr.Type))

	for k, v := range cerr.Fields {
		event = event.Interface(k, v)
	}

	event.Msg(cerr.Message)
}
