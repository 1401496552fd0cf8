package campaign

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrDonationExists is returned by the ledger when a row with the same
	// origin reference already exists. Callers treat it as a duplicate
	// delivery, not a failure.
	ErrDonationExists = Statusf(409, "Donation already recorded for this origin reference")

	// ErrRateUnavailable means the rate oracle could not produce a positive
	// exchange rate for the requested pair.
	ErrRateUnavailable = Statusf(502, "Exchange rate unavailable")
)

var _ error = &statusError{}

type statusError struct {
	Code int
	Text string

	WrappedError error
}

func (s *statusError) LogValue() slog.Value {
	if s == nil {
		return slog.Value{}
	}
	return slog.StringValue(s.Text)
}

func (s *statusError) Error() string {
	return s.Text
}

func (s *statusError) Unwrap() error {
	return s.WrappedError
}

func (s *statusError) Is(target error) bool {
	if err, ok := target.(*statusError); ok {
		return err.Text == s.Text
	}
	return false
}

func Statusf(status int, format string, args ...any) error {
	return &statusError{Code: status, Text: fmt.Sprintf(format, args...)}
}

func ErrorCode(err error) int {
	if err == nil {
		return 200
	}
	var err2 *statusError
	if errors.As(err, &err2) {
		return err2.Code
	}
	return 500
}
