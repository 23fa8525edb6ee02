package core

import "context"

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	reportKey contextKey = iota
)

// GetReport retrieves the validation report stored by a transport adapter.
//
// Example usage:
//
//	report, err := core.GetReport[*aadtoken.Report](ctx)
//	if err != nil {
//	    return err
//	}
func GetReport[T any](ctx context.Context) (T, error) {
	var zero T

	val := ctx.Value(reportKey)
	if val == nil {
		return zero, ErrReportNotFound
	}

	report, ok := val.(T)
	if !ok {
		return zero, NewValidationError(
			"report_type_mismatch",
			"report type assertion failed",
			nil,
		)
	}

	return report, nil
}

// SetReport stores a report in the context.
func SetReport(ctx context.Context, report any) context.Context {
	return context.WithValue(ctx, reportKey, report)
}

// HasReport checks if a report exists in the context without retrieving it.
func HasReport(ctx context.Context) bool {
	return ctx.Value(reportKey) != nil
}
