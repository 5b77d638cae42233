package billing

import "errors"

// Result is the uniform shape every caller-facing operation returns.
// Operations never panic or propagate raw errors past this boundary: Error
// carries a user-facing message, and processor-side detail stays in the
// server logs.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func fail[T any](err error) Result[T] {
	return Result[T]{Error: userMessage(err)}
}

// userFacing lists errors whose text is safe to show to callers. Anything
// else is collapsed into a generic failure so processor and infrastructure
// detail never leaks to the UI.
var userFacing = []error{
	ErrUnknownProduct,
	ErrProductNotConfigured,
	ErrReturnURLNotSet,
	ErrPriceNotFound,
	ErrCustomerMismatch,
	ErrNotSubscribed,
	ErrNoBillingAccount,
	ErrRateLimited,
	ErrNoPeriodBoundary,
}

func userMessage(err error) string {
	for _, sentinel := range userFacing {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "billing operation failed"
}
