package apperr

type Kind string

type AppError struct {
	Kind      Kind
	PublicMsg string            // safe to show to the caller
	Fields    map[string]string // structured detail (deadline, remaining amount, current state)
	Err       error             // internal cause (for logs)
}
