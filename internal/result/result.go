package result

import "fmt"

// Kind classifies why an operation did not produce a value.
type Kind string

const (
	KindNone               Kind = ""
	KindInvalidInput       Kind = "invalid_input"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindNetwork            Kind = "network"
	KindCancelled          Kind = "cancelled"
	KindOAuth              Kind = "oauth"
	KindStorage            Kind = "storage"
	KindInternal           Kind = "internal"
)

// Result is the outcome of login, signup, OAuth sign-in and tenant
// operations. A zero Kind means success.
type Result[T any] struct {
	Value   T
	Kind    Kind
	Message string
}

func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

func Fail[T any](kind Kind, message string) Result[T] {
	if kind == KindNone {
		kind = KindInternal
	}
	return Result[T]{Kind: kind, Message: message}
}

// Partial reports a failure that still carries a usable value.
func Partial[T any](value T, kind Kind, message string) Result[T] {
	r := Fail[T](kind, message)
	r.Value = value
	return r
}

func (r Result[T]) OK() bool {
	return r.Kind == KindNone
}

// Cancelled reports a user-initiated abort. It is not treated as an error.
func (r Result[T]) Cancelled() bool {
	return r.Kind == KindCancelled
}

// Err returns nil on success and on cancellation.
func (r Result[T]) Err() error {
	if r.OK() || r.Cancelled() {
		return nil
	}
	return &Error{Kind: r.Kind, Message: r.Message}
}

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
