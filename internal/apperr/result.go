package apperr

// Result is a tagged value: either Ok(data) or Err(kind, message).
// Handlers build the response envelope from it instead of duck-typing
// loose maps.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{value: v} }

// Err wraps a failure.  A nil err is treated as an internal error.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = New(KindInternal, "", "")
	}
	return Result[T]{err: err}
}

// From builds a Result from the usual (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

func (r Result[T]) IsOk() bool { return r.err == nil }
func (r Result[T]) Value() T { return r.value }
func (r Result[T]) Error() error { return r.err }

// Unwrap returns the (value, error) pair.
func (r Result[T]) Unwrap() (T, error) { return r.value, r.err }
