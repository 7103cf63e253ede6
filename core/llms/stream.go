package llms

import "context"

// Stream is a lazily-executed streaming generation. Chunks issues the
// request and yields token deltas in arrival order; the iterator stops when
// generation completes, the context is cancelled, or an error is yielded.
type Stream interface {
	Chunks(context.Context) func(func(string, error) bool)
}

// Response is a completed generation from the language model.
type Response struct {
	Content string
}

// Chunks yields the whole content as a single segment, so a non-streaming
// generation can feed the same consumers as a streamed one.
func (r *Response) Chunks(ctx context.Context) func(func(string, error) bool) {
	return func(yield func(string, error) bool) {
		if ctx.Err() != nil {
			return
		}
		yield(r.Content, nil)
	}
}
