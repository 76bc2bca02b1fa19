package llm

import "context"

// Client sends one prompt and returns the model's raw text.
type Client interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

func (f ClientFunc) Send(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
