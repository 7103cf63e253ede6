package llms

// PromptOptions carries everything a provider needs to build a request: the
// persona instructions and the ordered conversation history.
type PromptOptions struct {
	Instructions string
	Turns        []Turn
}

type PromptOption func(*PromptOptions)

// WithInstructions sets the system/persona preamble for the request.
func WithInstructions(instructions string) PromptOption {
	return func(o *PromptOptions) { o.Instructions = instructions }
}

// WithTurns supplies the ordered transcript used as context.
func WithTurns(turns []Turn) PromptOption {
	return func(o *PromptOptions) { o.Turns = turns }
}
