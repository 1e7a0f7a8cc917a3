package dispatch

// Outcome is the explicit result of a dispatch. Every path produces one:
// either the formatted answer, or a platform-safe fixed reply with the
// reason it was substituted. The handler performs a single match on the
// outcome to pick the final envelope; no error ever crosses the dispatcher
// boundary unformatted.
type Outcome struct {
	// Text is the display text. Never empty.
	Text string

	// Fallback reports whether Text is a fixed substitute rather than a
	// generated answer.
	Fallback bool

	// Reason names why the fallback was used: "empty_input",
	// "missing_credential", "timeout", "breaker_open", "provider_error".
	// Empty for generated answers.
	Reason string
}

func answer(text string) Outcome {
	return Outcome{Text: text}
}

func fallback(text, reason string) Outcome {
	return Outcome{Text: text, Fallback: true, Reason: reason}
}
