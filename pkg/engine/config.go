package engine

// Fixed user-facing messages.
const (
	// RefusalBody is returned with status 200 for unsafe or profane queries.
	RefusalBody = "I am sorry, I may not be able to answer this question."

	// UnavailableBody is returned when the answer could not be grounded.
	UnavailableBody = "I am sorry, I may not be able to answer at this time."

	// ErrorBodyPrefix precedes the rendered PipelineError of a failed run.
	ErrorBodyPrefix = "Error Occurred: "
)

// Config holds orchestration settings.
type Config struct {
	// MaxTurns is the largest history a session may carry into a request.
	// A longer history is cleared first. Zero or negative means 8.
	MaxTurns int

	// AllowOrigin is written to the CORS header of every result.
	// Empty means "*".
	AllowOrigin string

	// ErrorStatus is the statusCode of failed runs. Zero means 400.
	ErrorStatus int
}

func (c Config) maxTurns() int {
	if c.MaxTurns <= 0 {
		return 8
	}
	return c.MaxTurns
}

func (c Config) errorStatus() int {
	if c.ErrorStatus <= 0 {
		return 400
	}
	return c.ErrorStatus
}
