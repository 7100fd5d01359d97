package mermaid

// SyntaxErrorLabel is shown to the reader when a diagram cannot be rendered.
const SyntaxErrorLabel = "chart has a syntax error and cannot be rendered"

// RenderFailure is what the client displays when the renderer rejects a
// diagram even after sanitizing: the renderer's raw error next to the
// original and cleaned sources.
type RenderFailure struct {
	Label       string  `json:"label"`
	EngineError string  `json:"engine_error"`
	Original    string  `json:"original"`
	Cleaned     string  `json:"cleaned"`
	Dialect     Dialect `json:"dialect"`
}

// NewRenderFailure builds the failure report for source. engineErr is kept
// verbatim.
func NewRenderFailure(source, engineErr string) RenderFailure {
	return RenderFailure{
		Label:       SyntaxErrorLabel,
		EngineError: engineErr,
		Original:    source,
		Cleaned:     Sanitize(source),
		Dialect:     DetectDialect(source),
	}
}
