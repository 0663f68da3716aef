package summarize

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/jackzampolin/reportsum/internal/prompts"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed single.tmpl
var singlePromptTmpl string

//go:embed partial.tmpl
var partialPromptTmpl string

//go:embed reduce.tmpl
var reducePromptTmpl string

var (
	singleTemplate  = template.Must(template.New("single").Parse(singlePromptTmpl))
	partialTemplate = template.Must(template.New("partial").Parse(partialPromptTmpl))
	reduceTemplate  = template.Must(template.New("reduce").Parse(reducePromptTmpl))
)

// Prompt keys
const (
	SystemPromptKey  = "summarize.system"
	SinglePromptKey  = "summarize.single.user"
	PartialPromptKey = "summarize.partial.user"
	ReducePromptKey  = "summarize.reduce.user"
)

// SystemPrompt returns the system prompt shared by every summarization call.
func SystemPrompt() string {
	return systemPrompt
}

// SinglePrompt builds the user prompt for a document that fits one chunk.
func SinglePrompt(sourceFile, content string) string {
	return render(singleTemplate, singlePromptTmpl, struct {
		SourceFile string
		Content    string
	}{sourceFile, content})
}

// PartialPrompt builds the map-phase prompt for one chunk.
func PartialPrompt(sourceFile, content string, part, parts int, pages string) string {
	return render(partialTemplate, partialPromptTmpl, struct {
		SourceFile string
		Content    string
		Part       int
		Parts      int
		Pages      string
	}{sourceFile, content, part, parts, pages})
}

// ReducePrompt builds the reduction prompt over all partial extractions.
func ReducePrompt(sourceFile, partials string, parts int) string {
	return render(reduceTemplate, reducePromptTmpl, struct {
		SourceFile string
		Partials   string
		Parts      int
	}{sourceFile, partials, parts})
}

func render(t *template.Template, raw string, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		// Fallback to raw template on error
		return raw
	}
	return buf.String()
}

// RegisterPrompts registers the summarization prompts.
func RegisterPrompts(r *prompts.Registry) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Analyst persona and output rules shared by all summarization calls",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         SinglePromptKey,
		Text:        singlePromptTmpl,
		Description: "Whole-document summary when the report fits one chunk",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         PartialPromptKey,
		Text:        partialPromptTmpl,
		Description: "Per-chunk partial extraction (map phase)",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         ReducePromptKey,
		Text:        reducePromptTmpl,
		Description: "Combines partial extractions into the final summary (reduce phase)",
	})
}
