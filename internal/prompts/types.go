// Package prompts holds the embedded prompt templates sent to the model,
// keyed hierarchically and hashed so recorded calls can be traced to the
// exact prompt text that produced them.
package prompts

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string `json:"key"`         // Hierarchical key: summarize.partial.user
	Text        string `json:"text"`        // The prompt text (Go template)
	Description string `json:"description"` // Human-readable description
	Hash        string `json:"hash"`        // SHA256 of Text
}
