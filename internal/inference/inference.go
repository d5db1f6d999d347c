package inference

import "time"

// Message is a normalized representation of a chat message.
type Message struct {
	Role    string
	Content string
}

// Request represents a normalized inference request sent to a provider.
type Request struct {
	RequestID string
	Model     string
	Messages  []Message
	// MaxTokens caps the completion size. Zero means provider default.
	MaxTokens   int
	Temperature float64
	// Schema, when set, asks the provider for structured output matching it.
	Schema *Schema
}

// Schema describes a flat JSON object the provider must return.
type Schema struct {
	Name       string
	Properties []Property
}

// Property is one required field of a Schema.
type Property struct {
	Name string
	// Type is a JSON schema type name: "string", "boolean", "number".
	Type        string
	Description string
}

// Usage holds token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response represents a normalized inference response.
type Response struct {
	Message Message
	Usage   Usage
}

// Timings holds latency measurements for the stages of one gateway request.
type Timings struct {
	Entitlement time.Duration
	Inference   time.Duration
	Total       time.Duration
}
