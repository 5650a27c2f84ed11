package model

// PromptTemplate is a stored prompt the agents can render with variables.
type PromptTemplate struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// RenderedPrompt is the output of substituting variables into a template.
type RenderedPrompt struct {
	Name          string   `json:"prompt_name"`
	Content       string   `json:"processed_content"`
	VariablesUsed []string `json:"variables_used"`
}
