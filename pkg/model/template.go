package model

// Template is a workflow template: a named workflow schema with all
// references resolved, plus the optional parameters a caller must supply
// to run it.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      any    `json:"schema"`
	Parameters  any    `json:"parameters,omitempty"`
}

// Link is a hypermedia reference in a service response.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// ServiceDescriptor is returned by the service root.
type ServiceDescriptor struct {
	Name  string `json:"name"`
	Links []Link `json:"links"`
}

// TemplateSummary is one entry of the template listing.
type TemplateSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters,omitempty"`
	Links       []Link `json:"links"`
}

// TemplateListing is the body of the template listing.
type TemplateListing struct {
	Workflows []TemplateSummary `json:"workflows"`
}

// TemplateDocument is a full template as served by the API.
type TemplateDocument struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      any    `json:"schema"`
	Parameters  any    `json:"parameters,omitempty"`
	Links       []Link `json:"links"`
}
