package domain

type Tool struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Category    string      `json:"category" yaml:"category"`
	Path        string      `json:"path" yaml:"path"`
	Icon        string      `json:"icon,omitempty" yaml:"icon,omitempty"`
	Policy      *ToolPolicy `json:"policy,omitempty" yaml:"policy,omitempty"`
}

func (t Tool) Implemented() bool {
	return t.Policy != nil
}

type Category struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Tools       []Tool `json:"tools" yaml:"tools"`
}

// ToolPolicy is everything a tool page needs to drive an upload: what to accept, where to send it
// and how to name the result.
type ToolPolicy struct {
	Validation      ValidationPolicy `json:"validation" yaml:"validation"`
	Multiple        bool             `json:"multiple" yaml:"multiple"`
	Endpoint        string           `json:"endpoint" yaml:"endpoint"`
	OutputExtension string           `json:"outputExtension" yaml:"outputExtension"`
	ArchiveName     string           `json:"archiveName" yaml:"archiveName"`
}
