package catalog

import (
	_ "embed"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// DefaultCategoryID is selected before the user picks anything.
const DefaultCategoryID = "format-conversion"

type document struct {
	Categories []domain.Category `yaml:"categories"`
}

// Registry is an immutable, ordered view of categories and their tools.
type Registry struct {
	categories []domain.Category
	tools      map[string]domain.Tool
}

// Load parses the embedded catalog.
func Load() (*Registry, error) {
	return Parse(defaultCatalog)
}

func Parse(raw []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}

	r := &Registry{
		categories: doc.Categories,
		tools:      make(map[string]domain.Tool),
	}
	for _, category := range doc.Categories {
		if err := validateCategory(category); err != nil {
			return nil, fmt.Errorf("category %q: %w", category.ID, err)
		}
		for _, tool := range category.Tools {
			if _, dup := r.tools[tool.ID]; dup {
				return nil, fmt.Errorf("duplicate tool id %q", tool.ID)
			}
			r.tools[tool.ID] = tool
		}
	}
	return r, nil
}

func (r *Registry) Categories() []domain.Category {
	out := make([]domain.Category, len(r.categories))
	copy(out, r.categories)
	return out
}

func (r *Registry) CategoryByID(id string) (domain.Category, bool) {
	for _, category := range r.categories {
		if category.ID == id {
			return category, true
		}
	}
	return domain.Category{}, false
}

func (r *Registry) ToolByID(id string) (domain.Tool, error) {
	tool, ok := r.tools[id]
	if !ok {
		return domain.Tool{}, domain.WrapError(domain.ErrToolNotFound, "lookup tool", fmt.Errorf("id=%s", id))
	}
	return tool, nil
}

// PolicyFor returns the upload policy of a tool that has a working backend.
func (r *Registry) PolicyFor(id string) (domain.ToolPolicy, error) {
	tool, err := r.ToolByID(id)
	if err != nil {
		return domain.ToolPolicy{}, err
	}
	if !tool.Implemented() {
		return domain.ToolPolicy{}, domain.WrapError(domain.ErrToolNotImplemented, "lookup policy", fmt.Errorf("id=%s", id))
	}
	return *tool.Policy, nil
}

func validateCategory(c domain.Category) error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Name, validation.Required),
	); err != nil {
		return err
	}
	for _, tool := range c.Tools {
		if err := validateTool(tool, c.ID); err != nil {
			return fmt.Errorf("tool %q: %w", tool.ID, err)
		}
	}
	return nil
}

func validateTool(t domain.Tool, categoryID string) error {
	if err := validation.ValidateStruct(&t,
		validation.Field(&t.ID, validation.Required),
		validation.Field(&t.Name, validation.Required),
		validation.Field(&t.Category, validation.Required, validation.In(categoryID)),
		validation.Field(&t.Path, validation.Required),
	); err != nil {
		return err
	}
	if t.Policy == nil {
		return nil
	}
	p := t.Policy
	if err := validation.ValidateStruct(p,
		validation.Field(&p.Endpoint, validation.Required),
		validation.Field(&p.OutputExtension, validation.Required),
	); err != nil {
		return err
	}
	return p.Validation.Validate()
}
