package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)

	categories := registry.Categories()
	require.NotEmpty(t, categories)
	assert.Equal(t, DefaultCategoryID, categories[0].ID)

	_, ok := registry.CategoryByID(DefaultCategoryID)
	assert.True(t, ok)
	_, ok = registry.CategoryByID("missing")
	assert.False(t, ok)
}

func TestPolicyForAudioTool(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)

	policy, err := registry.PolicyFor("mp3-to-wav")
	require.NoError(t, err)
	assert.Equal(t, []string{".mp3"}, policy.Validation.AcceptedExtensions)
	assert.EqualValues(t, 100, policy.Validation.MaxSizeMB)
	assert.True(t, policy.Multiple)
	assert.Equal(t, "/api/convert/mp3-to-wav", policy.Endpoint)
	assert.Equal(t, ".wav", policy.OutputExtension)
	assert.Equal(t, "converted_files.zip", policy.ArchiveName)
}

func TestPolicyForPlaceholderAndUnknownTools(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)

	_, err = registry.PolicyFor("pdf-merge")
	assert.True(t, domain.IsKind(err, domain.ErrToolNotImplemented))

	_, err = registry.ToolByID("nope")
	assert.True(t, domain.IsKind(err, domain.ErrToolNotFound))
}

func TestCategoriesReturnsCopy(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)

	categories := registry.Categories()
	categories[0].ID = "mutated"
	assert.Equal(t, DefaultCategoryID, registry.Categories()[0].ID)
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	cases := map[string]string{
		"duplicate tool": `
categories:
  - id: a
    name: A
    tools:
      - {id: t, name: T, category: a, path: /t}
      - {id: t, name: T2, category: a, path: /t2}
`,
		"category mismatch": `
categories:
  - id: a
    name: A
    tools:
      - {id: t, name: T, category: b, path: /t}
`,
		"extension without dot": `
categories:
  - id: a
    name: A
    tools:
      - id: t
        name: T
        category: a
        path: /t
        policy:
          validation: {accept: ["mp3"], maxSizeMB: 10}
          endpoint: /api/convert/t
          outputExtension: .wav
`,
		"missing size cap": `
categories:
  - id: a
    name: A
    tools:
      - id: t
        name: T
        category: a
        path: /t
        policy:
          validation: {accept: [".mp3"]}
          endpoint: /api/convert/t
          outputExtension: .wav
`,
		"not yaml": "categories: [",
	}
	for name, raw := range cases {
		_, err := Parse([]byte(raw))
		assert.Errorf(t, err, "case %q", name)
	}
}

func TestSelectionStore(t *testing.T) {
	store := NewSelectionStore()
	assert.Equal(t, DefaultCategoryID, store.SelectedCategoryID())
	store.SetSelectedCategoryID("video-processing")
	assert.Equal(t, "video-processing", store.SelectedCategoryID())
}
