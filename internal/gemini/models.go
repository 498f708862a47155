package gemini

// ModelSpec describes one model the invoker may call.
type ModelSpec struct {
	Name            string
	Description     string
	MaxOutputTokens int32
	SupportsTools   bool
}

// knownModels carries per-model limits. Models absent from the table still
// work, they just run with conservative defaults.
var knownModels = map[string]ModelSpec{
	"gemini-2.5-pro": {
		Description:     "2.5 Pro, strongest reasoning",
		MaxOutputTokens: 8192,
		SupportsTools:   true,
	},
	"gemini-2.5-flash": {
		Description:     "2.5 Flash, fast general model",
		MaxOutputTokens: 8192,
		SupportsTools:   true,
	},
	"gemini-2.5-pro-preview-05-06": {
		Description:     "2.5 Pro preview (2025-05-06)",
		MaxOutputTokens: 8192,
		SupportsTools:   true,
	},
	"gemini-2.5-flash-preview-05-20": {
		Description:     "2.5 Flash preview (2025-05-20)",
		MaxOutputTokens: 8192,
		SupportsTools:   true,
	},
	"gemini-1.5-pro-latest": {
		Description:     "1.5 Pro, latest revision",
		MaxOutputTokens: 8192,
		SupportsTools:   true,
	},
	"gemini-1.5-pro": {
		Description:     "1.5 Pro base model",
		MaxOutputTokens: 8192,
		SupportsTools:   true,
	},
	"gemini-1.5-flash-latest": {
		Description:     "1.5 Flash, latest revision",
		MaxOutputTokens: 8192,
		SupportsTools:   true,
	},
	"gemini-1.5-flash": {
		Description:     "1.5 Flash base model",
		MaxOutputTokens: 8192,
		SupportsTools:   true,
	},
	"gemini-1.5-flash-8b": {
		Description:     "1.5 Flash 8B small model",
		MaxOutputTokens: 8192,
		SupportsTools:   true,
	},
	"gemini-pro": {
		Description:     "1.0 Pro, separate quota pool",
		MaxOutputTokens: 2048,
		SupportsTools:   true,
	},
}

// LookupModel resolves a model name against the metadata table.
func LookupModel(name string) ModelSpec {
	if spec, ok := knownModels[name]; ok {
		spec.Name = name
		return spec
	}
	return ModelSpec{
		Name:            name,
		Description:     "unknown model",
		MaxOutputTokens: 8192,
		SupportsTools:   true,
	}
}

var defaultChainNames = []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-1.5-pro"}

// BuildChain resolves an ordered list of model names into a fallback chain.
// An empty list yields the default chain: strongest model first, cheaper
// fallbacks with separate quota behind it.
func BuildChain(names []string) []ModelSpec {
	if len(names) == 0 {
		names = defaultChainNames
	}
	chain := make([]ModelSpec, 0, len(names))
	for _, name := range names {
		chain = append(chain, LookupModel(name))
	}
	return chain
}

// DefaultChain returns the fallback chain used when none is configured.
func DefaultChain() []ModelSpec {
	return BuildChain(nil)
}
