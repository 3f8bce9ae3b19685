package domain

import "strings"

// Category is one label of the fixed news taxonomy.
type Category string

const (
	CategoryAll         Category = "Alle"
	CategoryPolitics    Category = "Politik"
	CategoryEconomy     Category = "Økonomi"
	CategorySports      Category = "Sport"
	CategoryEnvironment Category = "Miljø"
	CategoryTechnology  Category = "Teknologi"
)

// FallbackSummary is stored when summarisation ultimately fails.
const FallbackSummary = "Kunne ikke generere resumé."

var taxonomy = []Category{
	CategoryAll,
	CategoryPolitics,
	CategoryEconomy,
	CategorySports,
	CategoryEnvironment,
	CategoryTechnology,
}

// Taxonomy returns the categories in their fixed matching order.
func Taxonomy() []Category {
	out := make([]Category, len(taxonomy))
	copy(out, taxonomy)
	return out
}

// Valid reports whether c belongs to the taxonomy.
func (c Category) Valid() bool {
	for _, known := range taxonomy {
		if c == known {
			return true
		}
	}
	return false
}

// ResolveCategory maps free-form model output onto the taxonomy.
// The first member (in taxonomy order) that is contained in the reply, or that
// contains the reply, wins; anything else resolves to CategoryAll.
func ResolveCategory(raw string) Category {
	reply := strings.ToLower(strings.TrimSpace(strings.NewReplacer(`"`, "", "'", "", "`", "").Replace(raw)))
	reply = strings.TrimSpace(strings.TrimRight(reply, ".!"))
	if reply == "" {
		return CategoryAll
	}

	for _, c := range taxonomy {
		name := strings.ToLower(string(c))
		if strings.Contains(reply, name) || strings.Contains(name, reply) {
			return c
		}
	}
	return CategoryAll
}
