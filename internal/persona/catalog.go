package persona

import (
	personaConfig "github.com/erg0nix/chorus/internal/config/personas"
)

// Catalog is an immutable snapshot of the persona directory.
type Catalog struct {
	byID  map[string]personaConfig.PersonaConfig
	order []string
}

// NewCatalog builds a catalog from already resolved personas; ids keep the given order.
func NewCatalog(personas ...personaConfig.PersonaConfig) *Catalog {
	catalog := &Catalog{byID: make(map[string]personaConfig.PersonaConfig, len(personas))}
	for _, p := range personas {
		if _, dup := catalog.byID[p.ID]; !dup {
			catalog.order = append(catalog.order, p.ID)
		}
		catalog.byID[p.ID] = p
	}
	return catalog
}

func (c *Catalog) Get(id string) (personaConfig.PersonaConfig, error) {
	p, ok := c.byID[id]
	if !ok {
		return personaConfig.PersonaConfig{}, &NotFoundError{ID: id, Available: c.IDs()}
	}
	return p, nil
}

func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}

func (c *Catalog) Len() int {
	return len(c.order)
}
