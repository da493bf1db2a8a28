package server

// Currency is the stablecoin every skill is priced in
const Currency = "USDC"

// CatalogEntry describes one skill for discovery
type CatalogEntry struct {
	Endpoint    string `json:"endpoint"`
	Method      string `json:"method"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Network     string `json:"network"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// Catalog is the free listing served at GET /catalog
type Catalog struct {
	Skills  []CatalogEntry `json:"skills"`
	PayTo   string         `json:"payTo"`
	Network string         `json:"network"`
}

// Catalog lists every registered skill
func (s *SkillServer) Catalog() Catalog {
	skills := s.Skills()
	catalog := Catalog{
		Skills:  make([]CatalogEntry, 0, len(skills)),
		PayTo:   s.config.PayTo,
		Network: s.config.Network,
	}
	for _, skill := range skills {
		catalog.Skills = append(catalog.Skills, CatalogEntry{
			Endpoint:    skill.Endpoint,
			Method:      skill.Method,
			Price:       skill.Price,
			Currency:    Currency,
			Network:     s.config.Network,
			Description: skill.Description,
			Example:     skill.Example,
		})
	}
	return catalog
}
