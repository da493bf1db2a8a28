package server

// Manifest metadata
const (
	ManifestVersion = "1.0.0"
	ManifestAuthor  = "SkillPay"
	ManifestLicense = "MIT"
)

// Manifest is a declarative description of the server for catalog ingestion
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Author      string          `json:"author"`
	License     string          `json:"license"`
	Skills      []ManifestSkill `json:"skills"`
	X402        ManifestPayment `json:"x402"`
}

// ManifestSkill is one skill in a Manifest
type ManifestSkill struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Endpoint    string      `json:"endpoint"`
	Method      string      `json:"method"`
	Price       string      `json:"price"`
	Currency    string      `json:"currency"`
	Network     string      `json:"network"`
	InputSchema InputSchema `json:"inputSchema"`
}

// ManifestPayment is the payment metadata of a Manifest
type ManifestPayment struct {
	Facilitator  string `json:"facilitator"`
	Network      string `json:"network"`
	PaymentToken string `json:"paymentToken"`
}

// InputSchema is a JSON schema inferred from a skill's path parameters
type InputSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required"`
}

// SchemaProperty describes one input
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Manifest describes every registered skill
func (s *SkillServer) Manifest(name, description string) Manifest {
	skills := s.Skills()
	manifest := Manifest{
		Name:        name,
		Version:     ManifestVersion,
		Description: description,
		Author:      ManifestAuthor,
		License:     ManifestLicense,
		Skills:      make([]ManifestSkill, 0, len(skills)),
		X402: ManifestPayment{
			Facilitator:  s.config.FacilitatorURL,
			Network:      s.config.Network,
			PaymentToken: Currency,
		},
	}
	for _, skill := range skills {
		manifest.Skills = append(manifest.Skills, ManifestSkill{
			Name:        skill.Name,
			Description: skill.Description,
			Endpoint:    skill.Endpoint,
			Method:      skill.Method,
			Price:       skill.Price,
			Currency:    Currency,
			Network:     s.config.Network,
			InputSchema: InferSchema(skill),
		})
	}
	return manifest
}

// InferSchema derives an object schema with one required string per path parameter
func InferSchema(skill Skill) InputSchema {
	params := skill.Params()
	schema := InputSchema{
		Type:       "object",
		Properties: make(map[string]SchemaProperty, len(params)),
		Required:   params,
	}
	for _, param := range params {
		schema.Properties[param] = SchemaProperty{Type: "string", Description: param}
	}
	return schema
}
