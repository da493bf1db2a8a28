package server

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultSkillPrice is charged when a skill sets no price
const DefaultSkillPrice = "$0.01"

var routeParam = regexp.MustCompile(`:([^/]+)`)

// Skill is a priced HTTP endpoint served by a SkillServer
type Skill struct {
	Name        string
	Description string
	// Endpoint is a gin route template such as "/balance/:address"
	Endpoint string
	// Method is GET or POST
	Method string
	// Price is a dollar string such as "$0.01"
	Price string
	// Example is shown in the catalog, defaulting to Endpoint
	Example string
	Handler gin.HandlerFunc
}

// SkillOptions overrides the defaults applied by NewSkill
type SkillOptions struct {
	Description string
	Endpoint    string
	Method      string
	Price       string
	Example     string
	Handler     gin.HandlerFunc
}

// NewSkill builds a skill. Description defaults to name, endpoint to
// "/name", method to GET and price to DefaultSkillPrice.
func NewSkill(name string, opts SkillOptions) Skill {
	s := Skill{
		Name:        name,
		Description: opts.Description,
		Endpoint:    opts.Endpoint,
		Method:      strings.ToUpper(opts.Method),
		Price:       opts.Price,
		Example:     opts.Example,
		Handler:     opts.Handler,
	}
	if s.Description == "" {
		s.Description = name
	}
	if s.Endpoint == "" {
		s.Endpoint = "/" + name
	}
	if s.Method == "" {
		s.Method = "GET"
	}
	if s.Price == "" {
		s.Price = DefaultSkillPrice
	}
	if s.Example == "" {
		s.Example = s.Endpoint
	}
	return s
}

// RouteKey is the payment route key, e.g. "GET /balance/[address]"
func (s Skill) RouteKey() string {
	return s.Method + " " + routeParam.ReplaceAllString(s.Endpoint, "[$1]")
}

// Params lists the path parameter names in endpoint order
func (s Skill) Params() []string {
	params := []string{}
	for _, match := range routeParam.FindAllStringSubmatch(s.Endpoint, -1) {
		params = append(params, match[1])
	}
	return params
}
