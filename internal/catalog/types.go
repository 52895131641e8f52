// Package catalog generates, indexes and filters the in-session API catalog.
package catalog

import "strings"

// Method is an HTTP method of a catalogued API.
type Method string

// Methods.
const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodPatch  Method = "PATCH"
)

// Methods lists every valid method in generation order.
var Methods = []Method{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch}

// ParseMethod normalizes s and reports whether it is a valid method.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	for _, valid := range Methods {
		if m == valid {
			return m, true
		}
	}
	return "", false
}

// Status is the lifecycle status of a catalogued API.
type Status string

// Statuses.
const (
	StatusActive     Status = "active"
	StatusBeta       Status = "beta"
	StatusDeprecated Status = "deprecated"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusActive, StatusBeta, StatusDeprecated}

// ParseStatus normalizes s and reports whether it is a valid status.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range Statuses {
		if st == valid {
			return st, true
		}
	}
	return "", false
}

// API describes one catalogued API. Values are immutable once generated;
// everything outside the catalog holds copies or ids.
type API struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Description   string `json:"description" yaml:"description"`
	Category      string `json:"category" yaml:"category"`
	Endpoint      string `json:"endpoint" yaml:"endpoint"`
	Method        Method `json:"method" yaml:"method"`
	AuthRequired  bool   `json:"authRequired" yaml:"authRequired"`
	Status        Status `json:"status" yaml:"status"`
	RateLimit     string `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	Documentation string `json:"documentation,omitempty" yaml:"documentation,omitempty"`
}

// IsActive reports whether the API may be selected by the router.
func (a API) IsActive() bool {
	return a.Status == StatusActive
}

// CategoryCount is one row of the category index.
type CategoryCount struct {
	Category string `json:"category" yaml:"category"`
	Count    int    `json:"count" yaml:"count"`
}

// Categories is the fixed category list used for generation and routing.
var Categories = []string{
	"Weather",
	"Finance",
	"Social Media",
	"Data & Analytics",
	"AI & Machine Learning",
	"Maps & Geolocation",
	"E-commerce",
	"Communication",
	"Entertainment",
	"Health & Fitness",
	"News & Media",
	"Development Tools",
	"Transportation",
	"Food & Recipes",
	"Sports",
	"Gaming",
	"Education",
	"Real Estate",
	"IoT & Smart Home",
	"Security",
}

// IsCategory reports whether label is one of Categories, matched exactly.
func IsCategory(label string) bool {
	for _, c := range Categories {
		if c == label {
			return true
		}
	}
	return false
}

// DefaultSize is the number of entries requested per session.
const DefaultSize = 1000
