package types

import "strings"

// EndpointRole defines what kind of service an endpoint provides.
type EndpointRole string

const (
	// RoleRPC is a ledger JSON-RPC node.
	RoleRPC EndpointRole = "rpc"
	// RoleQuoteAPI is an aggregator API mirror.
	RoleQuoteAPI EndpointRole = "quote-api"
)

// String converts EndpointRole to string representation
func (r EndpointRole) String() string {
	return string(r)
}

// Endpoint is one interchangeable network endpoint.
//
// Fields:
// - URL: the base URL of the endpoint, without trailing slash.
// - Role: the service the endpoint provides.
// - Rank: the static priority, 0 is the most preferred.
type Endpoint struct {
	URL  string
	Role EndpointRole
	Rank int
}

// NewEndpoints converts an ordered URL list into ranked endpoints for a role.
// Trailing slashes are trimmed and blank entries are skipped.
func NewEndpoints(role EndpointRole, urls []string) []Endpoint {
	endpoints := make([]Endpoint, 0, len(urls))
	for _, url := range urls {
		url = strings.TrimRight(strings.TrimSpace(url), "/")
		if url == "" {
			continue
		}
		endpoints = append(endpoints, Endpoint{
			URL:  url,
			Role: role,
			Rank: len(endpoints),
		})
	}
	return endpoints
}

// IsZero reports whether the endpoint is unset.
func (e Endpoint) IsZero() bool {
	return e.URL == ""
}
