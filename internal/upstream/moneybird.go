package upstream

import (
	"golang.org/x/oauth2"
)

// Endpoint defines the OAuth2 endpoints for the Moneybird accounting API.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://moneybird.com/oauth/authorize",
	TokenURL:  "https://moneybird.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// DefaultAPIBaseURL is the base URL of the upstream resource API.
const DefaultAPIBaseURL = "https://moneybird.com/api/v2"

// Pagination bounds for resource API calls. The upstream caps response
// payload size, so page sizes are clamped rather than passed through.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)
