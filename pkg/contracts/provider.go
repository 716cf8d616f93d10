package contracts

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Provider identifies the AI backend behind a route. Values outside the
// known set are carried verbatim and treated as unknown everywhere.
type Provider string

const (
	ProviderBedrock Provider = "bedrock"
	ProviderMCP     Provider = "mcp"
	ProviderGoogle  Provider = "google"
	ProviderMeta    Provider = "meta"
)

// KnownProviders is the closed set of providers with a compliance profile.
var KnownProviders = []Provider{ProviderBedrock, ProviderMCP, ProviderGoogle, ProviderMeta}

var providerAliases = map[string]Provider{
	"bedrock":       ProviderBedrock,
	"aws-bedrock":   ProviderBedrock,
	"aws_bedrock":   ProviderBedrock,
	"mcp":           ProviderMCP,
	"google":        ProviderGoogle,
	"gemini":        ProviderGoogle,
	"google-gemini": ProviderGoogle,
	"meta":          ProviderMeta,
	"llama":         ProviderMeta,
	"meta-llama":    ProviderMeta,
}

// Known reports whether p has a compliance profile.
func (p Provider) Known() bool {
	for _, k := range KnownProviders {
		if p == k {
			return true
		}
	}
	return false
}

// ParseProvider maps a free-form hint to a Provider. Hints are NFKC
// normalized and case folded before alias lookup. An unrecognised hint is
// returned in its normalized form and reports Known() == false.
// ParseProvider never fails.
func ParseProvider(hint string) Provider {
	s := strings.TrimSpace(norm.NFKC.String(hint))
	s = cases.Fold().String(s)
	if p, ok := providerAliases[s]; ok {
		return p
	}
	return Provider(s)
}
