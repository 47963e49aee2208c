package agent

import "context"

// Provider is a directory listing for one candidate provider.
type Provider struct {
	ID     string
	Name   string
	Email  string
	Market string
}

// Directory finds candidate providers for a campaign. Implementations wrap
// whatever provider database the deployment has.
type Directory interface {
	Find(ctx context.Context, market, providerType string, limit int) ([]Provider, error)
}

// StaticDirectory serves a fixed provider list, filtered by market. It backs
// tests and demo runs.
type StaticDirectory struct {
	providers []Provider
}

// NewStaticDirectory builds a directory over the given listings.
func NewStaticDirectory(providers ...Provider) *StaticDirectory {
	return &StaticDirectory{providers: providers}
}

// Find returns up to limit providers in the market.
func (d *StaticDirectory) Find(_ context.Context, market, _ string, limit int) ([]Provider, error) {
	var out []Provider
	for _, p := range d.providers {
		if p.Market != market {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
