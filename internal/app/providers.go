package app

// ProviderInfo describes one configured provider.
type ProviderInfo struct {
	Name string
	Type string
	// Model is the configured default, informational only.
	Model string
	// HasKey reports whether an API key resolved. Stub providers need none.
	HasKey bool
}

// ListProviders returns the configured providers in file order.
func (a *App) ListProviders() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(a.project.Providers))
	for _, p := range a.project.Providers {
		out = append(out, ProviderInfo{
			Name:   p.Name,
			Type:   p.Type,
			Model:  p.Model,
			HasKey: p.ResolveAPIKey() != "",
		})
	}
	return out
}
