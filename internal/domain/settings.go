package domain

// Provider is an external judge endpoint registered by an admin.
type Provider struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
	URL   string `json:"url"`
}

// Model is a judge model belonging to a provider; at most one is selected.
type Model struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Selected   bool   `json:"selected"`
	ProviderID int    `json:"provider_id"`
}

// JudgeSettings is the singleton tuning row for the judge.
type JudgeSettings struct {
	Temperature float64 `json:"temperature"`
	Prompt      string  `json:"prompt"`
}
