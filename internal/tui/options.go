package tui

// CardFieldConfig selects the secondary fields rendered on lead cards.
type CardFieldConfig struct {
	ShowOwner bool
	ShowScore bool
	ShowTags  bool
}

// Option configures a Model.
type Option func(*Model)

// DefaultCardFieldConfig shows owner and score.
func DefaultCardFieldConfig() CardFieldConfig {
	return CardFieldConfig{
		ShowOwner: true,
		ShowScore: true,
		ShowTags:  false,
	}
}

// WithCardFieldConfig overrides the card fields.
func WithCardFieldConfig(cfg CardFieldConfig) Option {
	return func(m *Model) {
		m.cardFields = cfg
	}
}

// WithTitle replaces the header title.
func WithTitle(title string) Option {
	return func(m *Model) {
		if title != "" {
			m.title = title
		}
	}
}
