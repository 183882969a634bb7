package domain

// DefaultShowMilliseconds is used whenever the preference has never been written.
const DefaultShowMilliseconds = true

// Preferences holds the user-facing display settings.
type Preferences struct {
	ShowMilliseconds bool `json:"show_milliseconds"`
}

// DefaultPreferences returns preferences with every field at its default.
func DefaultPreferences() Preferences {
	return Preferences{ShowMilliseconds: DefaultShowMilliseconds}
}
