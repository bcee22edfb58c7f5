package model

// LoginResult is what LoginFlow reports back to the client.
type LoginResult struct {
	Success                 bool            `json:"success"`
	UserName                string          `json:"userName"`
	Root                    *RootRef        `json:"root,omitempty"`
	Preferences             UserPreferences `json:"preferences"`
	HomeNodeOverride        string          `json:"homeNodeOverride,omitempty"`
	AnonUserLandingPageNode string          `json:"anonUserLandingPageNode,omitempty"`
	Timezone                string          `json:"timezone,omitempty"`
	TimezoneAbbrev          string          `json:"timezoneAbbrev,omitempty"`
}

// MessageResult is a plain acknowledgment.
type MessageResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
