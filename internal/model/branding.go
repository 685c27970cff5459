package model

// Branding holds per-organization cosmetics served to the UI layer. The
// values are fetched from the remote store when online and cached in the
// local kv table under "branding:<orgId|default>".
type Branding struct {
	AppName       string `json:"appName,omitempty"`
	PrimaryColor  string `json:"primaryColor,omitempty"`
	AccentColor   string `json:"accentColor,omitempty"`
	LogoURL       string `json:"logoUrl,omitempty"`
	TermsLabel    string `json:"termsLabel,omitempty"`
	BookingsLabel string `json:"bookingsLabel,omitempty"`
}

// DefaultBranding is applied when no organization branding exists.
func DefaultBranding() Branding {
	return Branding{
		AppName:       "Terminbuch",
		PrimaryColor:  "#222",
		AccentColor:   "#FF7043",
		TermsLabel:    "Termine",
		BookingsLabel: "Buchungen",
	}
}

// MergedOver fills empty fields of b from the fallback, typically the
// default branding or a cached copy.
func (b Branding) MergedOver(fallback Branding) Branding {
	out := fallback
	if b.AppName != "" {
		out.AppName = b.AppName
	}
	if b.PrimaryColor != "" {
		out.PrimaryColor = b.PrimaryColor
	}
	if b.AccentColor != "" {
		out.AccentColor = b.AccentColor
	}
	if b.LogoURL != "" {
		out.LogoURL = b.LogoURL
	}
	if b.TermsLabel != "" {
		out.TermsLabel = b.TermsLabel
	}
	if b.BookingsLabel != "" {
		out.BookingsLabel = b.BookingsLabel
	}
	return out
}

// BrandingKey builds the kv cache key for an organization's branding.
// An empty org id maps to the "default" record.
func BrandingKey(orgID string) string {
	if orgID == "" {
		orgID = "default"
	}
	return "branding:" + orgID
}

// OrgRole returns the caller's role in the given org, or "" when unknown.
func OrgRole(state AppState, orgID string) string {
	if orgID == "" {
		orgID = state.ActiveOrgID
	}
	for _, o := range state.Orgs {
		if o.ID == orgID {
			return o.Role
		}
	}
	return ""
}

// RoleCanEditBranding reports whether a role may change branding. Only
// owners and admins may; plain members get read access.
func RoleCanEditBranding(role string) bool {
	return role == "owner" || role == "admin"
}

// CanEditBranding reports whether the current user may change branding for
// the active organization.
func CanEditBranding(state AppState) bool {
	return RoleCanEditBranding(OrgRole(state, state.ActiveOrgID))
}
