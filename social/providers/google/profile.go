package google

import "github.com/goliatone/go-folio-auth/social"

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// mapProfile only keeps the email when Google reports it verified
func mapProfile(info *googleUserInfo) *social.Profile {
	profile := &social.Profile{
		Provider:       ProviderName,
		ProviderUserID: info.Sub,
		Name:           info.Name,
		LoginHint:      ProviderName + "_" + social.SubjectPrefix(info.Sub, 8),
	}

	if info.EmailVerified && info.Email != "" {
		profile.Email = info.Email
		profile.EmailVerified = true
		profile.LoginHint = "g_" + social.EmailLocalPart(info.Email)
	}

	return profile
}
