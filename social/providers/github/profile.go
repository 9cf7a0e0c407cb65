package github

import (
	"strconv"

	"github.com/goliatone/go-folio-auth/social"
)

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// mapProfile leaves Email empty; the public profile email is not verified.
func mapProfile(user *githubUser) *social.Profile {
	return &social.Profile{
		Provider:       ProviderName,
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Username:       user.Login,
		Name:           user.Name,
		LoginHint:      "gh_" + user.Login,
	}
}
