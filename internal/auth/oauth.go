package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// Profile is what an identity provider tells us about the person who
// completed its sign-in flow.
//
// Email is empty when the provider did not vouch for one (hidden, missing or
// unverified). Only a verified email may converge onto an existing account,
// so providers must never fill Email with an address they have not checked.
type Profile struct {
	Provider string
	Subject  string // provider's stable user ID, for logging only
	Email    string
	Name     string
}

// IdentityProvider is one OAuth2 Authorization Code integration.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
// 1. The server redirects the user to AuthURL(state).
// 2. The user approves (or denies) the request at the provider.
// 3. The provider redirects back to the callback URL with a short-lived "code".
// 4. Exchange trades the code for an access token (server-to-server call)
//    and uses the token to fetch the user's profile.
//
// WHY SERVER-SIDE EXCHANGE?
// The code-for-token exchange uses the ClientSecret and happens
// server-to-server. The access token never touches the user's browser.
type IdentityProvider interface {
	Name() string
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// GitHubUser is the portion of the GitHub /user API response we care about.
// GitHub API docs: https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type GitHubUser struct {
	ID    int64  `json:"id"`    // GitHub's numeric user ID: stable, never changes
	Login string `json:"login"` // GitHub username
	Name  string `json:"name"`
}

// gitHubEmail is one entry of the /user/emails response.
type gitHubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider wraps golang.org/x/oauth2 for GitHub sign-in.
type GitHubProvider struct {
	config  *oauth2.Config
	apiBase string
}

// NewGitHubProvider creates a GitHubProvider with the given credentials.
//
// You get ClientID and ClientSecret by registering an OAuth App at:
// https://github.com/settings/developers → "OAuth Apps" → "New OAuth App"
//
// callbackURL must match the "Authorization callback URL" you configured exactly.
// Example: "http://localhost:3000/auth/github/secrets"
//
// Scopes we request:
//   - "read:user": the user's public profile
//   - "user:email": the user's email addresses, including verification status
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: "https://api.github.com",
	}
}

func (p *GitHubProvider) Name() string { return "github" }

// AuthURL returns the URL to redirect the user to for authorization.
//
// STATE PARAMETER:
// The state is a random value we store in the server-side session before
// redirecting. When GitHub calls back, the handler checks the returned state
// against the session. This stops an attacker from making your browser
// complete an OAuth flow that they started.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for the user's GitHub profile.
//
// Steps:
//  1. Exchange the code for an OAuth access token (server-to-server)
//  2. Call /user for the stable ID and display name
//  3. Call /user/emails and keep the primary address only if it is verified
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging GitHub OAuth code: %w", err)
	}

	// oauth2.Config.Client returns an *http.Client that automatically adds
	// the "Authorization: Bearer <token>" header to every request.
	client := p.config.Client(ctx, oauthToken)

	var ghUser GitHubUser
	if err := getJSON(ctx, client, p.apiBase+"/user", &ghUser); err != nil {
		return nil, fmt.Errorf("auth: calling GitHub /user API: %w", err)
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	var emails []gitHubEmail
	if err := getJSON(ctx, client, p.apiBase+"/user/emails", &emails); err != nil {
		return nil, fmt.Errorf("auth: calling GitHub /user/emails API: %w", err)
	}

	profile := &Profile{
		Provider: p.Name(),
		Subject:  fmt.Sprintf("%d", ghUser.ID),
		Name:     ghUser.Name,
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			profile.Email = e.Email
			break
		}
	}
	return profile, nil
}

// maxProviderResponseBytes bounds a profile API response. Real ones are a few
// KB; a provider (or anything impersonating one) cannot make us buffer more.
const maxProviderResponseBytes = 1 << 20

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseBytes+1))
	if err != nil {
		return err
	}
	if len(body) > maxProviderResponseBytes {
		return fmt.Errorf("response larger than %d bytes", maxProviderResponseBytes)
	}
	return json.Unmarshal(body, out)
}
