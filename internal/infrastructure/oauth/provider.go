// Package oauth signs users in through external OAuth2 providers.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"

	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	githubAPIURL      = "https://api.github.com"

	maxBody = 1 << 20
)

// ErrUnknownProvider is returned by Registry.Get for unconfigured providers.
var ErrUnknownProvider = errors.New("oauth: unknown provider")

// Credentials identify this service to one provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// userInfoFunc resolves the verified identity behind an authorized client.
type userInfoFunc func(ctx context.Context, client *http.Client) (ports.OAuthIdentity, error)

// Provider implements ports.OAuthProvider on top of an oauth2.Config.
type Provider struct {
	name     string
	conf     *oauth2.Config
	userInfo userInfoFunc
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

// Exchange trades the code for a token and fetches the account email. Every
// failure is reported as invalid credentials.
func (p *Provider) Exchange(ctx context.Context, code string) (ports.OAuthIdentity, error) {
	if code == "" {
		return ports.OAuthIdentity{}, domain.ErrInvalidCredentials
	}
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return ports.OAuthIdentity{}, fmt.Errorf("%s exchange: %w: %w", p.name, domain.ErrInvalidCredentials, err)
	}

	id, err := p.userInfo(ctx, p.conf.Client(ctx, tok))
	if err != nil {
		return ports.OAuthIdentity{}, fmt.Errorf("%s userinfo: %w: %w", p.name, domain.ErrInvalidCredentials, err)
	}
	if id.Email == "" {
		return ports.OAuthIdentity{}, fmt.Errorf("%s userinfo: %w: no verified email", p.name, domain.ErrInvalidCredentials)
	}
	id.Provider = p.name
	return id, nil
}

// NewGoogle builds the Google provider using the OpenID Connect userinfo endpoint.
func NewGoogle(creds Credentials, redirectURL string) *Provider {
	return newGoogle(creds, redirectURL, google.Endpoint, googleUserInfoURL)
}

func newGoogle(creds Credentials, redirectURL string, endpoint oauth2.Endpoint, userInfoURL string) *Provider {
	return &Provider{
		name: ProviderGoogle,
		conf: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfo: func(ctx context.Context, client *http.Client) (ports.OAuthIdentity, error) {
			var body struct {
				Email         string `json:"email"`
				EmailVerified bool   `json:"email_verified"`
				Name          string `json:"name"`
			}
			if err := getJSON(ctx, client, userInfoURL, &body); err != nil {
				return ports.OAuthIdentity{}, err
			}
			if !body.EmailVerified {
				return ports.OAuthIdentity{}, nil
			}
			return ports.OAuthIdentity{Email: body.Email, Name: body.Name}, nil
		},
	}
}

// NewGitHub builds the GitHub provider. The primary verified address is read
// from /user/emails since the profile email may be private.
func NewGitHub(creds Credentials, redirectURL string) *Provider {
	return newGitHub(creds, redirectURL, github.Endpoint, githubAPIURL)
}

func newGitHub(creds Credentials, redirectURL string, endpoint oauth2.Endpoint, apiURL string) *Provider {
	return &Provider{
		name: ProviderGitHub,
		conf: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email"},
		},
		userInfo: func(ctx context.Context, client *http.Client) (ports.OAuthIdentity, error) {
			var profile struct {
				Login string `json:"login"`
				Name  string `json:"name"`
			}
			if err := getJSON(ctx, client, apiURL+"/user", &profile); err != nil {
				return ports.OAuthIdentity{}, err
			}

			var emails []struct {
				Email    string `json:"email"`
				Primary  bool   `json:"primary"`
				Verified bool   `json:"verified"`
			}
			if err := getJSON(ctx, client, apiURL+"/user/emails", &emails); err != nil {
				return ports.OAuthIdentity{}, err
			}

			name := profile.Name
			if name == "" {
				name = profile.Login
			}
			for _, e := range emails {
				if e.Primary && e.Verified {
					return ports.OAuthIdentity{Email: e.Email, Name: name}, nil
				}
			}
			return ports.OAuthIdentity{Name: name}, nil
		},
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out)
}

// Registry holds the providers that have credentials configured.
type Registry struct {
	providers map[string]ports.OAuthProvider
}

func NewRegistry(providers ...ports.OAuthProvider) *Registry {
	r := &Registry{providers: make(map[string]ports.OAuthProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// FromCredentials registers google and github when their client ids are set.
// redirectBase is the public origin; callbacks land on
// {redirectBase}/auth/oauth/{provider}/callback.
func FromCredentials(redirectBase string, googleCreds, githubCreds Credentials) *Registry {
	base := strings.TrimRight(redirectBase, "/")
	var providers []ports.OAuthProvider
	if googleCreds.ClientID != "" {
		providers = append(providers, NewGoogle(googleCreds, CallbackURL(base, ProviderGoogle)))
	}
	if githubCreds.ClientID != "" {
		providers = append(providers, NewGitHub(githubCreds, CallbackURL(base, ProviderGitHub)))
	}
	return NewRegistry(providers...)
}

func CallbackURL(base, provider string) string {
	return base + "/auth/oauth/" + provider + "/callback"
}

func (r *Registry) Get(name string) (ports.OAuthProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Names lists the configured providers in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewState returns a random URL-safe state value.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// StateMatches compares the callback state to the stored one in constant time.
func StateMatches(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
