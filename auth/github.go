package auth

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	gh "golang.org/x/oauth2/github"
)

var githubAPIBase = "https://api.github.com"

// GitHub returns the login and callback handlers for GitHub sign-in. Only
// members of org are let through; everyone else is bounced back with
// error=not_in_org.
func GitHub(sessions *Sessions, clientID, clientSecret, org string) (login, callback echo.HandlerFunc) {
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{"read:user", "read:org"},
		Endpoint:     gh.Endpoint,
	}

	login = func(c echo.Context) error {
		return c.Redirect(http.StatusFound, conf.AuthCodeURL("state", oauth2.AccessTypeOnline))
	}

	callback = func(c echo.Context) error {
		ctx := c.Request().Context()
		code := c.QueryParam("code")

		tok, err := conf.Exchange(ctx, code)
		if err != nil {
			log.Errorf("github exchange: %v", err)
			return c.Redirect(http.StatusFound, "/?error=not_in_org")
		}
		client := conf.Client(ctx, tok)

		username, err := githubUser(client)
		if err != nil {
			log.Errorf("github user: %v", err)
			return c.Redirect(http.StatusFound, "/?error=not_in_org")
		}

		member, err := githubOrgMember(client, org)
		if err != nil {
			log.Errorf("github orgs: %v", err)
			return c.Redirect(http.StatusFound, "/?error=not_in_org")
		}
		if !member {
			return c.Redirect(http.StatusFound, "/?error=not_in_org")
		}

		token, err := sessions.Mint(ctx, username)
		if err != nil {
			log.Errorf("mint session: %v", err)
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.Redirect(http.StatusFound, "/?user="+username+"&token="+token)
	}

	return login, callback
}

func githubUser(client *http.Client) (string, error) {
	resp, err := client.Get(githubAPIBase + "/user")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github /user: status %d", resp.StatusCode)
	}

	var data struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}
	if data.Login == "" {
		return "", fmt.Errorf("github /user: empty login")
	}
	return data.Login, nil
}

func githubOrgMember(client *http.Client, org string) (bool, error) {
	resp, err := client.Get(githubAPIBase + "/user/orgs")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("github /user/orgs: status %d", resp.StatusCode)
	}

	var orgs []struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&orgs); err != nil {
		return false, err
	}
	for _, o := range orgs {
		if o.Login == org {
			return true, nil
		}
	}
	return false, nil
}
