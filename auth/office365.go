package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const microsoftJWKSURL = "https://login.microsoftonline.com/common/discovery/v2.0/keys"

var graphAPIBase = "https://graph.microsoft.com/v1.0"

// Office365 returns the login and callback handlers for Microsoft sign-in.
// The account's mail address must end with domain to be let in. The ID
// token returned alongside the access token is verified against the
// Microsoft JWKS before the account is trusted.
func Office365(sessions *Sessions, clientID, clientSecret, domain string) (login, callback echo.HandlerFunc, err error) {
	jwks, err := keyfunc.Get(microsoftJWKSURL, keyfunc.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("microsoft jwks: %w", err)
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{"user.read", "openid", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		},
	}

	login = func(c echo.Context) error {
		return c.Redirect(http.StatusFound, conf.AuthCodeURL("state", oauth2.AccessTypeOnline))
	}

	callback = func(c echo.Context) error {
		ctx := c.Request().Context()
		code := c.QueryParam("code")

		tok, err := conf.Exchange(ctx, code)
		if err != nil {
			log.Errorf("office365 exchange: %v", err)
			return c.Redirect(http.StatusFound, "/?error=not_in_org")
		}

		if err := verifyIDToken(tok, jwks, clientID); err != nil {
			log.Errorf("office365 id token: %v", err)
			return c.Redirect(http.StatusFound, "/?error=not_in_org")
		}

		client := conf.Client(ctx, tok)
		mail, err := officeUser(client)
		if err != nil {
			log.Errorf("office365 user: %v", err)
			return c.Redirect(http.StatusFound, "/?error=not_in_org")
		}

		if !isInDomain(mail, domain) {
			return c.Redirect(http.StatusFound, "/?error=not_in_org")
		}

		token, err := sessions.Mint(ctx, mail)
		if err != nil {
			log.Errorf("mint session: %v", err)
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.Redirect(http.StatusFound, "/?user="+mail+"&token="+token)
	}

	return login, callback, nil
}

func verifyIDToken(tok *oauth2.Token, jwks *keyfunc.JWKS, clientID string) error {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return errors.New("missing id_token")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	parsed, err := parser.Parse(raw, jwks.Keyfunc)
	if err != nil {
		return err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid claims")
	}
	if !claims.VerifyAudience(clientID, true) {
		return errors.New("invalid audience")
	}
	return nil
}

func officeUser(client *http.Client) (string, error) {
	resp, err := client.Get(graphAPIBase + "/me/")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("graph /me: status %d", resp.StatusCode)
	}

	var data struct {
		Mail string `json:"mail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}
	if data.Mail == "" {
		return "", errors.New("graph /me: empty mail")
	}
	return data.Mail, nil
}

func isInDomain(mail, domain string) bool {
	return strings.HasSuffix(mail, domain)
}
