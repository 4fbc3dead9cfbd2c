package service

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	verifyEmailPath    = "/verify-email"
	updatePasswordPath = "/update-password"
)

// LinkBuilder arma los enlaces absolutos que se envían por correo.
type LinkBuilder struct {
	base *url.URL
}

// NewLinkBuilder falla si la URL base no es absoluta o, en producción, si no
// usa https.
func NewLinkBuilder(baseURL string, production bool) (*LinkBuilder, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, errors.New("app base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse app base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("app base url %q has no host", raw)
	}
	switch base.Scheme {
	case "https":
	case "http":
		if production {
			return nil, fmt.Errorf("app base url %q must use https in production", raw)
		}
	default:
		return nil, fmt.Errorf("app base url %q has unsupported scheme", raw)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawQuery = ""
	base.Fragment = ""
	return &LinkBuilder{base: base}, nil
}

func (b *LinkBuilder) VerificationLink(token string) string {
	return b.build(verifyEmailPath, token)
}

func (b *LinkBuilder) ResetLink(token string) string {
	return b.build(updatePasswordPath, token)
}

func (b *LinkBuilder) build(path, token string) string {
	u := *b.base
	u.Path = b.base.Path + path
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}
