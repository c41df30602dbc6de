package authflow

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/cloudauth/pkg/session"
)

var errNoIDToken = errors.New("token response has no id_token")

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// accountFromIDToken reads the account from the id_token returned alongside
// the access token. The signature is not checked: the token came straight
// from the token endpoint over the same connection as the access token.
func accountFromIDToken(token *oauth2.Token) (session.Account, error) {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return session.Account{}, errNoIDToken
	}
	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return session.Account{}, fmt.Errorf("parse id_token: %w", err)
	}
	return userInfoResponse{
		Sub:        claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
	}.account()
}
