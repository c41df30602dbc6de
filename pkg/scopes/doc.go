// Package scopes parses, normalizes and compares OAuth scope sets.
//
// Scopes travel in three shapes: space separated in token responses, comma or
// space separated in configuration, and as slices everywhere else. Google
// scopes additionally come either fully qualified
// ("https://www.googleapis.com/auth/cloud-platform") or as short names
// ("cloud-platform"); the provider may also answer a request for "email" with
// "https://www.googleapis.com/auth/userinfo.email". Canonical folds all of
// these spellings to one form so that comparisons do not depend on how a scope
// was written.
//
// # Matching
//
// Covers reports whether a granted set is a superset of a requested set. A
// session granted {"cloud-platform", "email"} covers a request for
// {"cloud-platform"}, but a session granted {"bigquery"} does not. The global
// wildcard "*" in the granted set covers everything.
//
// # Usage
//
//	granted := scopes.ParseScopes(tok.Extra("scope").(string))
//	if scopes.Covers(granted, []string{"cloud-platform"}) {
//	    // reuse the session
//	}
package scopes
