// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract parses free-text questions into candidate entity
// references.
//
// The extractor is deliberately literal: a small fixed phrase table decides
// wildcard references ("all projects"), and a keyword-plus-token pattern
// captures single names ("project Atlas"). There is no normalization and no
// fuzzy matching; an unmatched keyword simply yields no reference. The
// phrase tables and keywords live in a Config so deployments can swap them
// without touching the matching code.
//
// Extraction is pure: no I/O, no state, same input always yields the same
// output.
package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// References
// =============================================================================

// Reference is the extraction result for one entity kind: a wildcard
// ("all records of this kind"), a captured name, or nothing.
type Reference struct {
	// Wildcard is true when a wildcard phrase matched. Name is empty in
	// that case; no name extraction is attempted for a wildcarded kind.
	Wildcard bool

	// Name is the captured name token, a single contiguous run of word
	// characters. Empty when nothing matched.
	Name string
}

// None reports whether neither a wildcard nor a name was found.
func (r Reference) None() bool {
	return !r.Wildcard && r.Name == ""
}

// References holds one Reference per entity kind. A question resolves at
// most one project, one lead, and one user.
type References struct {
	Project Reference
	Lead    Reference
	User    Reference
}

// Empty reports whether the question contained no recognizable reference of
// any kind.
func (r References) Empty() bool {
	return r.Project.None() && r.Lead.None() && r.User.None()
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds the phrase tables and keywords driving extraction.
//
// # Fields
//
//   - ProjectWildcards/LeadWildcards: Case-insensitive substrings that
//     resolve the kind to a wildcard reference. Users have no wildcard
//     form; user listings are never requested through a question.
//   - ProjectKeyword/LeadKeyword/UserKeyword: The literal keyword preceding
//     a name token, matched case-insensitively as "<keyword><space><token>".
type Config struct {
	ProjectWildcards []string
	LeadWildcards    []string

	ProjectKeyword string
	LeadKeyword    string
	UserKeyword    string
}

// DefaultConfig returns the production phrase tables.
func DefaultConfig() Config {
	return Config{
		ProjectWildcards: []string{"entire projects", "all projects", "whole projects", "all project"},
		LeadWildcards:    []string{"entire leads", "all leads", "all lead", "whole leads"},
		ProjectKeyword:   "project",
		LeadKeyword:      "lead",
		UserKeyword:      "user",
	}
}

// =============================================================================
// Extractor
// =============================================================================

// Extractor matches questions against a fixed Config. Safe for concurrent
// use; all fields are read-only after New.
type Extractor struct {
	cfg       Config
	projectRe *regexp.Regexp
	leadRe    *regexp.Regexp
	userRe    *regexp.Regexp
}

// New compiles the name-capture patterns for the given Config.
//
// # Description
//
// Each keyword becomes the pattern "(?i)<keyword> (\w+)": the keyword, one
// space, then one run of word characters. The first match in the question
// wins.
//
// # Outputs
//
//   - *Extractor: Ready for concurrent use.
//   - error: Non-nil if a keyword is empty or fails to compile.
func New(cfg Config) (*Extractor, error) {
	compile := func(keyword string) (*regexp.Regexp, error) {
		if keyword == "" {
			return nil, fmt.Errorf("empty keyword")
		}
		return regexp.Compile(`(?i)` + regexp.QuoteMeta(keyword) + ` (\w+)`)
	}

	projectRe, err := compile(cfg.ProjectKeyword)
	if err != nil {
		return nil, fmt.Errorf("project keyword: %w", err)
	}
	leadRe, err := compile(cfg.LeadKeyword)
	if err != nil {
		return nil, fmt.Errorf("lead keyword: %w", err)
	}
	userRe, err := compile(cfg.UserKeyword)
	if err != nil {
		return nil, fmt.Errorf("user keyword: %w", err)
	}

	return &Extractor{
		cfg:       cfg,
		projectRe: projectRe,
		leadRe:    leadRe,
		userRe:    userRe,
	}, nil
}

// Extract parses a question into per-kind references.
//
// # Description
//
// For project and lead, the wildcard phrase table is consulted first; on a
// hit the kind resolves to a wildcard and name capture is skipped entirely.
// Otherwise the name pattern runs and the first captured token (if any)
// becomes the reference. Users only have the name form.
//
// # Inputs
//
//   - question: Raw question text. Matched case-insensitively.
//
// # Outputs
//
//   - References: One Reference per kind; zero-value means "none".
func (e *Extractor) Extract(question string) References {
	lowered := strings.ToLower(question)

	var refs References

	if containsAny(lowered, e.cfg.ProjectWildcards) {
		refs.Project.Wildcard = true
	} else {
		refs.Project.Name = firstCapture(e.projectRe, question)
	}

	if containsAny(lowered, e.cfg.LeadWildcards) {
		refs.Lead.Wildcard = true
	} else {
		refs.Lead.Name = firstCapture(e.leadRe, question)
	}

	refs.User.Name = firstCapture(e.userRe, question)

	return refs
}

// containsAny reports whether any phrase occurs as a substring of the
// already-lowercased question.
func containsAny(lowered string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// firstCapture returns the first capture group of the first match, or "".
func firstCapture(re *regexp.Regexp, question string) string {
	if m := re.FindStringSubmatch(question); m != nil {
		return m[1]
	}
	return ""
}
