package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Group is a set of ad accounts read with one or more tokens.
type Group struct {
	Name     string   `json:"-"`
	Token    string   `json:"token,omitempty"`
	Tokens   []string `json:"tokens,omitempty"`
	Accounts []string `json:"accounts"`
}

// Assignment is the slice of a group's accounts read with one token.
type Assignment struct {
	Group    string
	Index    int
	Token    string
	Accounts []string
}

// LoadGroups reads groups from the JSON held in envVar, or from path when the
// variable is empty. Groups are returned sorted by name.
func LoadGroups(envVar, path string) ([]Group, error) {
	if envVar != "" {
		if value := os.Getenv(envVar); value != "" {
			groups, err := ParseGroups([]byte(value))
			if err != nil {
				return nil, errors.Wrapf(err, "decode groups from %s", envVar)
			}
			log.Info().Str("component", "config").Str("source", envVar).Int("groups", len(groups)).Msg("Groups loaded")
			return groups, nil
		}
	}

	if path == "" {
		return nil, errors.New("no groups configured")
	}
	normalized, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}
	data, err := os.ReadFile(normalized)
	if err != nil {
		return nil, errors.Wrapf(err, "read groups file %s", normalized)
	}
	groups, err := ParseGroups(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode groups file %s", normalized)
	}
	log.Info().Str("component", "config").Str("source", normalized).Int("groups", len(groups)).Msg("Groups loaded")
	return groups, nil
}

// ParseGroups decodes {"name": {"token"|"tokens", "accounts"}} and validates each group.
func ParseGroups(data []byte) ([]Group, error) {
	var raw map[string]Group
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	groups := make([]Group, 0, len(raw))
	for name, g := range raw {
		if strings.HasPrefix(name, "_") {
			continue
		}
		g.Name = name
		if g.Token == "" && len(g.Tokens) == 0 {
			return nil, errors.Errorf("group %s has no token", name)
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

// Split divides the accounts evenly across the group's tokens. The first
// len(accounts) % len(tokens) tokens take one extra account. A single-token
// group yields one assignment with every account.
func (g Group) Split() []Assignment {
	tokens := g.Tokens
	if len(tokens) == 0 {
		tokens = []string{g.Token}
	}

	per := len(g.Accounts) / len(tokens)
	remainder := len(g.Accounts) % len(tokens)

	out := make([]Assignment, 0, len(tokens))
	start := 0
	for i, token := range tokens {
		n := per
		if i < remainder {
			n++
		}
		out = append(out, Assignment{
			Group:    g.Name,
			Index:    i,
			Token:    token,
			Accounts: g.Accounts[start : start+n],
		})
		start += n
	}
	return out
}
