package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groupsJSON = `{
	"_comment": "ignored",
	"casf_b": {"token": "tok-b", "accounts": ["act_1", "act_2"]},
	"casf_a": {"tokens": ["t1", "t2", "t3"], "accounts": ["a1", "a2", "a3", "a4", "a5", "a6", "a7"]}
}`

func TestParseGroups(t *testing.T) {
	groups, err := ParseGroups([]byte(groupsJSON))
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "casf_a", groups[0].Name)
	assert.Equal(t, "casf_b", groups[1].Name)
	assert.Equal(t, "tok-b", groups[1].Token)
}

func TestParseGroups_MissingToken(t *testing.T) {
	_, err := ParseGroups([]byte(`{"g": {"accounts": ["act_1"]}}`))
	assert.Error(t, err)
}

func TestParseGroups_InvalidJSON(t *testing.T) {
	_, err := ParseGroups([]byte(`{`))
	assert.Error(t, err)
}

func TestGroup_Split(t *testing.T) {
	tests := []struct {
		name   string
		group  Group
		counts []int
	}{
		{"single token", Group{Token: "t", Accounts: []string{"a", "b", "c"}}, []int{3}},
		{"remainder to first tokens", Group{Tokens: []string{"t1", "t2", "t3"}, Accounts: []string{"1", "2", "3", "4", "5", "6", "7"}}, []int{3, 2, 2}},
		{"even split", Group{Tokens: []string{"t1", "t2"}, Accounts: []string{"1", "2", "3", "4"}}, []int{2, 2}},
		{"more tokens than accounts", Group{Tokens: []string{"t1", "t2", "t3"}, Accounts: []string{"1"}}, []int{1, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := tt.group.Split()
			require.Len(t, parts, len(tt.counts))

			var all []string
			for i, p := range parts {
				assert.Len(t, p.Accounts, tt.counts[i], "assignment %d", i)
				assert.Equal(t, i, p.Index)
				all = append(all, p.Accounts...)
			}
			assert.Equal(t, tt.group.Accounts, all, "accounts must be covered exactly once, in order")
		})
	}
}

func TestLoadGroups_PrefersEnvironment(t *testing.T) {
	t.Setenv("TEST_GROUPS", `{"env": {"token": "t", "accounts": ["act_9"]}}`)

	groups, err := LoadGroups("TEST_GROUPS", "does-not-exist.json")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "env", groups[0].Name)
}

func TestLoadGroups_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.json")
	require.NoError(t, os.WriteFile(path, []byte(groupsJSON), 0o600))

	groups, err := LoadGroups("TEST_GROUPS_UNSET", path)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func TestLoadGroups_Missing(t *testing.T) {
	_, err := LoadGroups("", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadGroups("", "")
	assert.Error(t, err)
}
