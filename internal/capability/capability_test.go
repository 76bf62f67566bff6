package capability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryAndWildcard(t *testing.T) {
	assert.Equal(t, "server.files", FilesBackups.Category())
	assert.Equal(t, "server.files.*", FilesBackups.Wildcard())
	assert.Equal(t, "server", ServerView.Category())
	assert.Equal(t, "account.profile", ProfileView.Category())
}

func TestParseSet_WildcardCoversCategoryOnly(t *testing.T) {
	s, err := ParseSet([]string{"server.files.*"})
	require.NoError(t, err)

	assert.True(t, s.Has(FilesRead))
	assert.True(t, s.Has(FilesWrite))
	assert.True(t, s.Has(FilesBackups))
	assert.False(t, s.Has(PowerOn))
	assert.Equal(t, []string{"server.files.*"}, s.Strings())
}

func TestParseSet_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
	}{
		{name: "typo", entries: []string{"server.power.onn"}},
		{name: "unknown category", entries: []string{"server.nope.*"}},
		{name: "full grant", entries: []string{"*"}},
		{name: "empty", entries: []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSet(tt.entries)
			assert.Error(t, err)
		})
	}
}

func TestParseSet_DeduplicatesAndSorts(t *testing.T) {
	s, err := ParseSet([]string{"server.power.on", "server.files.sftp", "server.power.on"})
	require.NoError(t, err)
	assert.Equal(t, []string{"server.files.sftp", "server.power.on"}, s.Strings())
}

func TestCovers(t *testing.T) {
	holder := MustParseSet("server.files.*", "server.power.on")
	assert.True(t, holder.Covers(MustParseSet("server.files.read", "server.power.on")))
	assert.False(t, holder.Covers(MustParseSet("server.power.kill")))
	assert.True(t, Full().Covers(holder))
	assert.True(t, holder.Covers(Set{}))
}

func TestFull(t *testing.T) {
	f := Full()
	for _, c := range All() {
		assert.True(t, f.Has(c), c.String())
	}
	assert.Equal(t, []string{"*"}, f.Strings())
	assert.True(t, f.IsFull())
}

func TestSetJSON(t *testing.T) {
	var s Set
	require.NoError(t, json.Unmarshal([]byte(`["server.subusers.*"]`), &s))
	assert.True(t, s.Has(SubusersManage))

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["server.subusers.*"]`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`["bogus"]`), &s))
}
