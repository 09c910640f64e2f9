package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"", ScopeAll, false},
		{"all", ScopeAll, false},
		{"active", ScopeActive, false},
		{"inactive", ScopeInactive, false},
		{"everything", "", true},
		{"Active", "", true},
	}

	for _, tt := range tests {
		t.Run("scope "+tt.in, func(t *testing.T) {
			got, err := ParseScope(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUsableURL(t *testing.T) {
	assert.True(t, usableURL("https://example.com/page"))
	assert.True(t, usableURL("http://localhost:8080"))
	assert.False(t, usableURL("about:blank"))
	assert.False(t, usableURL("chrome://settings"))
	assert.False(t, usableURL("devtools://devtools/bundled/inspector.html"))
	assert.False(t, usableURL("file:///tmp/page.html"))
	assert.False(t, usableURL(""))
}

func TestDefaultFavicon(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain", "https://example.com/deep/path?q=1", "https://example.com/favicon.ico"},
		{"with port", "http://localhost:8080/page", "http://localhost:8080/favicon.ico"},
		{"no host", "about:blank", ""},
		{"garbage", "://nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, defaultFavicon(tt.url))
		})
	}
}

func TestFilterScope(t *testing.T) {
	tabs := []Tab{
		{ID: "t-1", URL: "https://a.com", Active: true},
		{ID: "t-2", URL: "https://b.com", Active: false},
		{ID: "t-3", URL: "https://c.com", Active: false},
	}

	assert.Len(t, filterScope(tabs, ScopeAll), 3)
	assert.Len(t, filterScope(tabs, ""), 3)

	active := filterScope(tabs, ScopeActive)
	require.Len(t, active, 1)
	assert.Equal(t, "t-1", active[0].ID)

	inactive := filterScope(tabs, ScopeInactive)
	require.Len(t, inactive, 2)
	assert.Equal(t, "t-2", inactive[0].ID)
	assert.Equal(t, "t-3", inactive[1].ID)
}
