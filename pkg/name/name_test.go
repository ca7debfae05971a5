package name

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEscapeSafeOutput tests that escaped names only use the safe alphabet
func TestEscapeSafeOutput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain ascii", input: "alice", want: "alice"},
		{name: "email address", input: "alice@example.com", want: "alice_40example_2Ecom"},
		{name: "escape char itself", input: "a_b", want: "a_5Fb"},
		{name: "spaces", input: "a b", want: "a_20b"},
		{name: "hyphen passes through", input: "a-b", want: "a-b"},
		{name: "empty", input: "", want: ""},
		{name: "unicode", input: "ü", want: "_C3_BC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Escape(tt.input)
			assert.Equal(t, tt.want, got)
			for i := 0; i < len(got); i++ {
				c := got[i]
				if !safeByte(c) {
					t.Errorf("Escape(%q) produced unsafe byte %q", tt.input, c)
				}
			}
		})
	}
}

// TestEscapeInjective tests that distinct inputs never collide
func TestEscapeInjective(t *testing.T) {
	inputs := []string{
		"alice", "al_ice", "al-ice", "al ice", "al.ice",
		"alice@a", "alice_40a", "alice%40a", "a_5Fb", "a_b",
	}
	seen := map[string]string{}
	for _, in := range inputs {
		out := Escape(in)
		if prev, dup := seen[out]; dup {
			t.Errorf("Escape collision: %q and %q both map to %q", prev, in, out)
		}
		seen[out] = in
	}
}

// TestEscapeRoundTrip tests that Unescape inverts Escape
func TestEscapeRoundTrip(t *testing.T) {
	inputs := []string{"alice", "a_b", "user@host.com", "ü", "a b-c_d", ""}
	for _, in := range inputs {
		out, err := Unescape(Escape(in))
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

// TestUnescapeInvalid tests malformed escape sequences
func TestUnescapeInvalid(t *testing.T) {
	for _, in := range []string{"a_", "a_4", "a_zz"} {
		_, err := Unescape(in)
		assert.Error(t, err, "input %q", in)
	}
}

// TestServiceName tests template expansion
func TestServiceName(t *testing.T) {
	tests := []struct {
		name     string
		template string
		username string
		image    string
		server   string
		prefix   string
		want     string
	}{
		{
			name:     "default template",
			template: "{prefix}-{username}",
			username: "alice",
			image:    "jupyterhub/singleuser:4.0",
			prefix:   "jupyter",
			want:     "jupyter-alice",
		},
		{
			name:     "escaped username",
			template: "{prefix}-{username}",
			username: "alice@example.com",
			prefix:   "jupyter",
			want:     "jupyter-alice_40example_2Ecom",
		},
		{
			name:     "image name with slash",
			template: "{imagename}-{username}",
			username: "bob",
			image:    "org/notebook:latest",
			want:     "org_notebook:latest-bob",
		},
		{
			name:     "named server",
			template: "{prefix}-{username}-{servername}",
			username: "bob",
			server:   "gpu",
			prefix:   "jupyter",
			want:     "jupyter-bob-gpu",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeriver(tt.username)
			got, err := d.ServiceName(tt.template, tt.image, tt.server, tt.prefix)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestServiceNameUnknownPlaceholder tests that a bad template is a
// configuration error surfaced at call time
func TestServiceNameUnknownPlaceholder(t *testing.T) {
	d := NewDeriver("alice")
	_, err := d.ServiceName("{prefix}-{hostname}", "img", "", "jupyter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{hostname}")
}

// TestServiceNameDeterministic tests that same inputs always produce the
// same name
func TestServiceNameDeterministic(t *testing.T) {
	d := NewDeriver("alice@example.com")
	first, err := d.ServiceName("{prefix}-{username}", "img", "", "jupyter")
	require.NoError(t, err)
	second, err := d.ServiceName("{prefix}-{username}", "img", "", "jupyter")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// TestEscapedUsernameCached tests the per-deriver cache
func TestEscapedUsernameCached(t *testing.T) {
	d := NewDeriver("a@b")
	assert.Equal(t, "a_40b", d.EscapedUsername())
	assert.Equal(t, "a_40b", d.EscapedUsername())
	assert.Equal(t, "a@b", d.Username())
}
