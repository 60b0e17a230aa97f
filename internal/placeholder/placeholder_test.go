package placeholder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	lookup := Map(map[string]string{"foo": "bar", "db_url": "postgres://db", "x": "1"})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "escape", in: "@@foo", want: "@foo"},
		{name: "hit", in: "@foo", want: "bar"},
		{name: "braces", in: "@{foo}-suffix", want: "bar-suffix"},
		{name: "underscore", in: "url=@db_url", want: "url=postgres://db"},
		{name: "braces underscore", in: "@{db_url}", want: "postgres://db"},
		{name: "miss preserved", in: "@missing", want: "@missing"},
		{name: "miss braces preserved", in: "@{missing}", want: "@{missing}"},
		{name: "escaped braces", in: "@@{foo}", want: "@{foo}"},
		{name: "no reference", in: "user@ host", want: "user@ host"},
		{name: "digit start", in: "@1abc", want: "@1abc"},
		{name: "unterminated brace", in: "@{foo", want: "@{foo"},
		{name: "double at alone", in: "a@@", want: "a@@"},
		{name: "several", in: "@x+@x=@{x}@x", want: "1+1=11"},
		{name: "volume prefix", in: "@/data", want: "@/data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.in, lookup))
		})
	}
}

func TestResolveWithoutLookupHit(t *testing.T) {
	assert.Equal(t, "@foo", Resolve("@foo", Map(nil)))
}

func TestChainFirstHitWins(t *testing.T) {
	lookup := Chain(
		Map(map[string]string{"a": "env"}),
		nil,
		Map(map[string]string{"a": "service", "b": "service"}),
		Map(map[string]string{"b": "global", "c": "global"}),
	)

	assert.Equal(t, "env service global @d", Resolve("@a @b @c @d", lookup))
}

func TestResolveMap(t *testing.T) {
	out := ResolveMap(map[string]string{"TOKEN": "@token", "PLAIN": "v"}, Map(map[string]string{"token": "s3cr3t"}))
	assert.Equal(t, map[string]string{"TOKEN": "s3cr3t", "PLAIN": "v"}, out)
}

func TestDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("API_KEY=abc\n# comment\nNAME=\"demo app\"\n"), 0o600))

	lookup, err := Dotenv(path)
	require.NoError(t, err)
	assert.Equal(t, "abc demo app", Resolve("@API_KEY @NAME", lookup))

	missing, err := Dotenv(filepath.Join(dir, "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "@API_KEY", Resolve("@API_KEY", missing))
}
