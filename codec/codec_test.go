package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok, name)
		require.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	require.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	type payload struct {
		Lemma string `json:"lemma"`
		Count int    `json:"count"`
	}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		in := payload{Lemma: "hus", Count: 3}

		data, err := c.Marshal(in)
		require.NoError(t, err)

		var out payload
		require.NoError(t, c.Unmarshal(data, &out))
		require.Equal(t, in, out)
	}
}

func TestCrossCodecCompatibility(t *testing.T) {
	// Both codecs must produce interchangeable bytes for the shapes we persist.
	in := map[string]int{"hus": 2, "og": 17}

	data := MustMarshal(JSON{}, in)

	var out map[string]int
	require.NoError(t, GoJSON{}.Unmarshal(data, &out))
	require.Equal(t, in, out)
}
