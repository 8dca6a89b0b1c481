package notes_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/beritholmen/konkord/notes"
)

func TestMeaningRoundTrip(t *testing.T) {
	b := notes.NewBook()

	b.SetMeaning("hus", "NOUN", "house; building")
	require.Equal(t, "house; building", b.Meaning("hus", "NOUN"))
	require.Equal(t, "house; building", b.Meaning("Hus", "NOUN"), "lemma lookup is case-insensitive")
	require.Empty(t, b.Meaning("hus", "VERB"), "POS distinguishes homographs")

	b.SetMeaning("hus", "NOUN", "")
	require.Empty(t, b.Meaning("hus", "NOUN"))
	require.Zero(t, b.Len(), "clearing the only field drops the entry")
}

func TestDictLinkNormalization(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "https kept", in: "https://naob.no/ordbok/hus", want: "https://naob.no/ordbok/hus"},
		{name: "http upgraded", in: "http://naob.no/ordbok/hus", want: "https://naob.no/ordbok/hus"},
		{name: "bare host", in: "naob.no/ordbok/hus", want: "https://naob.no/ordbok/hus"},
		{name: "whitespace trimmed", in: "  naob.no/x  ", want: "https://naob.no/x"},
		{name: "empty clears", in: "", want: ""},
		{name: "ftp rejected", in: "ftp://naob.no/hus", wantErr: true},
		{name: "no host", in: "https:///ordbok", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := notes.NormalizeLink(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSetDictLink(t *testing.T) {
	b := notes.NewBook()

	require.NoError(t, b.SetDictLink("hus", "NOUN", "naob.no/ordbok/hus_1"))
	require.Equal(t, "https://naob.no/ordbok/hus_1", b.DictLink("hus", "NOUN"))

	require.Error(t, b.SetDictLink("hus", "NOUN", "ftp://x/y"))
	require.Equal(t, "https://naob.no/ordbok/hus_1", b.DictLink("hus", "NOUN"), "failed set leaves the old override")

	require.NoError(t, b.SetDictLink("hus", "NOUN", ""))
	require.Empty(t, b.DictLink("hus", "NOUN"))
}

func TestNoteAndKeys(t *testing.T) {
	b := notes.NewBook()
	b.SetMeaning("vara", "VERB", "to be")
	require.NoError(t, b.SetDictLink("vara", "VERB", "naob.no/v"))
	b.SetMeaning("hus", "NOUN", "house")

	n, ok := b.Note("vara", "VERB")
	require.True(t, ok)
	require.Equal(t, "to be", n.Meaning)
	require.Equal(t, "https://naob.no/v", n.DictLink)

	_, ok = b.Note("sjö", "NOUN")
	require.False(t, ok)

	require.Equal(t, []string{"hus|NOUN", "vara|VERB"}, b.Keys())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.json")

	b := notes.NewBook()
	b.SetMeaning("hus", "NOUN", "house")
	require.NoError(t, b.SetDictLink("hus", "NOUN", "naob.no/hus"))
	require.NoError(t, b.Save(nil, path, nil))

	loaded, err := notes.Load(nil, path, nil)
	require.NoError(t, err)
	require.Equal(t, "house", loaded.Meaning("hus", "NOUN"))
	require.Equal(t, "https://naob.no/hus", loaded.DictLink("hus", "NOUN"))
}

func TestLoadMissingFile(t *testing.T) {
	b, err := notes.Load(nil, filepath.Join(t.TempDir(), "absent.json"), nil)
	require.NoError(t, err)
	require.Zero(t, b.Len())
}
