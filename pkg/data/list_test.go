package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const animeExport = `<?xml version="1.0" encoding="UTF-8" ?>
<myanimelist>
	<myinfo>
		<user_name>tester</user_name>
		<user_export_type>1</user_export_type>
	</myinfo>
	<anime>
		<series_animedb_id>5114</series_animedb_id>
		<series_title><![CDATA[Fullmetal Alchemist: Brotherhood]]></series_title>
		<my_score>10</my_score>
		<my_status>Completed</my_status>
		<update_on_import>0</update_on_import>
	</anime>
	<anime>
		<series_animedb_id>1535</series_animedb_id>
		<series_title><![CDATA[Death Note]]></series_title>
		<my_score>0</my_score>
		<my_status>Watching</my_status>
		<update_on_import>0</update_on_import>
	</anime>
	<anime>
		<series_animedb_id>21</series_animedb_id>
		<series_title><![CDATA[One Piece]]></series_title>
		<my_score>8</my_score>
		<my_status>Plan to Watch</my_status>
		<update_on_import>0</update_on_import>
	</anime>
	<anime>
		<series_animedb_id>0</series_animedb_id>
		<series_title><![CDATA[Broken]]></series_title>
		<my_score>5</my_score>
		<my_status>Completed</my_status>
		<update_on_import>0</update_on_import>
	</anime>
	<anime>
		<series_animedb_id>9253</series_animedb_id>
		<series_title></series_title>
		<my_score>9</my_score>
		<my_status>Completed</my_status>
		<update_on_import>0</update_on_import>
	</anime>
</myanimelist>
`

const mangaExport = `<?xml version="1.0" encoding="UTF-8" ?>
<myanimelist>
	<myinfo>
		<user_export_type>2</user_export_type>
	</myinfo>
	<manga>
		<manga_mangadb_id>2</manga_mangadb_id>
		<manga_title><![CDATA[Berserk]]></manga_title>
		<my_score>9</my_score>
		<my_status>Reading</my_status>
		<update_on_import>0</update_on_import>
	</manga>
	<manga>
		<manga_mangadb_id>13</manga_mangadb_id>
		<manga_title><![CDATA[One Piece]]></manga_title>
		<my_score>7</my_score>
		<my_status>Dropped</my_status>
		<update_on_import>0</update_on_import>
	</manga>
</myanimelist>
`

func TestParseMALXML(t *testing.T) {
	t.Run("anime export", func(t *testing.T) {
		list, err := ParseMALXML([]byte(animeExport), DefaultImportConfig())
		require.NoError(t, err)

		assert.Equal(t, KindAnime, list.Kind)
		assert.Equal(t, FormatMAL, list.Format)
		require.Len(t, list.Entries, 3)
		assert.Equal(t, 2, list.Skipped, "plan to watch and invalid id are skipped")

		assert.Equal(t, ListEntry{ID: 5114, Title: "Fullmetal Alchemist: Brotherhood", Status: "Completed", Score: 10}, list.Entries[0])
		assert.Equal(t, ListEntry{ID: 1535, Title: "Death Note", Status: "Watching"}, list.Entries[1])
		assert.Equal(t, "Unknown", list.Entries[2].Title)
		assert.Equal(t, []byte(animeExport), list.Original)
	})

	t.Run("manga export uses manga statuses", func(t *testing.T) {
		list, err := ParseMALXML([]byte(mangaExport), DefaultImportConfig())
		require.NoError(t, err)

		assert.Equal(t, KindManga, list.Kind)
		require.Len(t, list.Entries, 1)
		assert.Equal(t, "Berserk", list.Entries[0].Title)
		assert.Equal(t, 1, list.Skipped)
	})

	t.Run("custom status filter", func(t *testing.T) {
		config := DefaultImportConfig()
		config.AnimeStatuses = []string{"Plan to Watch"}

		list, err := ParseMALXML([]byte(animeExport), config)
		require.NoError(t, err)
		require.Len(t, list.Entries, 1)
		assert.Equal(t, 21, list.Entries[0].ID)
	})

	t.Run("malformed xml", func(t *testing.T) {
		_, err := ParseMALXML([]byte("<myanimelist><anime>"), DefaultImportConfig())
		assert.ErrorIs(t, err, ErrListFormat)
	})
}

func TestListSeeds(t *testing.T) {
	list, err := ParseMALXML([]byte(animeExport), DefaultImportConfig())
	require.NoError(t, err)

	seeds := list.Seeds()
	require.Len(t, seeds, 3)
	require.NotNil(t, seeds[0].PriorRating)
	assert.Equal(t, 10.0, *seeds[0].PriorRating)
	assert.Nil(t, seeds[1].PriorRating, "unrated entries carry no prior")
	assert.InDelta(t, 2.0/3.0, list.RatedShare(), 1e-9)

	assert.Zero(t, (&List{}).RatedShare())
}

func TestRewriteMALXML(t *testing.T) {
	t.Run("updates rated entries only", func(t *testing.T) {
		out, err := RewriteMALXML([]byte(animeExport), KindAnime, map[int]float64{
			5114: 8.46,
			1535: 6.5,
		})
		require.NoError(t, err)

		list, err := ParseMALXML(out, ImportConfig{AnimeStatuses: []string{"Completed", "Watching", "Plan to Watch"}})
		require.NoError(t, err)

		scores := map[int]float64{}
		for _, entry := range list.Entries {
			scores[entry.ID] = entry.Score
		}
		assert.Equal(t, 8.0, scores[5114])
		assert.Equal(t, 7.0, scores[1535])
		assert.Equal(t, 8.0, scores[21], "unranked entries keep their score")

		text := string(out)
		assert.Equal(t, 2, strings.Count(text, "<update_on_import>1</update_on_import>"))
		assert.Contains(t, text, "<user_name>tester</user_name>")
	})

	t.Run("manga ids", func(t *testing.T) {
		out, err := RewriteMALXML([]byte(mangaExport), KindManga, map[int]float64{13: 3.2})
		require.NoError(t, err)

		config := DefaultImportConfig()
		config.MangaStatuses = []string{"Dropped"}
		list, err := ParseMALXML(out, config)
		require.NoError(t, err)
		require.Len(t, list.Entries, 1)
		assert.Equal(t, 3.0, list.Entries[0].Score)
	})

	t.Run("truncated document", func(t *testing.T) {
		_, err := RewriteMALXML([]byte("<myanimelist><anime><series_animedb_id>1</series_animedb_id>"), KindAnime, nil)
		assert.ErrorIs(t, err, ErrListFormat)
	})
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		delimiter   string
		wantEntries []ListEntry
		wantSkipped int
		wantErr     error
	}{
		{
			name: "full header",
			content: "id,title,score,status,image\n" +
				"1,Alpha,7.5,Completed,https://img/1.jpg\n" +
				"2,\"Beta, the sequel\",,Watching,\n",
			wantEntries: []ListEntry{
				{ID: 1, Title: "Alpha", Score: 7.5, Status: "Completed", ImageURL: "https://img/1.jpg"},
				{ID: 2, Title: "Beta, the sequel", Status: "Watching"},
			},
		},
		{
			name:      "header in any case and order with bom",
			content:   "\ufeffTitle;ID\nGamma;3\n",
			delimiter: ";",
			wantEntries: []ListEntry{
				{ID: 3, Title: "Gamma"},
			},
		},
		{
			name:    "invalid rows are skipped",
			content: "id,title,score\nx,Bad id,5\n4,,5\n5,Fine,42\n5,Duplicate,1\n\n-1,Negative,3\n",
			wantEntries: []ListEntry{
				{ID: 5, Title: "Fine", Score: 10},
			},
			wantSkipped: 4,
		},
		{
			name:    "missing title column",
			content: "id,name\n1,Alpha\n",
			wantErr: ErrListFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultImportConfig()
			if tt.delimiter != "" {
				config.Delimiter = tt.delimiter
			}

			list, err := ParseCSV(strings.NewReader(tt.content), config)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, KindGeneric, list.Kind)
			assert.Equal(t, tt.wantEntries, list.Entries)
			assert.Equal(t, tt.wantSkipped, list.Skipped)
		})
	}
}

func TestParseList(t *testing.T) {
	t.Run("auto detects xml", func(t *testing.T) {
		list, err := ParseList([]byte("\n  "+animeExport), DefaultImportConfig())
		require.NoError(t, err)
		assert.Equal(t, FormatMAL, list.Format)
	})

	t.Run("auto falls back to csv", func(t *testing.T) {
		list, err := ParseList([]byte("id,title\n1,Alpha\n"), DefaultImportConfig())
		require.NoError(t, err)
		assert.Equal(t, FormatCSV, list.Format)
	})

	t.Run("nothing rankable", func(t *testing.T) {
		_, err := ParseList([]byte("id,title\n"), DefaultImportConfig())
		assert.ErrorIs(t, err, ErrEmptyList)
	})

	t.Run("explicit format wins", func(t *testing.T) {
		config := DefaultImportConfig()
		config.Format = "csv"
		_, err := ParseList([]byte(animeExport), config)
		assert.ErrorIs(t, err, ErrListFormat)
	})

	t.Run("load from file", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "animelist.xml")
		require.NoError(t, os.WriteFile(filename, []byte(animeExport), 0644))

		list, err := LoadList(filename, DefaultImportConfig())
		require.NoError(t, err)
		assert.Len(t, list.Entries, 3)

		_, err = LoadList(filepath.Join(t.TempDir(), "missing.xml"), DefaultImportConfig())
		assert.ErrorIs(t, err, ErrListFormat)
	})
}
