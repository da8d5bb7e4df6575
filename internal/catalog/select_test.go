package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidra-dl/vidra/internal/engine"
)

var sampleCatalog = []engine.Rendition{
	{ID: "v-1080-av1", Kind: engine.KindVideo, Height: 1080, Codec: "av01", Bitrate: 2500, Container: "webm"},
	{ID: "v-1080-avc", Kind: engine.KindVideo, Height: 1080, Codec: "avc1", Bitrate: 3000, Container: "mp4"},
	{ID: "v-720", Kind: engine.KindVideo, Height: 720, Codec: "avc1", Bitrate: 1500, Container: "mp4"},
	{ID: "a-en", Kind: engine.KindAudio, Language: "en", Bitrate: 128, Container: "m4a"},
	{ID: "a-de", Kind: engine.KindAudio, Language: "de", Bitrate: 160, Container: "m4a"},
	{ID: "sub-en", Kind: engine.KindSubtitle, Language: "en", Container: "vtt"},
	{ID: "sub-de", Kind: engine.KindSubtitle, Language: "de", Container: "vtt"},
}

func TestAutoSelectPrefersHeightThenCodec(t *testing.T) {
	sel, err := AutoSelect(sampleCatalog, SelectPolicy{
		AudioLanguage:   "en",
		CodecPreference: []string{"avc1", "av01"},
	})
	require.NoError(t, err)
	assert.Equal(t, "v-1080-avc", sel.VideoID, "codec preference breaks the resolution tie")
	assert.Equal(t, "a-en", sel.AudioID, "preferred language beats higher bitrate")
	assert.Empty(t, sel.SubtitleIDs, "no subtitles without a configured language")
	assert.Equal(t, "mp4", sel.Container)
}

func TestAutoSelectSubtitleLanguage(t *testing.T) {
	sel, err := AutoSelect(sampleCatalog, SelectPolicy{
		AudioLanguage:    "en",
		SubtitleLanguage: "de",
		CodecPreference:  []string{"avc1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-de"}, sel.SubtitleIDs)
}

func TestAutoSelectFallsBackToBitrate(t *testing.T) {
	sel, err := AutoSelect(sampleCatalog, SelectPolicy{AudioLanguage: "ja"})
	require.NoError(t, err)
	assert.Equal(t, "a-de", sel.AudioID, "highest bitrate when no track matches the language")
}

func TestAutoSelectIsDeterministic(t *testing.T) {
	policy := SelectPolicy{AudioLanguage: "en", CodecPreference: []string{"avc1"}}
	first, err := AutoSelect(sampleCatalog, policy)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := AutoSelect(sampleCatalog, policy)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAutoSelectAudioOnlyCatalog(t *testing.T) {
	sel, err := AutoSelect([]engine.Rendition{
		{ID: "a1", Kind: engine.KindAudio, Bitrate: 128, Container: "m4a"},
	}, SelectPolicy{})
	require.NoError(t, err)
	assert.Empty(t, sel.VideoID)
	assert.Equal(t, "a1", sel.AudioID)
	assert.Equal(t, "m4a", sel.Container)
}

func TestAutoSelectEmptyCatalog(t *testing.T) {
	_, err := AutoSelect([]engine.Rendition{
		{ID: "sub-en", Kind: engine.KindSubtitle, Language: "en"},
	}, SelectPolicy{})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	sel := Selection{VideoID: "v-720", AudioID: "a-en"}
	assert.NoError(t, sel.Validate(sampleCatalog))

	sel = Selection{VideoID: "v-4320"}
	assert.Error(t, sel.Validate(sampleCatalog))

	sel = Selection{}
	assert.Error(t, sel.Validate(sampleCatalog), "empty selection is invalid")
}

func TestSelectionIDsOrder(t *testing.T) {
	sel := Selection{VideoID: "v", AudioID: "a", SubtitleIDs: []string{"s1", "s2"}}
	assert.Equal(t, []string{"v", "a", "s1", "s2"}, sel.IDs())

	sel = Selection{AudioID: "a"}
	assert.Equal(t, []string{"a"}, sel.IDs())
}
