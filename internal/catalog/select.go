package catalog

import (
	"fmt"

	"github.com/vidra-dl/vidra/internal/engine"
)

// Selection is the caller's choice of renditions for one job. Immutable once
// the job starts transferring.
type Selection struct {
	VideoID     string
	AudioID     string
	SubtitleIDs []string
	Container   string // output container, defaults to the video's
	OutputPath  string // destination path, empty means derive from URL
}

// IDs returns the selected rendition ids in transfer order: video, audio,
// then subtitles.
func (s Selection) IDs() []string {
	var ids []string
	if s.VideoID != "" {
		ids = append(ids, s.VideoID)
	}
	if s.AudioID != "" {
		ids = append(ids, s.AudioID)
	}
	ids = append(ids, s.SubtitleIDs...)
	return ids
}

// SelectPolicy drives automatic rendition selection.
type SelectPolicy struct {
	AudioLanguage    string   // preferred audio track language
	SubtitleLanguage string   // empty disables subtitle selection
	CodecPreference  []string // tie-break for equal video resolutions
}

// AutoSelect picks the default outputs for a resolved catalog: the highest
// resolution video (ties broken by codec preference, then bitrate, then id),
// the preferred-language audio track (else highest bitrate), and the
// preferred subtitle language when available. Deterministic for a given
// catalog and policy.
func AutoSelect(renditions []engine.Rendition, policy SelectPolicy) (Selection, error) {
	var sel Selection
	var bestVideo, bestAudio *engine.Rendition
	for i := range renditions {
		r := &renditions[i]
		switch r.Kind {
		case engine.KindVideo:
			if bestVideo == nil || videoBetter(r, bestVideo, policy.CodecPreference) {
				bestVideo = r
			}
		case engine.KindAudio:
			if bestAudio == nil || audioBetter(r, bestAudio, policy.AudioLanguage) {
				bestAudio = r
			}
		case engine.KindSubtitle:
			if policy.SubtitleLanguage != "" && r.Language == policy.SubtitleLanguage {
				sel.SubtitleIDs = append(sel.SubtitleIDs, r.ID)
			}
		}
	}
	if bestVideo == nil && bestAudio == nil {
		return Selection{}, fmt.Errorf("catalog has no video or audio renditions")
	}
	if bestVideo != nil {
		sel.VideoID = bestVideo.ID
		sel.Container = bestVideo.Container
	}
	if bestAudio != nil {
		sel.AudioID = bestAudio.ID
		if sel.Container == "" {
			sel.Container = bestAudio.Container
		}
	}
	return sel, nil
}

// Validate checks that every selected id exists in the catalog.
func (s Selection) Validate(renditions []engine.Rendition) error {
	known := make(map[string]bool, len(renditions))
	for _, r := range renditions {
		known[r.ID] = true
	}
	for _, id := range s.IDs() {
		if !known[id] {
			return fmt.Errorf("selection references unknown rendition %q", id)
		}
	}
	if len(s.IDs()) == 0 {
		return fmt.Errorf("selection is empty")
	}
	return nil
}

func videoBetter(a, b *engine.Rendition, codecPref []string) bool {
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	ar, br := codecRank(a.Codec, codecPref), codecRank(b.Codec, codecPref)
	if ar != br {
		return ar < br
	}
	if a.Bitrate != b.Bitrate {
		return a.Bitrate > b.Bitrate
	}
	return a.ID < b.ID
}

func audioBetter(a, b *engine.Rendition, lang string) bool {
	if lang != "" && (a.Language == lang) != (b.Language == lang) {
		return a.Language == lang
	}
	if a.Bitrate != b.Bitrate {
		return a.Bitrate > b.Bitrate
	}
	return a.ID < b.ID
}

func codecRank(codec string, pref []string) int {
	for i, c := range pref {
		if c == codec {
			return i
		}
	}
	return len(pref)
}
