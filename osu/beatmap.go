package osu

// Beatmap is the subset of the osu! API v2 BeatmapExtended object used to
// name and locate a beatmap's downloadable set.
type Beatmap struct {
	ID           int        `json:"id"`
	BeatmapsetID int        `json:"beatmapset_id"`
	Version      string     `json:"version"`
	Mode         string     `json:"mode"`
	Status       string     `json:"status"`
	Beatmapset   Beatmapset `json:"beatmapset"`
}

// Beatmapset is the containing set of a Beatmap.
type Beatmapset struct {
	ID            int    `json:"id"`
	Artist        string `json:"artist"`
	ArtistUnicode string `json:"artist_unicode"`
	Title         string `json:"title"`
	TitleUnicode  string `json:"title_unicode"`
	Creator       string `json:"creator"`
}

// SetID returns the identifier of the containing beatmap set.
func (b *Beatmap) SetID() int {
	if b.Beatmapset.ID != 0 {
		return b.Beatmapset.ID
	}
	return b.BeatmapsetID
}

// DisplayArtist returns the unicode artist, or the romanised artist when the
// unicode form is missing.
func (s Beatmapset) DisplayArtist() string {
	if s.ArtistUnicode != "" {
		return s.ArtistUnicode
	}
	return s.Artist
}
