package mappack

// EntryStatus classifies how a pool entry fared during a build.
type EntryStatus string

// Entry statuses.
const (
	// StatusOK means the entry's archive is in the pack.
	StatusOK EntryStatus = "ok"

	// StatusMalformedReference means the URL did not name a beatmap.
	StatusMalformedReference EntryStatus = "malformed_reference"

	// StatusMetadataUnavailable means the osu! API lookup failed.
	StatusMetadataUnavailable EntryStatus = "metadata_unavailable"

	// StatusArchiveUnavailable means no mirror served the archive.
	StatusArchiveUnavailable EntryStatus = "archive_unavailable"
)

// EntryOutcome reports the result of resolving one pool entry.
type EntryOutcome struct {
	Slot     string      `json:"slot"`
	URL      string      `json:"url"`
	Status   EntryStatus `json:"status"`
	Filename string      `json:"filename,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// OK reports whether the entry made it into the pack.
func (o EntryOutcome) OK() bool {
	return o.Status == StatusOK
}
