package mappack

import (
	"strings"

	"github.com/meigma/mappack/osu"
)

// ArchiveExt is the extension of beatmapset archives inside a pack.
const ArchiveExt = ".osz"

// pathReplacer keeps metadata-derived names to a single zip path element.
var pathReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")

// Filename returns the name of a beatmap's archive inside a pack:
// "{slot} - {artist} - {title} [{version}].osz".
//
// The artist is the set's unicode artist, or the romanised artist when the
// unicode form is empty. Path separators in any part become "_".
func Filename(slot string, beatmap *osu.Beatmap) string {
	var b strings.Builder
	b.WriteString(pathReplacer.Replace(slot))
	b.WriteString(" - ")
	b.WriteString(pathReplacer.Replace(beatmap.Beatmapset.DisplayArtist()))
	b.WriteString(" - ")
	b.WriteString(pathReplacer.Replace(beatmap.Beatmapset.Title))
	b.WriteString(" [")
	b.WriteString(pathReplacer.Replace(beatmap.Version))
	b.WriteString("]")
	b.WriteString(ArchiveExt)
	return b.String()
}
