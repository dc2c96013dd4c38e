package template

import (
	"github.com/autorenamer/autorenamer/pkg/metadata"
)

// SampleMetadata is what /preview renders a template against.
var SampleMetadata = metadata.Metadata{
	OriginalName: "Sample.Movie",
	Title:        "Sample Movie",
	Stem:         "Sample.Movie.2024.S01E05.1080p.1920x1080.x264.AAC",
	Ext:          ".mkv",
	Season:       "01",
	Episode:      "05",
	Quality:      "1080p",
	Resolution:   "1920x1080",
	Year:         "2024",
	Codec:        "x264",
	Audio:        "AAC",
	Volume:       "01",
	Chapter:      "01",
	Counter:      "1",
}

// Preview resolves the template against SampleMetadata.
func Preview(tmpl string) (string, error) {
	return Resolve(tmpl, SampleMetadata)
}
