package metadata

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/autorenamer/autorenamer/pkg/models"
)

// Metadata is the bag of values a rename template can draw from. Fields that
// could not be derived are left empty.
type Metadata struct {
	// OriginalName is the part of the stem before the first recognised marker.
	OriginalName string
	// Title is OriginalName with bracketed groups removed and separators
	// turned into spaces.
	Title string
	// Stem is the whole original filename without its extension.
	Stem string
	// Ext includes the leading dot.
	Ext string

	Season  string
	Episode string
	Quality string
	// Resolution is the frame size, such as 1920x1080.
	Resolution string
	Year       string
	Codec   string
	Audio   string
	Volume  string
	Chapter string
	Counter string
}

const maxExtLen = 10

var (
	// Every marker pattern puts the marker itself in the first group so that
	// its start can be used to cut the name.
	seasonEpisodeRE = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(s(\d{1,3})[ ._-]?e(\d{1,4}))`)
	crossRE         = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])((\d{1,2})x(\d{1,3}))(?:[^a-z0-9]|$)`)
	longFormRE      = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(season[ ._-]*(\d{1,3})[ ._-]*episode[ ._-]*(\d{1,4}))`)
	episodeRE       = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])((?:episode|ep|e)[ ._-]?(\d{1,4}))(?:[^a-z0-9]|$)`)
	seasonRE        = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])((?:season|s)[ ._-]?(\d{1,2}))(?:[^a-z0-9]|$)`)
	resolutionRE    = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])((\d{3,4})x(\d{3,4}))(?:[^a-z0-9]|$)`)
	qualityRE       = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])((\d{3,4})p|4k|uhd)(?:[^a-z0-9]|$)`)
	yearRE          = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(?:[^0-9]|$)`)
	codecRE         = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(x\.?26[45]|h\.?26[45]|hevc|avc|av1|xvid|divx|vp9)(?:[^a-z0-9]|$)`)
	audioRE         = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(aac|e-?ac-?3|ac3|ddp|dd|dts-?hd|dts|truehd|flac|opus|mp3)(?:\d\.\d)?(?:[^a-z0-9]|$)`)
	volumeRE        = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])((?:volume|vol)[ ._-]*(\d{1,3}))`)
	chapterRE       = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])((?:chapter|chap|ch)[ ._-]*(\d{1,4}))`)

	bracketRE = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
	spacesRE  = regexp.MustCompile(`\s+`)
)

var validQualities = map[string]bool{
	"144": true, "240": true, "360": true, "480": true, "540": true, "576": true,
	"720": true, "1080": true, "1440": true, "2160": true, "4320": true,
}

var codecNames = map[string]string{
	"x264": "x264", "x.264": "x264", "x265": "x265", "x.265": "x265",
	"h264": "H.264", "h.264": "H.264", "h265": "H.265", "h.265": "H.265",
	"hevc": "HEVC", "avc": "AVC", "av1": "AV1", "xvid": "XviD", "divx": "DivX", "vp9": "VP9",
}

var audioNames = map[string]string{
	"aac": "AAC", "ac3": "AC3", "eac3": "EAC3", "e-ac3": "EAC3", "e-ac-3": "EAC3", "eac-3": "EAC3",
	"ddp": "DDP", "dd": "DD", "dts": "DTS", "dtshd": "DTS-HD", "dts-hd": "DTS-HD",
	"truehd": "TrueHD", "flac": "FLAC", "opus": "Opus", "mp3": "MP3",
}

// Extract derives template values from a filename and the user's settings.
// It reads the sequence counter but never advances it.
func Extract(originalFilename string, settings *models.UserSettings) Metadata {
	stem, ext := SplitExt(originalFilename)
	md := Metadata{Stem: stem, Ext: ext}
	if settings != nil {
		md.Counter = strconv.FormatInt(settings.Counter, 10)
	}

	cut := len(stem)
	mark := func(loc []int) {
		if loc != nil && loc[2] < cut {
			cut = loc[2]
		}
	}

	if loc := seasonEpisodeRE.FindStringSubmatchIndex(stem); loc != nil {
		md.Season, md.Episode = pad(stem[loc[4]:loc[5]]), pad(stem[loc[6]:loc[7]])
		mark(loc)
	} else if loc := longFormRE.FindStringSubmatchIndex(stem); loc != nil {
		md.Season, md.Episode = pad(stem[loc[4]:loc[5]]), pad(stem[loc[6]:loc[7]])
		mark(loc)
	} else if loc := crossRE.FindStringSubmatchIndex(stem); loc != nil {
		md.Season, md.Episode = pad(stem[loc[4]:loc[5]]), pad(stem[loc[6]:loc[7]])
		mark(loc)
	} else {
		if loc := episodeRE.FindStringSubmatchIndex(stem); loc != nil {
			md.Episode = pad(stem[loc[4]:loc[5]])
			mark(loc)
		}
		if loc := seasonRE.FindStringSubmatchIndex(stem); loc != nil {
			md.Season = pad(stem[loc[4]:loc[5]])
			mark(loc)
		}
	}

	if loc := qualityRE.FindStringSubmatchIndex(stem); loc != nil {
		if q := normalizeQuality(stem[loc[2]:loc[3]]); q != "" {
			md.Quality = q
			mark(loc)
		}
	}
	// A year is never the whole name, and a resolution's digits are not a year.
	yearScan := stem
	if loc := resolutionRE.FindStringSubmatchIndex(stem); loc != nil {
		md.Resolution = strings.ToLower(stem[loc[2]:loc[3]])
		mark(loc)
		yearScan = stem[:loc[2]] + strings.Repeat(" ", loc[3]-loc[2]) + stem[loc[3]:]
	}
	if loc := findYear(yearScan); loc != nil {
		md.Year = stem[loc[2]:loc[3]]
		mark(loc)
	}
	if loc := codecRE.FindStringSubmatchIndex(stem); loc != nil {
		md.Codec = codecNames[strings.ToLower(stem[loc[2]:loc[3]])]
		mark(loc)
	}
	if loc := audioRE.FindStringSubmatchIndex(stem); loc != nil {
		md.Audio = audioNames[strings.ToLower(stem[loc[2]:loc[3]])]
		mark(loc)
	}
	if loc := volumeRE.FindStringSubmatchIndex(stem); loc != nil {
		md.Volume = pad(stem[loc[4]:loc[5]])
		mark(loc)
	}
	if loc := chapterRE.FindStringSubmatchIndex(stem); loc != nil {
		md.Chapter = pad(stem[loc[4]:loc[5]])
		mark(loc)
	}

	md.OriginalName = strings.TrimRight(stem[:cut], " ._-[(")
	if md.OriginalName == "" {
		md.OriginalName = stem
	}
	md.Title = cleanTitle(md.OriginalName)

	return md
}

// SplitExt splits a filename into stem and extension. Anything after the last
// dot that does not look like an extension stays part of the stem.
func SplitExt(filename string) (string, string) {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	i := strings.LastIndex(filename, ".")
	if i <= 0 || i == len(filename)-1 {
		return filename, ""
	}
	ext := filename[i:]
	if len(ext) > maxExtLen+1 {
		return filename, ""
	}
	hasLetter := false
	for _, r := range ext[1:] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
		default:
			return filename, ""
		}
	}
	// "Show.S01E02" has no extension even though it looks like one.
	if !hasLetter || seasonEpisodeRE.MatchString(ext) {
		return filename, ""
	}
	return filename[:i], ext
}

// findYear returns the first year match that does not open the name.
// Matches are searched one after another from the end of the previous year
// so that adjacent years like "2019.2020" are both considered.
func findYear(stem string) []int {
	for offset := 0; offset < len(stem); {
		loc := yearRE.FindStringSubmatchIndex(stem[offset:])
		if loc == nil {
			return nil
		}
		for i := range loc {
			loc[i] += offset
		}
		if loc[2] > 0 {
			return loc
		}
		offset = loc[3]
	}
	return nil
}

func pad(digits string) string {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return digits
	}
	return fmt.Sprintf("%02d", n)
}

func normalizeQuality(raw string) string {
	lower := strings.ToLower(raw)
	switch lower {
	case "4k", "uhd":
		return "2160p"
	}
	if validQualities[strings.TrimSuffix(lower, "p")] {
		return lower
	}
	return ""
}

func cleanTitle(name string) string {
	title := bracketRE.ReplaceAllString(name, " ")
	title = strings.NewReplacer(".", " ", "_", " ").Replace(title)
	title = strings.Trim(spacesRE.ReplaceAllString(title, " "), " -")
	if title == "" {
		return name
	}
	return title
}
