// Package template resolves user rename templates such as
// "{original_name}_S{season}E{episode}_{counter}" into safe filenames.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/metadata"
	"github.com/autorenamer/autorenamer/pkg/models"
	"golang.org/x/text/unicode/norm"
)

// Token is a placeholder name the engine knows how to fill.
type Token string

const (
	TokenOriginalName Token = "original_name"
	TokenTitle        Token = "title"
	TokenSeason       Token = "season"
	TokenEpisode      Token = "episode"
	TokenQuality      Token = "quality"
	TokenResolution   Token = "resolution"
	TokenCounter      Token = "counter"
	TokenYear         Token = "year"
	TokenCodec        Token = "codec"
	TokenAudio        Token = "audio"
	TokenVolume       Token = "volume"
	TokenChapter      Token = "chapter"
	TokenExt          Token = "ext"
)

// Tokens lists every recognised token in the order they are documented.
var Tokens = []Token{
	TokenOriginalName, TokenTitle, TokenSeason, TokenEpisode, TokenQuality, TokenResolution,
	TokenCounter, TokenYear, TokenCodec, TokenAudio, TokenVolume, TokenChapter, TokenExt,
}

const (
	// MaxStemBytes caps the name without its extension.
	MaxStemBytes = 200
	// FallbackName is used when nothing usable is left after sanitising.
	FallbackName = "renamed_file"
	safePunct    = "._-()[]{}+,&!'#@~="
	trimChars    = " _.-"
)

var (
	tokenNameRE  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	underscoreRE = regexp.MustCompile(`_{2,}`)
	spaceRE      = regexp.MustCompile(`\s+`)
)

// SyntaxError describes a malformed template.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos+1)
}

// lookup is the closed set of token handlers. The boolean is false for names
// the engine does not recognise.
func lookup(name string, md metadata.Metadata) (string, bool) {
	switch Token(strings.ToLower(name)) {
	case TokenOriginalName:
		return md.OriginalName, true
	case TokenTitle:
		return md.Title, true
	case TokenSeason:
		return md.Season, true
	case TokenEpisode:
		return md.Episode, true
	case TokenQuality:
		return md.Quality, true
	case TokenResolution:
		return md.Resolution, true
	case TokenCounter:
		return md.Counter, true
	case TokenYear:
		return md.Year, true
	case TokenCodec:
		return md.Codec, true
	case TokenAudio:
		return md.Audio, true
	case TokenVolume:
		return md.Volume, true
	case TokenChapter:
		return md.Chapter, true
	case TokenExt:
		return strings.TrimPrefix(md.Ext, "."), true
	}
	return "", false
}

type segment struct {
	literal string
	token   string
	isToken bool
}

func parse(tmpl string) ([]segment, error) {
	var segs []segment
	var lit strings.Builder
	open := -1
	for i, r := range tmpl {
		switch r {
		case '{':
			if open >= 0 {
				return nil, &SyntaxError{Pos: i, Msg: "unexpected '{' inside a placeholder"}
			}
			open = i
		case '}':
			if open < 0 {
				return nil, &SyntaxError{Pos: i, Msg: "unmatched '}'"}
			}
			if lit.Len() > 0 {
				segs = append(segs, segment{literal: lit.String()})
				lit.Reset()
			}
			segs = append(segs, segment{token: tmpl[open+1 : i], isToken: true})
			open = -1
		default:
			if open < 0 {
				lit.WriteRune(r)
			}
		}
	}
	if open >= 0 {
		return nil, &SyntaxError{Pos: open, Msg: "unclosed '{'"}
	}
	if lit.Len() > 0 {
		segs = append(segs, segment{literal: lit.String()})
	}
	return segs, nil
}

// Validate checks that every brace in the template is balanced.
func Validate(tmpl string) error {
	_, err := parse(tmpl)
	return errcodes.Template(err)
}

// Unknown returns the placeholders in the template the engine will leave
// untouched.
func Unknown(tmpl string) []string {
	segs, err := parse(tmpl)
	if err != nil {
		return nil
	}
	var unknown []string
	for _, s := range segs {
		if !s.isToken {
			continue
		}
		if _, ok := lookup(s.token, metadata.Metadata{}); !ok || !tokenNameRE.MatchString(s.token) {
			unknown = append(unknown, "{"+s.token+"}")
		}
	}
	return unknown
}

// Resolve fills the template from md and returns a sanitised filename that
// keeps the original extension. An empty template keeps the original name.
func Resolve(tmpl string, md metadata.Metadata) (string, error) {
	return ResolveWithRules(tmpl, md, nil)
}

// ResolveWithRules is Resolve with text replacement rules applied to the
// substituted name before it is sanitised.
func ResolveWithRules(tmpl string, md metadata.Metadata, rules []models.ReplaceRule) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		return Finalize(md.Stem, md.Ext, rules), nil
	}

	segs, err := parse(tmpl)
	if err != nil {
		return "", errcodes.Template(err)
	}

	var b strings.Builder
	for _, s := range segs {
		if !s.isToken {
			b.WriteString(s.literal)
			continue
		}
		if tokenNameRE.MatchString(s.token) {
			if v, ok := lookup(s.token, md); ok {
				b.WriteString(v)
				continue
			}
		}
		b.WriteString("{" + s.token + "}")
	}

	return Finalize(TrimExt(b.String(), md.Ext), md.Ext, rules), nil
}

// TrimExt removes ext from the end of name, ignoring case.
func TrimExt(name, ext string) string {
	if ext == "" || len(name) < len(ext) {
		return name
	}
	if tail := name[len(name)-len(ext):]; strings.EqualFold(tail, ext) {
		return name[:len(name)-len(ext)]
	}
	return name
}

// Finalize applies replacement rules to stem, sanitises it, and appends ext.
func Finalize(stem, ext string, rules []models.ReplaceRule) string {
	for _, rule := range rules {
		if rule.From == "" {
			continue
		}
		stem = strings.ReplaceAll(stem, rule.From, rule.To)
	}

	stem = Sanitize(stem)
	if len(stem) > MaxStemBytes {
		stem = truncate(stem, MaxStemBytes)
		stem = strings.Trim(stem, trimChars)
	}
	if stem == "" {
		stem = FallbackName
	}
	return stem + sanitizeExt(ext)
}

// IsSafe reports whether r may appear in a resolved filename.
func IsSafe(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == ' ' ||
		strings.ContainsRune(safePunct, r)
}

// Sanitize normalises s to NFC and replaces every rune outside the safe set
// with an underscore, collapsing runs of underscores and whitespace.
func Sanitize(s string) string {
	s = norm.NFC.String(s)
	s = spaceRE.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if IsSafe(r) {
			return r
		}
		return '_'
	}, s)
	s = underscoreRE.ReplaceAllString(s, "_")
	return strings.Trim(s, trimChars)
}

func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	var b strings.Builder
	for _, r := range ext {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "." + b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
