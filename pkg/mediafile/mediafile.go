package mediafile

import (
	"os"
	"strings"
	"time"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	gomp4 "github.com/abema/go-mp4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

type Kind string

const (
	KindDocument Kind = "document"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
)

// Info describes a downloaded file well enough to pick how it is sent back.
type Info struct {
	MimeType string
	Kind     Kind
	Duration time.Duration
	Width    int
	Height   int
}

// streamableVideo lists containers the platform plays inline. Other videos
// are sent back as documents.
var streamableVideo = map[string]bool{
	"video/mp4":       true,
	"video/quicktime": true,
	"video/x-m4v":     true,
}

// Detect sniffs the file's type from its content and, for MP4-family files,
// reads duration and dimensions.
func Detect(path string) (*Info, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, errcodes.Storage(errors.WithStack(err))
	}

	info := &Info{MimeType: mtype.String(), Kind: KindDocument}
	base := strings.SplitN(info.MimeType, ";", 2)[0]

	switch {
	case streamableVideo[base]:
		info.Kind = KindVideo
	case strings.HasPrefix(base, "audio/"):
		info.Kind = KindAudio
	}

	if isMP4Family(mtype) {
		// A broken moov box only costs the inline player its metadata.
		_ = readMP4(path, info)
	}

	return info, nil
}

func isMP4Family(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		switch m.String() {
		case "video/mp4", "video/quicktime", "video/x-m4v", "audio/mp4", "audio/x-m4a":
			return true
		}
	}
	return false
}

func readMP4(path string, info *Info) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	_, err = gomp4.ReadBoxStructure(f, func(h *gomp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak():
			return h.Expand()
		case gomp4.BoxTypeMvhd():
			payload, _, err := h.ReadPayload()
			if err != nil {
				return nil, errors.WithStack(err)
			}
			if mvhd, ok := payload.(*gomp4.Mvhd); ok && mvhd.Timescale > 0 {
				var units uint64
				if mvhd.Version == 0 {
					units = uint64(mvhd.DurationV0)
				} else {
					units = mvhd.DurationV1
				}
				info.Duration = time.Duration(units) * time.Second / time.Duration(mvhd.Timescale)
			}
		case gomp4.BoxTypeTkhd():
			payload, _, err := h.ReadPayload()
			if err != nil {
				return nil, errors.WithStack(err)
			}
			if tkhd, ok := payload.(*gomp4.Tkhd); ok {
				// Width and height are 16.16 fixed point.
				if w := int(tkhd.Width >> 16); w > info.Width {
					info.Width = w
				}
				if h := int(tkhd.Height >> 16); h > info.Height {
					info.Height = h
				}
			}
		}
		return nil, nil
	})
	return errors.WithStack(err)
}
