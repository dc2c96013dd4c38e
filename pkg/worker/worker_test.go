package worker

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/mediafile"
	"github.com/autorenamer/autorenamer/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const episodeTemplate = "{original_name}_S{season}E{episode}_{counter}"

func renameJob(id string, userID int64, name, fileRef string) *models.RenameJob {
	return &models.RenameJob{
		ID:           id,
		UserID:       userID,
		ChatID:       userID,
		DisplayName:  "tester",
		FileRef:      fileRef,
		OriginalName: name,
		MessageID:    11,
		Status:       models.JobStatusRunning,
	}
}

func TestProcess_RenamesAndAdvancesCounter(t *testing.T) {
	tc := newTestContext(t)
	tc.setCounter(1, 5)
	require.NoError(t, tc.settingsService.UpdateTemplate(tc.ctx, 1, episodeTemplate))
	tc.client.files["ref-1"] = []byte("episode bytes")

	err := tc.worker.Process(tc.ctx, renameJob("job-1", 1, "clip.S01E02.mkv", "ref-1"))
	require.NoError(t, err)

	require.Len(t, tc.client.uploads, 1)
	up := tc.client.uploads[0]
	assert.Equal(t, "clip_S01E02_5.mkv", up.Name)
	assert.Equal(t, "Renamed: clip_S01E02_5.mkv", up.Caption)
	assert.Equal(t, []byte("episode bytes"), up.Contents)
	assert.Equal(t, mediafile.KindDocument, up.Kind)
	assert.Equal(t, 11, up.ReplyTo)
	assert.Empty(t, up.ThumbnailPath)

	assert.Equal(t, int64(6), tc.counter(1))

	totals, err := tc.statsService.Totals(tc.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.TotalFiles)
	assert.Equal(t, int64(len("episode bytes")), totals.TotalBytes)

	assert.Equal(t, 0, tc.scratch.Active())
	assert.Empty(t, tc.scratchEntries())
	assert.Empty(t, tc.client.messages)
}

func TestProcess_CounterCountsOnlySuccesses(t *testing.T) {
	tc := newTestContext(t)
	tc.setCounter(2, 1)
	tc.client.files["ref"] = []byte("x")

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, tc.worker.Process(tc.ctx, renameJob(id, 2, "file.txt", "ref")), "job %d", i)
	}
	assert.Equal(t, int64(4), tc.counter(2))

	tc.client.uploadErr = errcodes.Transport(errors.New("connection reset"))
	err := tc.worker.Process(tc.ctx, renameJob("d", 2, "file.txt", "ref"))
	require.Error(t, err)
	assert.Equal(t, int64(4), tc.counter(2))
}

func TestProcess_UploadFailureReportsAndCleansUp(t *testing.T) {
	tc := newTestContext(t)
	tc.setCounter(3, 5)
	tc.client.files["ref"] = []byte("data")
	tc.client.uploadErr = errcodes.Transport(errors.Wrap(errcodes.ErrRateLimited, "429"))

	err := tc.worker.Process(tc.ctx, renameJob("job-x", 3, "clip.S01E02.mkv", "ref"))
	require.Error(t, err)
	assert.Equal(t, errcodes.KindTransport, errcodes.KindOf(err))

	assert.Equal(t, int64(5), tc.counter(3))
	totals, err := tc.statsService.Totals(tc.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.TotalFiles)

	require.Len(t, tc.client.messages, 1)
	assert.Equal(t, int64(3), tc.client.messages[0].ChatID)
	assert.Contains(t, tc.client.messages[0].Text, "rate limiting")

	assert.Equal(t, 0, tc.scratch.Active())
	assert.Empty(t, tc.scratchEntries())
}

func TestProcess_DownloadFailure(t *testing.T) {
	tc := newTestContext(t)

	err := tc.worker.Process(tc.ctx, renameJob("job-y", 4, "a.mkv", "missing"))
	require.Error(t, err)
	assert.Equal(t, errcodes.KindTransport, errcodes.KindOf(err))
	assert.Empty(t, tc.client.uploads)
	assert.Empty(t, tc.scratchEntries())
	assert.Equal(t, int64(models.DefaultCounter), tc.counter(4))
}

func TestProcess_MalformedTemplateSkipsDownload(t *testing.T) {
	tc := newTestContext(t)
	require.NoError(t, tc.settingsService.UpdateTemplate(tc.ctx, 5, "{season"))
	tc.client.files["ref"] = []byte("data")

	err := tc.worker.Process(tc.ctx, renameJob("job-z", 5, "a.S01E01.mkv", "ref"))
	require.Error(t, err)
	assert.Equal(t, errcodes.KindTemplate, errcodes.KindOf(err))
	assert.Empty(t, tc.client.downloads)
	require.Len(t, tc.client.messages, 1)
	assert.Contains(t, tc.client.messages[0].Text, "/autorename")
}

func TestProcess_DuplicateJobIDIsStorageError(t *testing.T) {
	tc := newTestContext(t)
	tc.client.files["ref"] = []byte("data")

	space, err := tc.scratch.Acquire("dup")
	require.NoError(t, err)
	defer space.Release()

	err = tc.worker.Process(tc.ctx, renameJob("dup", 6, "a.mkv", "ref"))
	require.Error(t, err)
	assert.Equal(t, errcodes.KindStorage, errcodes.KindOf(err))
}

func TestProcess_AutoMediaTypeSendsAudio(t *testing.T) {
	tc := newTestContext(t)
	require.NoError(t, tc.settingsService.SetMediaType(tc.ctx, 7, models.MediaTypeAuto))
	mp3 := append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0}, 128)...)
	tc.client.files["song"] = mp3

	require.NoError(t, tc.worker.Process(tc.ctx, renameJob("job-a", 7, "track.mp3", "song")))
	require.Len(t, tc.client.uploads, 1)
	assert.Equal(t, mediafile.KindAudio, tc.client.uploads[0].Kind)
	assert.Equal(t, "track.mp3", tc.client.uploads[0].Name)
}

func TestProcess_AttachesNormalizedThumbnail(t *testing.T) {
	tc := newTestContext(t)
	require.NoError(t, tc.settingsService.SetThumbnail(tc.ctx, 8, "thumb-ref"))

	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for x := 0; x < 640; x++ {
		img.Set(x, 10, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	tc.client.files["thumb-ref"] = buf.Bytes()
	tc.client.files["doc"] = []byte("pdf-ish")

	require.NoError(t, tc.worker.Process(tc.ctx, renameJob("job-t", 8, "report.pdf", "doc")))
	require.Len(t, tc.client.uploads, 1)

	thumb, err := jpeg.Decode(bytes.NewReader(tc.client.uploads[0].Thumbnail))
	require.NoError(t, err)
	assert.Equal(t, 320, thumb.Bounds().Dx())
	assert.Equal(t, 240, thumb.Bounds().Dy())
	assert.Empty(t, tc.scratchEntries())
}

func TestProcess_BrokenThumbnailStillDelivers(t *testing.T) {
	tc := newTestContext(t)
	require.NoError(t, tc.settingsService.SetThumbnail(tc.ctx, 9, "gone"))
	tc.client.files["doc"] = []byte("data")

	require.NoError(t, tc.worker.Process(tc.ctx, renameJob("job-b", 9, "a.mkv", "doc")))
	require.Len(t, tc.client.uploads, 1)
	assert.Empty(t, tc.client.uploads[0].ThumbnailPath)
}

func TestNewName(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		tmpl     string
		caption  string
		rules    []models.ReplaceRule
		original string
		expected string
	}{
		{
			name:     "auto with empty template keeps the name",
			mode:     models.RenameModeAuto,
			original: "Some File.mkv",
			expected: "Some File.mkv",
		},
		{
			name:     "auto with template",
			mode:     models.RenameModeAuto,
			tmpl:     "{title} {quality}",
			original: "My.Movie.2020.1080p.mkv",
			expected: "My Movie 1080p.mkv",
		},
		{
			name:     "manual uses the caption",
			mode:     models.RenameModeManual,
			caption:  "Holiday Video",
			original: "VID_0001.mp4",
			expected: "Holiday Video.mp4",
		},
		{
			name:     "manual drops a repeated extension",
			mode:     models.RenameModeManual,
			caption:  "Holiday Video.MP4",
			original: "VID_0001.mp4",
			expected: "Holiday Video.mp4",
		},
		{
			name:     "manual caption ending in a look-alike extension",
			mode:     models.RenameModeManual,
			caption:  "Clip.m\u212av",
			original: "VID_0001.mkv",
			expected: "Clip.mKv.mkv",
		},
		{
			name:     "auto with resolution",
			mode:     models.RenameModeAuto,
			tmpl:     "{title} {resolution}",
			original: "Clip.1920x1080.mkv",
			expected: "Clip 1920x1080.mkv",
		},
		{
			name:     "manual without caption falls back to template",
			mode:     models.RenameModeManual,
			tmpl:     "clip_{counter}",
			original: "VID_0001.mp4",
			expected: "clip_1.mp4",
		},
		{
			name:     "replace applies rules to the original stem",
			mode:     models.RenameModeReplace,
			rules:    []models.ReplaceRule{{From: "[Group] ", To: ""}, {From: ".", To: " "}},
			original: "[Group] Show.Name.E01.mkv",
			expected: "Show Name E01.mkv",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.DefaultUserSettings(1)
			s.RenameMode = tt.mode
			s.Template = tt.tmpl
			s.ReplaceRules = tt.rules
			job := &models.RenameJob{OriginalName: tt.original, Caption: tt.caption}

			got, err := NewName(job, s)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestUploadLimiter_PerUser(t *testing.T) {
	tc := newTestContext(t)
	tc.worker.config.UploadsPerHour = 2

	a := tc.worker.uploadLimiter(1)
	assert.Same(t, a, tc.worker.uploadLimiter(1))
	assert.NotSame(t, a, tc.worker.uploadLimiter(2))

	assert.True(t, a.Allow())
	assert.True(t, a.Allow())
	assert.False(t, a.Allow())
}
