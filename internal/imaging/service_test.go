package imaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/endpix/internal/apperr"
	"github.com/ayush/endpix/internal/models"
)

func TestUpload(t *testing.T) {
	f := newFixture()

	url, err := f.svc.Upload(context.Background(), f.userID(), pngBytes, "image/png")
	require.NoError(t, err)

	key := f.userID() + "/uploads/id-1.png"
	assert.Equal(t, "http://cdn.test/endpix-images/"+key, url)
	assert.Equal(t, "image/png", f.objects.objects[key].contentType)
	assert.Equal(t, url, f.user.ImageURL)
	assert.Equal(t, key, f.user.ImageKey)
}

func TestUpload_SniffedTypeWins(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Upload(context.Background(), f.userID(), jpegBytes, "image/png")
	require.NoError(t, err)
	assert.Equal(t, f.userID()+"/uploads/id-1.jpg", f.user.ImageKey)
}

func TestUpload_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
	}{
		{"empty", nil, "image/png"},
		{"text body", []byte("hello, not an image"), "image/png"},
		{"declared pdf", pngBytes, "application/pdf"},
		{"garbled declared type", pngBytes, "image/png; ==="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Upload(context.Background(), f.userID(), tt.data, tt.declared)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
			assert.Empty(t, f.objects.objects)
		})
	}
}

func TestUpload_OctetStreamFallsBackToSniffing(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Upload(context.Background(), f.userID(), pngBytes, "application/octet-stream")
	assert.NoError(t, err)
}

func TestUpload_UnknownUser(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Upload(context.Background(), "000000000000000000000000", pngBytes, "image/png")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpload_StorageFailureIsUpstream(t *testing.T) {
	f := newFixture()
	f.objects.uploadErr = errBoom

	_, err := f.svc.Upload(context.Background(), f.userID(), pngBytes, "image/png")
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Empty(t, f.user.ImageKey)
}

func TestUpload_IdentityUpdateFailureRemovesObject(t *testing.T) {
	f := newFixture()
	f.identities.setErr = errBoom

	_, err := f.svc.Upload(context.Background(), f.userID(), pngBytes, "image/png")
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.Empty(t, f.objects.objects)
	assert.Equal(t, []string{f.userID() + "/uploads/id-1.png"}, f.objects.removed)
	assert.Empty(t, f.user.ImageKey)
}

func TestUpload_RemoveFailureKeepsOriginalError(t *testing.T) {
	f := newFixture()
	f.identities.setErr = errBoom
	f.objects.removeErr = errors.New("minio: connection refused")

	_, err := f.svc.Upload(context.Background(), f.userID(), pngBytes, "image/png")
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.Len(t, f.objects.removed, 1)
}

func TestUpload_CancelledContextStillRemovesObject(t *testing.T) {
	f := newFixture()
	f.identities.setErr = context.Canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Upload(ctx, f.userID(), pngBytes, "image/png")
	assert.Error(t, err)
	assert.Empty(t, f.objects.objects)
}

func TestEnhance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Upload(ctx, f.userID(), jpegBytes, "image/jpeg")
	require.NoError(t, err)
	sourceKey := f.user.ImageKey

	e, err := f.svc.Enhance(ctx, f.userID(), models.EnhanceRequest{Style: "anime", Upscaling: "2x", Prompt: "brighter"})
	require.NoError(t, err)

	resultKey := f.userID() + "/enhanced/id-2.png"
	assert.Equal(t, "http://cdn.test/endpix-images/"+resultKey, e.ResultURL)
	assert.Equal(t, e.ResultURL, f.user.ImageURL)
	assert.Equal(t, resultKey, f.user.ImageKey)

	assert.Equal(t, jpegBytes, f.transformer.got.Image)
	assert.Equal(t, "image/jpeg", f.transformer.got.MimeType)
	assert.Equal(t, "brighter", f.transformer.got.Prompt)
	assert.Equal(t, "anime", f.transformer.got.Style)
	assert.Equal(t, "2x", f.transformer.got.Upscaling)

	require.Len(t, f.journal.entries, 1)
	assert.Equal(t, sourceKey, f.journal.entries[0].SourceKey)
	assert.Equal(t, resultKey, f.journal.entries[0].ResultKey)
}

func TestEnhance_Defaults(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Upload(ctx, f.userID(), pngBytes, "image/png")
	require.NoError(t, err)

	_, err = f.svc.Enhance(ctx, f.userID(), models.EnhanceRequest{Style: "original"})
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompt, f.transformer.got.Prompt)
	assert.Equal(t, "1x", f.transformer.got.Upscaling)
}

func TestEnhance_RequiresUpload(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Enhance(context.Background(), f.userID(), models.EnhanceRequest{Style: "anime"})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, "image", ae.Fields[0].Field)
}

func TestEnhance_Validation(t *testing.T) {
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}
	tests := []struct {
		name  string
		req   models.EnhanceRequest
		field string
	}{
		{"missing style", models.EnhanceRequest{}, "style"},
		{"unknown style", models.EnhanceRequest{Style: "vaporwave"}, "style"},
		{"bad upscaling", models.EnhanceRequest{Style: "anime", Upscaling: "3x"}, "upscaling"},
		{"long prompt", models.EnhanceRequest{Style: "anime", Prompt: string(long)}, "prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Enhance(context.Background(), f.userID(), tt.req)
			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, apperr.KindValidation, ae.Kind)
			assert.Equal(t, tt.field, ae.Fields[0].Field)
		})
	}
}

func TestEnhance_TransformerFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	url, err := f.svc.Upload(ctx, f.userID(), pngBytes, "image/png")
	require.NoError(t, err)
	f.transformer.err = errBoom

	_, err = f.svc.Enhance(ctx, f.userID(), models.EnhanceRequest{Style: "anime"})
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Equal(t, url, f.user.ImageURL, "current image is unchanged")
	assert.Empty(t, f.journal.entries)
}

func TestEnhance_IdentityUpdateFailureRemovesResult(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	url, err := f.svc.Upload(ctx, f.userID(), pngBytes, "image/png")
	require.NoError(t, err)
	sourceKey := f.user.ImageKey
	f.identities.setErr = errBoom

	_, err = f.svc.Enhance(ctx, f.userID(), models.EnhanceRequest{Style: "anime"})
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	require.Len(t, f.objects.objects, 1, "only the source image remains")
	assert.Contains(t, f.objects.objects, sourceKey)
	assert.Equal(t, url, f.user.ImageURL)
	assert.Empty(t, f.journal.entries)
}

func TestEnhance_JournalFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Upload(ctx, f.userID(), pngBytes, "image/png")
	require.NoError(t, err)
	f.journal.err = errBoom

	e, err := f.svc.Enhance(ctx, f.userID(), models.EnhanceRequest{Style: "watercolor"})
	require.NoError(t, err)
	assert.Equal(t, e.ResultURL, f.user.ImageURL)
}

func TestHistory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	list, err := f.svc.History(ctx, f.userID())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = f.svc.Upload(ctx, f.userID(), pngBytes, "image/png")
	require.NoError(t, err)
	_, err = f.svc.Enhance(ctx, f.userID(), models.EnhanceRequest{Style: "anime"})
	require.NoError(t, err)
	_, err = f.svc.Enhance(ctx, f.userID(), models.EnhanceRequest{Style: "cyberpunk"})
	require.NoError(t, err)

	list, err = f.svc.History(ctx, f.userID())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cyberpunk", list[0].Style)
	assert.Equal(t, "anime", list[1].Style)

	f.journal.err = errBoom
	_, err = f.svc.History(ctx, f.userID())
	assert.True(t, apperr.Is(err, apperr.KindInternal))
}
