package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/internal/models"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
	"github.com/noah-isme/hostelx-api/pkg/storage"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newEvidenceService(t *testing.T, maxSize int64) (*EvidenceService, *storage.SignedURLSigner) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("evidence-secret", 15*time.Minute)
	svc := NewEvidenceService(store, signer, EvidenceConfig{
		APIPrefix:    "/api/v1/",
		MaxFileSize:  maxSize,
		AllowedMIMEs: []string{"image/png", "image/jpeg", "application/pdf"},
	}, zap.NewNop())
	return svc, signer
}

func TestEvidenceUploadAndOpen(t *testing.T) {
	svc, _ := newEvidenceService(t, 1024)
	student := newActor(models.RoleStudent)
	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{7}, 600)...)

	resp, err := svc.Upload(context.Background(), student, bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "image/png", resp.ContentType)
	assert.EqualValues(t, len(body), resp.SizeBytes)
	assert.True(t, strings.HasPrefix(resp.Ref, student.ID+"/"))
	assert.True(t, strings.HasSuffix(resp.Ref, ".png"))
	require.True(t, strings.HasPrefix(resp.DownloadURL, "/api/v1/evidence/"))

	token := strings.TrimPrefix(resp.DownloadURL, "/api/v1/evidence/")
	file, contentType, err := svc.Open(context.Background(), student, token)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	stored, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, body, stored)
	assert.Equal(t, "image/png", contentType)

	warden, _, err := svc.Open(context.Background(), newActor(models.RoleWarden), token)
	require.NoError(t, err)
	_ = warden.Close()

	_, _, err = svc.Open(context.Background(), newActor(models.RoleStudent), token)
	requireCode(t, err, appErrors.ErrNotFound.Code)

	_, _, err = svc.Open(context.Background(), newActor(models.RoleSecurity), token)
	requireCode(t, err, appErrors.ErrForbidden.Code)
}

func TestEvidenceUploadRejectsDisallowedAndOversized(t *testing.T) {
	svc, _ := newEvidenceService(t, 64)
	student := newActor(models.RoleStudent)

	_, err := svc.Upload(context.Background(), student, strings.NewReader("#!/bin/sh\necho pwned\n"))
	requireCode(t, err, appErrors.ErrInvalidRequest.Code)

	_, err = svc.Upload(context.Background(), student, bytes.NewReader(nil))
	requireCode(t, err, appErrors.ErrInvalidRequest.Code)

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 128)...)
	_, err = svc.Upload(context.Background(), student, bytes.NewReader(big))
	requireCode(t, err, appErrors.ErrInvalidRequest.Code)

	_, err = svc.Upload(context.Background(), newActor(models.RoleWarden), bytes.NewReader(pngHeader))
	requireCode(t, err, appErrors.ErrForbidden.Code)
}

func TestEvidenceOpenRejectsTamperedAndExpiredTokens(t *testing.T) {
	svc, signer := newEvidenceService(t, 1024)
	student := newActor(models.RoleStudent)

	resp, err := svc.Upload(context.Background(), student, bytes.NewReader(pngHeader))
	require.NoError(t, err)
	token := strings.TrimPrefix(resp.DownloadURL, "/api/v1/evidence/")

	_, _, err = svc.Open(context.Background(), student, token+"x")
	requireCode(t, err, appErrors.ErrNotFound.Code)

	signer.WithClock(func() time.Time { return time.Now().Add(time.Hour) })
	_, _, err = svc.Open(context.Background(), student, token)
	requireCode(t, err, appErrors.ErrForbidden.Code)

	_, _, err = svc.Open(context.Background(), models.Actor{}, token)
	requireCode(t, err, appErrors.ErrUnauthorized.Code)
}

func TestEvidenceLinkFor(t *testing.T) {
	svc, _ := newEvidenceService(t, 1024)
	assert.Empty(t, svc.LinkFor(&models.Request{ID: "c1"}))

	link := svc.LinkFor(&models.Request{ID: "c1", RequesterID: "s1", EvidenceRef: "s1/a.png"})
	assert.True(t, strings.HasPrefix(link, "/api/v1/evidence/s1."))

	var nilSvc *EvidenceService
	assert.Empty(t, nilSvc.LinkFor(&models.Request{EvidenceRef: "x"}))
}
