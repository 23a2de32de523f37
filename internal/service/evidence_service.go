package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/internal/dto"
	"github.com/noah-isme/hostelx-api/internal/models"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
	"github.com/noah-isme/hostelx-api/pkg/storage"
)

const sniffLen = 512

var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

type evidenceStorage interface {
	SaveStream(key string, r io.Reader, limit int64) (int64, error)
	Open(key string) (*os.File, error)
}

// EvidenceConfig tunes evidence uploads.
type EvidenceConfig struct {
	APIPrefix    string
	MaxFileSize  int64
	AllowedMIMEs []string
}

// EvidenceService stores complaint attachments and hands out signed links.
type EvidenceService struct {
	storage evidenceStorage
	signer  *storage.SignedURLSigner
	allowed map[string]struct{}
	cfg     EvidenceConfig
	logger  *zap.Logger
}

// NewEvidenceService constructs the service.
func NewEvidenceService(store evidenceStorage, signer *storage.SignedURLSigner, cfg EvidenceConfig, logger *zap.Logger) *EvidenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, m := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &EvidenceService{storage: store, signer: signer, allowed: allowed, cfg: cfg, logger: logger}
}

// Upload stores r under the student's namespace. The content type is sniffed
// from the bytes, never taken from the client.
func (s *EvidenceService) Upload(ctx context.Context, actor models.Actor, r io.Reader) (*dto.EvidenceUploadResponse, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "failed to read upload")
	}
	if n == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "file is empty")
	}
	head = head[:n]
	contentType := strings.SplitN(http.DetectContentType(head), ";", 2)[0]
	if _, ok := s.allowed[contentType]; !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "file type "+contentType+" is not allowed")
	}

	key := actor.ID + "/" + uuid.NewString() + mimeExtensions[contentType]
	size, err := s.storage.SaveStream(key, io.MultiReader(bytes.NewReader(head), r), s.cfg.MaxFileSize)
	if err != nil {
		if errors.Is(err, storage.ErrFileTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "file is too large")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence")
	}

	url, expires, err := s.Link(actor.ID, key)
	if err != nil {
		return nil, err
	}
	s.logger.Info("evidence stored", zap.String("actor_id", actor.ID), zap.String("key", key), zap.Int64("size", size))
	return &dto.EvidenceUploadResponse{
		Ref:         key,
		DownloadURL: url,
		ExpiresAt:   expires,
		SizeBytes:   size,
		ContentType: contentType,
	}, nil
}

// Link returns a signed download URL for a stored reference.
func (s *EvidenceService) Link(ownerID, ref string) (string, time.Time, error) {
	token, expires, err := s.signer.Generate(ownerID, ref)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign evidence link")
	}
	return strings.TrimRight(s.cfg.APIPrefix, "/") + "/evidence/" + token, expires, nil
}

// LinkFor returns the evidence URL of a complaint for viewers allowed to see
// the complaint, or an empty string.
func (s *EvidenceService) LinkFor(req *models.Request) string {
	if s == nil || req == nil || req.EvidenceRef == "" {
		return ""
	}
	url, _, err := s.Link(req.RequesterID, req.EvidenceRef)
	if err != nil {
		s.logger.Warn("failed to sign evidence link", zap.String("entity_id", req.ID), zap.Error(err))
		return ""
	}
	return url
}

// Open resolves a signed token into the stored file. The caller must close it.
func (s *EvidenceService) Open(ctx context.Context, actor models.Actor, token string) (*os.File, string, error) {
	if !actor.Authenticated() {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	ownerID, key, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
	}
	if actor.Role == models.RoleStudent && actor.ID != ownerID {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
	}
	if actor.Role == models.RoleSecurity {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "security staff cannot view complaint evidence")
	}
	file, err := s.storage.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, storage.ErrInvalidPath) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open evidence")
	}
	contentType := "application/octet-stream"
	for mime, ext := range mimeExtensions {
		if strings.HasSuffix(key, ext) {
			contentType = mime
			break
		}
	}
	return file, contentType, nil
}
