package ocr

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/rx-ocr/internal/application"
	domain "github.com/bryanwahyu/rx-ocr/internal/domain/ocr"
	"github.com/bryanwahyu/rx-ocr/internal/logging"
)

// Service runs the fetch → encode → extract pipeline. Archive and Audit are
// optional and best effort: their failures are logged, never returned.
type Service struct {
	Fetcher   domain.Fetcher
	Extractor domain.Extractor
	Archive   domain.ArchiveStore
	Audit     domain.Repository
	Clock     application.Clock
	Logger    *zap.Logger

	// MIMEType is declared upstream for every image; empty means image/jpeg.
	MIMEType string
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

// Extract returns the tagged result for imageURL. Errors are transport
// failures only; upstream rejections come back as a Result.
func (s *Service) Extract(ctx context.Context, requestID, imageURL string) (domain.Result, error) {
	log := logging.WithOperation(s.logger(), "ocr.extract", requestID)

	img, err := s.Fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return domain.Result{}, logging.NewOperationError("ocr.fetch", requestID, err)
	}

	mimeType := s.MIMEType
	if mimeType == "" {
		mimeType = domain.DefaultMIMEType
	}
	res, err := s.Extractor.Extract(ctx, domain.EncodedImage{
		Data:     domain.EncodeBase64(img.Data),
		MIMEType: mimeType,
	})
	if err != nil {
		return domain.Result{}, logging.NewOperationError("ocr.extract", requestID, err)
	}

	log.Info("image processed",
		zap.String("provider", res.Provider),
		zap.Stringer("outcome", res.Outcome),
		zap.Int("image_bytes", len(img.Data)),
		zap.String("origin_content_type", img.ContentType),
	)

	archiveURL := s.archive(ctx, log, img)
	s.record(ctx, log, imageURL, archiveURL, res)
	return res, nil
}

func (s *Service) archive(ctx context.Context, log *zap.Logger, img domain.Image) string {
	if s.Archive == nil {
		return ""
	}
	now := s.now().UTC()
	key := fmt.Sprintf("images/%04d/%02d/%02d/%s", now.Year(), now.Month(), now.Day(), uuid.NewString())

	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}
	url, err := s.Archive.Put(ctx, key, img.Data, contentType)
	if err != nil {
		log.Warn("archive image failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return url
}

func (s *Service) record(ctx context.Context, log *zap.Logger, imageURL, archiveURL string, res domain.Result) {
	if s.Audit == nil {
		return
	}
	e := &domain.Extraction{
		ID:         domain.ExtractionID(uuid.NewString()),
		ImageURL:   imageURL,
		ArchiveURL: archiveURL,
		Provider:   res.Provider,
		Outcome:    res.Outcome.String(),
		Text:       res.WireText(),
		CreatedAt:  s.now(),
	}
	if err := s.Audit.Save(ctx, e); err != nil {
		log.Warn("save extraction failed", zap.String("extraction_id", string(e.ID)), zap.Error(err))
	}
}

// History pages through the audit log; nil Audit yields an empty page.
func (s *Service) History(ctx context.Context, page, pageSize int) ([]*domain.Extraction, error) {
	if s.Audit == nil {
		return nil, nil
	}
	return s.Audit.Paginate(ctx, page, pageSize)
}
