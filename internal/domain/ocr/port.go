package ocr

import "context"

// Fetcher downloads the bytes behind an image URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Image, error)
}

// Extractor sends an encoded image to a vision provider. Upstream rejections
// are reported in the Result; the error is reserved for transport failures.
type Extractor interface {
	Extract(ctx context.Context, img EncodedImage) (Result, error)
}

// ArchiveStore keeps a copy of fetched images.
type ArchiveStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Repository port for the extraction audit log
type Repository interface {
	Save(ctx context.Context, e *Extraction) error
	Paginate(ctx context.Context, page, pageSize int) ([]*Extraction, error)
}
