package media

import (
	"context"
	"errors"
)

// Properties acompañan al adjunto creado: imagen legacy de origen y autor en WordPress.
type Properties struct {
	LegacyImageID int64
	AuthorID      int64
}

// Importer descarga una imagen remota y la guarda como adjunto, devolviendo su id.
type Importer interface {
	CreateFromURL(ctx context.Context, url, mimeType string, props Properties) (int64, error)
}

// ErrImporterDisabled se devuelve cuando no hay endpoint de WordPress configurado.
var ErrImporterDisabled = errors.New("media importer disabled")

type disabledImporter struct{}

func NewDisabledImporter() Importer {
	return disabledImporter{}
}

func (disabledImporter) CreateFromURL(_ context.Context, _, _ string, _ Properties) (int64, error) {
	return 0, ErrImporterDisabled
}
