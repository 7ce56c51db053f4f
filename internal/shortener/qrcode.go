package shortener

import (
	"context"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultQRSize = 300
	minQRSize     = 100
	maxQRSize     = 1000
)

// QRCode renders the short URL of code as a size x size PNG. Sizes out of
// range fall back to the default.
func (s *Service) QRCode(ctx context.Context, code string, size int) ([]byte, error) {
	if size < minQRSize || size > maxQRSize {
		size = DefaultQRSize
	}
	rec, err := s.cached.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(rec.ShortURL, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code for %s: %w", code, err)
	}
	return png, nil
}
