package shortener

import (
	"context"
	"errors"
	"fmt"

	"github.com/MagnunAVF/shortener-core/internal"
)

type BulkItem struct {
	LongURL  string `json:"original_url"`
	ShortURL string `json:"short_url,omitempty"`
	Code     string `json:"code,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

type BulkResult struct {
	Results   []BulkItem `json:"results"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
}

// BulkAllocate allocates each request independently; one bad item does not
// fail the others. Store outages abort the remaining items.
func (s *Service) BulkAllocate(ctx context.Context, reqs []AllocateRequest) (*BulkResult, error) {
	if len(reqs) > maxBulkItems {
		return nil, fmt.Errorf("%w: at most %d urls per request", internal.ErrTooManyItems, maxBulkItems)
	}

	res := &BulkResult{Results: make([]BulkItem, 0, len(reqs))}
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := BulkItem{LongURL: req.LongURL}
		alloc, err := s.Allocate(ctx, req)
		if errors.Is(err, internal.ErrStoreUnavailable) {
			return nil, err
		}
		if err != nil {
			item.Error = err.Error()
			res.Failed++
		} else {
			item.Success = true
			item.Code = alloc.Code
			item.ShortURL = alloc.ShortURL
			res.Succeeded++
		}
		res.Results = append(res.Results, item)
	}
	return res, nil
}
