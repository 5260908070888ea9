package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmehdipour/sms-inbox/internal/model"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

var (
	ErrInvalidLimit  = fmt.Errorf("limit must be between 1 and %d", MaxLimit)
	ErrInvalidOffset = errors.New("offset must be >= 0")
)

// Store is the read side of the message store.
type Store interface {
	List(ctx context.Context, f model.Filter, limit, offset int) ([]model.Message, int, error)
	Stats(ctx context.Context) (model.Stats, error)
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

// List validates pagination bounds and returns one page of filtered messages.
func (s *Service) List(ctx context.Context, f model.Filter, limit, offset int) (model.Page, error) {
	if limit < 1 || limit > MaxLimit {
		return model.Page{}, ErrInvalidLimit
	}
	if offset < 0 {
		return model.Page{}, ErrInvalidOffset
	}

	rows, total, err := s.store.List(ctx, f, limit, offset)
	if err != nil {
		return model.Page{}, err
	}
	return model.Page{Data: rows, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	return s.store.Stats(ctx)
}
