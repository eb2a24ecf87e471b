package pricing

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/bikeshare-backend/internal/store"
)

type Service struct {
	db *store.DB
}

func NewService(db *store.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Active(ctx context.Context) (Rule, error) {
	return NewRepository(s.db.Reader()).Active(ctx)
}

// Update deactivates the current rule and activates rule in one unit.
func (s *Service) Update(ctx context.Context, rule Rule) (Rule, error) {
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}

	var out Rule
	err := s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		out, err = NewRepository(tx).activate(ctx, rule)
		return err
	})
	return out, err
}
