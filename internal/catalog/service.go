package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
)

// DefaultLanguage is the language every template is synced in.
const DefaultLanguage = "en-US"

type Service struct {
	repo Repository
}

func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &Service{repo: repo}, nil
}

// CollectibleTemplates loads the distinct templates referenced by ids.
// Missing templates are simply absent from the result.
func (s *Service) CollectibleTemplates(ctx context.Context, ids []uuid.UUID) ([]models.CollectibleTemplate, error) {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	distinct := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}
	rows, err := s.repo.CollectibleTemplatesByIDs(ctx, distinct)
	if err != nil {
		return nil, fmt.Errorf("load collectible templates: %w", err)
	}
	return rows, nil
}

// PackTitle returns the pack title in language, falling back to
// DefaultLanguage when no translation exists.
func (s *Service) PackTitle(ctx context.Context, templateID uuid.UUID, language string) (string, error) {
	if language == "" {
		language = DefaultLanguage
	}
	row, err := s.repo.PackTemplate(ctx, templateID, language)
	if err != nil {
		return "", fmt.Errorf("load pack template: %w", err)
	}
	if row == nil && language != DefaultLanguage {
		row, err = s.repo.PackTemplate(ctx, templateID, DefaultLanguage)
		if err != nil {
			return "", fmt.Errorf("load pack template: %w", err)
		}
	}
	if row == nil {
		return "", pkgerrors.Newf(pkgerrors.CodeNotFound, "pack template %s not found", templateID)
	}
	return row.Title, nil
}
