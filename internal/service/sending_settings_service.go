package service

import (
	"context"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/scheduling"
)

type SendingSettingsService struct {
	Repo      repository.SendingSettingsRepositoryInterface
	Evaluator *scheduling.Evaluator
	Validate  *validator.Validate
}

func (s *SendingSettingsService) Get(ctx context.Context, workspaceID string) (*model.SendingSettings, error) {
	return s.Evaluator.SettingsFor(ctx, workspaceID)
}

// Upsert validates and stores the settings of a workspace.
func (s *SendingSettingsService) Upsert(ctx context.Context, settings *model.SendingSettings) (*model.SendingSettings, error) {
	if err := s.Validate.Struct(settings); err != nil {
		return nil, FromValidator(err)
	}
	if err := s.Repo.Upsert(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// FromValidator turns the first validator failure into a ValidationError.
func FromValidator(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		f := verrs[0]
		return appErrors.NewValidationError(f.Field(), "failed on the '"+f.Tag()+"' rule")
	}
	return appErrors.NewValidationError("", err.Error())
}
