package app

import (
	"context"

	"github.com/hylla/leadflow/internal/domain"
)

// Repository is the record store behind the pipeline board.
type Repository interface {
	CreateStage(context.Context, domain.Stage) error
	UpdateStages(context.Context, []domain.Stage) error
	ListStages(context.Context) ([]domain.Stage, error)

	CreateLead(context.Context, domain.Lead) error
	UpdateLeads(context.Context, []domain.Lead) error
	GetLead(context.Context, string) (domain.Lead, error)
	ListLeads(context.Context) ([]domain.Lead, error)
	DeleteLeads(context.Context, []string) error

	ListChangeEvents(context.Context, int) ([]domain.ChangeEvent, error)
}
