package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"smartplug/backend/services/plug-console/internal/models"
	"smartplug/backend/services/plug-console/internal/repository"
)

// TariffRepository is the storage used by TariffService.
type TariffRepository interface {
	CurrentRate(ctx context.Context) (*models.Tariff, error)
}

// TariffService resolves the price used for cost charts.
type TariffService struct {
	repo        TariffRepository
	defaultRate float64
	logger      *zap.Logger
}

// NewTariffService returns service instance. repo may be nil.
func NewTariffService(repo TariffRepository, defaultRate float64, logger *zap.Logger) *TariffService {
	return &TariffService{repo: repo, defaultRate: defaultRate, logger: logger.Named("tariff")}
}

// Rate returns USD per kWh from the active tariff, or the configured default.
func (s *TariffService) Rate(ctx context.Context) float64 {
	if s.repo == nil {
		return s.defaultRate
	}
	tariff, err := s.repo.CurrentRate(ctx)
	switch {
	case errors.Is(err, repository.ErrNoTariff):
		return s.defaultRate
	case err != nil:
		s.logger.Warn("tariff lookup failed, using default", zap.Error(err))
		return s.defaultRate
	case tariff == nil || tariff.PricePerKWh <= 0:
		return s.defaultRate
	}
	return tariff.PricePerKWh
}
