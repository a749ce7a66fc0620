package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/engine"
	"go.uber.org/zap"
)

// ErrInvalidArgument — некорректный фильтр или тело запроса (400)
var ErrInvalidArgument = errors.New("console: invalid argument")

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Scanner — координатор прогонов
type Scanner interface {
	RunScan(ctx context.Context, req engine.ScanRequest) (*domain.RunResult, error)
}

// IntegrityRepository описывает, что консоль читает из БД
type IntegrityRepository interface {
	ListExceptions(ctx context.Context, f domain.ExceptionFilter) ([]domain.Exception, error)
	ListRuns(ctx context.Context, limit int) ([]domain.AgentRun, error)
	GetRun(ctx context.Context, id string) (*domain.AgentRun, error)
}

type IntegrityService struct {
	scanner Scanner
	repo    IntegrityRepository
	logger  *zap.Logger
}

func NewIntegrityService(scanner Scanner, repo IntegrityRepository, logger *zap.Logger) *IntegrityService {
	return &IntegrityService{
		scanner: scanner,
		repo:    repo,
		logger:  logger.Named("integrity-service"),
	}
}

// TriggerScan запускает прогон синхронно и возвращает полный результат
func (s *IntegrityService) TriggerScan(ctx context.Context, req engine.ScanRequest) (*domain.RunResult, error) {
	switch req.TriggerSource {
	case "":
		req.TriggerSource = domain.TriggerManual
	case domain.TriggerManual, domain.TriggerScheduled:
	default:
		return nil, fmt.Errorf("%w: unknown trigger %q", ErrInvalidArgument, req.TriggerSource)
	}

	res, err := s.scanner.RunScan(ctx, req)
	if err != nil {
		s.logger.Warn("scan request failed",
			zap.String("tenant_id", req.TenantID),
			zap.Bool("dry_run", req.DryRun),
			zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (s *IntegrityService) Exceptions(ctx context.Context, f domain.ExceptionFilter) ([]domain.Exception, error) {
	switch f.Status {
	case "", domain.ExceptionOpen, domain.ExceptionResolved:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, f.Status)
	}
	if f.Rule != "" && !domain.KnownRule(f.Rule) {
		return nil, fmt.Errorf("%w: unknown rule %q", ErrInvalidArgument, f.Rule)
	}
	limit, err := clampLimit(f.Limit)
	if err != nil {
		return nil, err
	}
	f.Limit = limit

	list, err := s.repo.ListExceptions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("console: list exceptions: %w", err)
	}
	return list, nil
}

func (s *IntegrityService) Runs(ctx context.Context, limit int) ([]domain.AgentRun, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("console: list runs: %w", err)
	}
	return list, nil
}

func (s *IntegrityService) Run(ctx context.Context, id string) (*domain.AgentRun, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: run id is required", ErrInvalidArgument)
	}
	return s.repo.GetRun(ctx, id)
}

func clampLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, fmt.Errorf("%w: negative limit", ErrInvalidArgument)
	case limit == 0:
		return defaultListLimit, nil
	case limit > maxListLimit:
		return maxListLimit, nil
	}
	return limit, nil
}
