package numbering

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/observability"
	"github.com/optimapos/optimapos/internal/shared"
)

type Service struct {
	repo     Repository
	resolver *resolver
	metrics  *observability.Metrics
}

func NewService(repo Repository, cache *redis.Client, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, resolver: newResolver(repo, cache), metrics: metrics}
}

func (s *Service) List(ctx context.Context, filters nomshared.ListFilters) ([]Config, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Config, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, cfg Config) (Config, error) {
	cfg.Code = nomshared.NormalizeCode(cfg.Code)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	cfg.LastPeriod = PeriodFor(cfg.ResetRule, time.Now())
	created, err := s.repo.Create(ctx, cfg)
	if err != nil {
		return Config{}, err
	}
	s.resolver.Invalidate(ctx)
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, cfg Config) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	cfg.Code = nomshared.NormalizeCode(cfg.Code)
	if err := validateConfig(cfg); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, cfg); err != nil {
		return err
	}
	s.resolver.Invalidate(ctx)
	return nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.resolver.Invalidate(ctx)
	return nil
}

// Next resolves the config for the document type and advances its
// counter. The number is consumed even if the caller later rolls
// back, so sequences are gap-tolerant.
func (s *Service) Next(ctx context.Context, docType string, locationID, userID int64, at time.Time) (string, error) {
	cfg, err := s.resolver.Resolve(ctx, docType, locationID, userID)
	if err != nil {
		return "", err
	}
	period := PeriodFor(cfg.ResetRule, at)
	seq, err := s.repo.Advance(ctx, cfg.ID, period)
	if err != nil {
		return "", err
	}
	s.metrics.NumberGenerated(cfg.Code)
	return Format(cfg, seq, period), nil
}

// Preview renders the number the config would produce next without
// consuming it.
func (s *Service) Preview(ctx context.Context, id int64, at time.Time) (string, error) {
	cfg, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	period := PeriodFor(cfg.ResetRule, at)
	seq := cfg.CurrentNo + 1
	if cfg.ResetRule != ResetNever && cfg.LastPeriod != period {
		seq = 1
	}
	return Format(cfg, seq, period), nil
}

func (s *Service) AssignLocation(ctx context.Context, a LocationAssignment) (LocationAssignment, error) {
	fields := shared.NewFieldErrors()
	if strings.TrimSpace(a.DocumentType) == "" {
		fields.Add("document_type", "is required")
	}
	if a.LocationID <= 0 {
		fields.Add("location_id", "is required")
	}
	if a.ConfigID <= 0 {
		fields.Add("config_id", "is required")
	}
	if err := fields.Err(); err != nil {
		return LocationAssignment{}, err
	}
	if _, err := s.repo.Get(ctx, a.ConfigID); err != nil {
		return LocationAssignment{}, err
	}
	created, err := s.repo.AssignLocation(ctx, a)
	if err != nil {
		return LocationAssignment{}, err
	}
	s.resolver.Invalidate(ctx)
	return created, nil
}

func (s *Service) ListAssignments(ctx context.Context, docType string) ([]LocationAssignment, error) {
	return s.repo.ListAssignments(ctx, docType)
}

func (s *Service) SetUserPreference(ctx context.Context, p UserPreference) (UserPreference, error) {
	fields := shared.NewFieldErrors()
	if strings.TrimSpace(p.DocumentType) == "" {
		fields.Add("document_type", "is required")
	}
	if p.UserID <= 0 {
		fields.Add("user_id", "is required")
	}
	if p.ConfigID <= 0 {
		fields.Add("config_id", "is required")
	}
	if err := fields.Err(); err != nil {
		return UserPreference{}, err
	}
	if _, err := s.repo.Get(ctx, p.ConfigID); err != nil {
		return UserPreference{}, err
	}
	created, err := s.repo.SetUserPreference(ctx, p)
	if err != nil {
		return UserPreference{}, err
	}
	s.resolver.Invalidate(ctx)
	return created, nil
}

func (s *Service) ClearUserPreference(ctx context.Context, userID int64, docType string) error {
	if err := s.repo.ClearUserPreference(ctx, userID, docType); err != nil {
		return err
	}
	s.resolver.Invalidate(ctx)
	return nil
}

// ResetElapsed is run by the daily job. Generation already resets
// inline, so this only catches idle configs.
func (s *Service) ResetElapsed(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.ResetElapsed(ctx, now)
}

func validateConfig(cfg Config) error {
	fields := shared.NewFieldErrors()
	if !nomshared.ValidCode(cfg.Code) {
		fields.Add("code", "must be 1-32 characters of A-Z, 0-9, dash or underscore")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		fields.Add("name", "is required")
	}
	if strings.TrimSpace(cfg.DocumentType) == "" {
		fields.Add("document_type", "is required")
	}
	if cfg.Digits < 1 || cfg.Digits > 10 {
		fields.Add("digits", "must be between 1 and 10")
	}
	if !cfg.ResetRule.Valid() {
		fields.Add("reset_rule", "must be NEVER, YEARLY or MONTHLY")
	}
	if cfg.Fiscal && cfg.ResetRule == ResetNever {
		fields.Add("fiscal", "fiscal numbering requires a yearly or monthly reset")
	}
	return fields.Err()
}
