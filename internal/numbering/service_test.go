package numbering

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type memoryNumberingRepo struct {
	configs      map[int64]*Config
	assignments  map[string]int64 // docType:locationID -> configID
	preferences  map[string]int64 // docType:userID -> configID
	nextID       int64
	resolveCalls int
}

func newMemoryNumberingRepo() *memoryNumberingRepo {
	return &memoryNumberingRepo{
		configs:     make(map[int64]*Config),
		assignments: make(map[string]int64),
		preferences: make(map[string]int64),
	}
}

func (r *memoryNumberingRepo) List(ctx context.Context, filters nomshared.ListFilters) ([]Config, int, error) {
	var list []Config
	for _, c := range r.configs {
		list = append(list, *c)
	}
	return list, len(list), nil
}

func (r *memoryNumberingRepo) Get(ctx context.Context, id int64) (Config, error) {
	c, ok := r.configs[id]
	if !ok {
		return Config{}, shared.ErrNotFound
	}
	return *c, nil
}

func (r *memoryNumberingRepo) Create(ctx context.Context, cfg Config) (Config, error) {
	if cfg.IsDefault {
		for _, c := range r.configs {
			if c.DocumentType == cfg.DocumentType {
				c.IsDefault = false
			}
		}
	}
	r.nextID++
	cfg.ID = r.nextID
	r.configs[cfg.ID] = &cfg
	return cfg, nil
}

func (r *memoryNumberingRepo) Update(ctx context.Context, id int64, cfg Config) error {
	current, ok := r.configs[id]
	if !ok {
		return shared.ErrNotFound
	}
	current.Name = cfg.Name
	current.Prefix = cfg.Prefix
	current.Suffix = cfg.Suffix
	current.Separator = cfg.Separator
	current.Digits = cfg.Digits
	current.ResetRule = cfg.ResetRule
	current.Fiscal = cfg.Fiscal
	current.IsDefault = cfg.IsDefault
	current.IsActive = cfg.IsActive
	return nil
}

func (r *memoryNumberingRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.configs[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.configs, id)
	return nil
}

func (r *memoryNumberingRepo) Advance(ctx context.Context, id int64, period string) (int64, error) {
	c, ok := r.configs[id]
	if !ok || !c.IsActive {
		return 0, shared.ErrNotFound
	}
	if c.ResetRule != ResetNever && c.LastPeriod != period {
		c.CurrentNo = 1
	} else {
		c.CurrentNo++
	}
	c.LastPeriod = period
	return c.CurrentNo, nil
}

func (r *memoryNumberingRepo) Resolve(ctx context.Context, docType string, locationID, userID int64) (Config, error) {
	r.resolveCalls++
	if id, ok := r.preferences[fmt.Sprintf("%s:%d", docType, userID)]; ok {
		return *r.configs[id], nil
	}
	if id, ok := r.assignments[fmt.Sprintf("%s:%d", docType, locationID)]; ok {
		return *r.configs[id], nil
	}
	for _, c := range r.configs {
		if c.DocumentType == docType && c.IsDefault && c.IsActive {
			return *c, nil
		}
	}
	return Config{}, ErrNoConfiguration
}

func (r *memoryNumberingRepo) AssignLocation(ctx context.Context, a LocationAssignment) (LocationAssignment, error) {
	r.assignments[fmt.Sprintf("%s:%d", a.DocumentType, a.LocationID)] = a.ConfigID
	a.IsActive = true
	return a, nil
}

func (r *memoryNumberingRepo) ListAssignments(ctx context.Context, docType string) ([]LocationAssignment, error) {
	return nil, nil
}

func (r *memoryNumberingRepo) SetUserPreference(ctx context.Context, p UserPreference) (UserPreference, error) {
	r.preferences[fmt.Sprintf("%s:%d", p.DocumentType, p.UserID)] = p.ConfigID
	p.IsActive = true
	return p, nil
}

func (r *memoryNumberingRepo) ClearUserPreference(ctx context.Context, userID int64, docType string) error {
	delete(r.preferences, fmt.Sprintf("%s:%d", docType, userID))
	return nil
}

func (r *memoryNumberingRepo) ResetElapsed(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for _, c := range r.configs {
		period := PeriodFor(c.ResetRule, now)
		if c.ResetRule != ResetNever && c.IsActive && c.LastPeriod != period {
			c.CurrentNo = 0
			c.LastPeriod = period
			n++
		}
	}
	return n, nil
}

func august(day int) time.Time {
	return time.Date(2026, 8, day, 10, 0, 0, 0, time.UTC)
}

func TestNextUsesDefaultConfig(t *testing.T) {
	repo := newMemoryNumberingRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, Config{
		Code: "PO-MAIN", Name: "Orders", DocumentType: "PURCHASE_ORDER",
		Prefix: "PO", Separator: "-", Digits: 5, ResetRule: ResetNever,
		IsDefault: true, IsActive: true,
	})
	require.NoError(t, err)

	first, err := svc.Next(ctx, "PURCHASE_ORDER", 1, 1, august(30))
	require.NoError(t, err)
	require.Equal(t, "PO-00001", first)

	second, err := svc.Next(ctx, "PURCHASE_ORDER", 1, 1, august(30))
	require.NoError(t, err)
	require.Equal(t, "PO-00002", second)
}

func TestNextPrefersUserPreference(t *testing.T) {
	repo := newMemoryNumberingRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	def, err := svc.Create(ctx, Config{
		Code: "PR-DEF", Name: "Default", DocumentType: "PURCHASE_REQUEST",
		Prefix: "PR", Separator: "-", Digits: 4, ResetRule: ResetNever,
		IsDefault: true, IsActive: true,
	})
	require.NoError(t, err)

	loc, err := svc.Create(ctx, Config{
		Code: "PR-WH", Name: "Warehouse", DocumentType: "PURCHASE_REQUEST",
		Prefix: "PRW", Separator: "-", Digits: 4, ResetRule: ResetNever, IsActive: true,
	})
	require.NoError(t, err)

	usr, err := svc.Create(ctx, Config{
		Code: "PR-ANN", Name: "Personal", DocumentType: "PURCHASE_REQUEST",
		Prefix: "PRA", Separator: "-", Digits: 4, ResetRule: ResetNever, IsActive: true,
	})
	require.NoError(t, err)

	_, err = svc.AssignLocation(ctx, LocationAssignment{DocumentType: "PURCHASE_REQUEST", LocationID: 7, ConfigID: loc.ID})
	require.NoError(t, err)
	_, err = svc.SetUserPreference(ctx, UserPreference{DocumentType: "PURCHASE_REQUEST", UserID: 3, ConfigID: usr.ID})
	require.NoError(t, err)

	got, err := svc.Next(ctx, "PURCHASE_REQUEST", 7, 3, august(30))
	require.NoError(t, err)
	require.Equal(t, "PRA-0001", got)

	// Another user at the same location falls back to the assignment.
	got, err = svc.Next(ctx, "PURCHASE_REQUEST", 7, 4, august(30))
	require.NoError(t, err)
	require.Equal(t, "PRW-0001", got)

	// No location match resolves the type default.
	got, err = svc.Next(ctx, "PURCHASE_REQUEST", 99, 4, august(30))
	require.NoError(t, err)
	require.Equal(t, "PR-0001", got)
	require.Equal(t, def.ID, repo.configs[def.ID].ID)
}

func TestNextNoConfiguration(t *testing.T) {
	svc := NewService(newMemoryNumberingRepo(), nil, nil)
	_, err := svc.Next(context.Background(), "UNKNOWN", 1, 1, august(30))
	require.ErrorIs(t, err, ErrNoConfiguration)
}

func TestMonthlyResetRestartsCounter(t *testing.T) {
	repo := newMemoryNumberingRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	cfg, err := svc.Create(ctx, Config{
		Code: "DR-M", Name: "Deliveries", DocumentType: "DELIVERY",
		Prefix: "DR", Separator: "-", Digits: 4, ResetRule: ResetMonthly,
		Fiscal: true, IsDefault: true, IsActive: true,
	})
	require.NoError(t, err)

	got, err := svc.Next(ctx, "DELIVERY", 0, 0, time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "DR-0001-202608", got)

	got, err = svc.Next(ctx, "DELIVERY", 0, 0, time.Date(2026, 8, 31, 23, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "DR-0002-202608", got)

	// New month, counter restarts and the period token moves on.
	got, err = svc.Next(ctx, "DELIVERY", 0, 0, time.Date(2026, 9, 1, 0, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "DR-0001-202609", got)

	require.Equal(t, int64(1), repo.configs[cfg.ID].CurrentNo)
}

func TestPreviewDoesNotAdvance(t *testing.T) {
	repo := newMemoryNumberingRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	cfg, err := svc.Create(ctx, Config{
		Code: "PO-P", Name: "Orders", DocumentType: "PURCHASE_ORDER",
		Prefix: "PO", Separator: "-", Digits: 4, ResetRule: ResetNever,
		IsDefault: true, IsActive: true,
	})
	require.NoError(t, err)

	preview, err := svc.Preview(ctx, cfg.ID, august(30))
	require.NoError(t, err)
	require.Equal(t, "PO-0001", preview)

	again, err := svc.Preview(ctx, cfg.ID, august(30))
	require.NoError(t, err)
	require.Equal(t, preview, again)

	got, err := svc.Next(ctx, "PURCHASE_ORDER", 0, 0, august(30))
	require.NoError(t, err)
	require.Equal(t, preview, got)
}

func TestResolveIsCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := newMemoryNumberingRepo()
	svc := NewService(repo, client, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, Config{
		Code: "PO-C", Name: "Orders", DocumentType: "PURCHASE_ORDER",
		Prefix: "PO", Separator: "-", Digits: 4, ResetRule: ResetNever,
		IsDefault: true, IsActive: true,
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := svc.Next(ctx, "PURCHASE_ORDER", 2, 9, august(30))
		require.NoError(t, err)
	}
	require.Equal(t, 1, repo.resolveCalls)

	// Config writes drop the cache.
	cfg := *repo.configs[1]
	require.NoError(t, svc.Update(ctx, 1, cfg))
	_, err = svc.Next(ctx, "PURCHASE_ORDER", 2, 9, august(30))
	require.NoError(t, err)
	require.Equal(t, 2, repo.resolveCalls)
}

func TestCreateValidatesConfig(t *testing.T) {
	svc := NewService(newMemoryNumberingRepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, Config{Code: "BAD", Name: "Bad", DocumentType: "X", Digits: 11, ResetRule: ResetNever})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, Config{Code: "FISCAL", Name: "F", DocumentType: "X", Digits: 4, ResetRule: ResetNever, Fiscal: true})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestResetElapsedZeroesIdleConfigs(t *testing.T) {
	repo := newMemoryNumberingRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	cfg, err := svc.Create(ctx, Config{
		Code: "PO-Y", Name: "Orders", DocumentType: "PURCHASE_ORDER",
		Prefix: "PO", Separator: "-", Digits: 4, ResetRule: ResetYearly,
		IsDefault: true, IsActive: true,
	})
	require.NoError(t, err)

	_, err = svc.Next(ctx, "PURCHASE_ORDER", 0, 0, time.Date(2026, 12, 31, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	n, err := svc.ResetElapsed(ctx, time.Date(2027, 1, 1, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, int64(0), repo.configs[cfg.ID].CurrentNo)
	require.Equal(t, "2027", repo.configs[cfg.ID].LastPeriod)
}
