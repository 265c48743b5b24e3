package rbac

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/optimapos/optimapos/internal/shared"
)

type memoryRBACRepo struct {
	nextID          int64
	roles           map[int64]Role
	permissions     map[int64]Permission
	rolePerms       map[int64][]int64
	userRoles       map[int64][]int64
	permissionCalls int
}

func newMemoryRBACRepo() *memoryRBACRepo {
	return &memoryRBACRepo{
		roles:       map[int64]Role{},
		permissions: map[int64]Permission{},
		rolePerms:   map[int64][]int64{},
		userRoles:   map[int64][]int64{},
	}
}

func (r *memoryRBACRepo) ListRoles(_ context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	return out, nil
}

func (r *memoryRBACRepo) GetRole(_ context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("role %d: %w", id, shared.ErrNotFound)
	}
	return role, nil
}

func (r *memoryRBACRepo) CreateRole(_ context.Context, role Role) (Role, error) {
	for _, existing := range r.roles {
		if existing.Name == role.Name {
			return Role{}, shared.ErrDuplicate
		}
	}
	r.nextID++
	role.ID = r.nextID
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRBACRepo) UpdateRole(_ context.Context, role Role) (Role, error) {
	if _, ok := r.roles[role.ID]; !ok {
		return Role{}, shared.ErrNotFound
	}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRBACRepo) DeleteRole(_ context.Context, id int64) error {
	if _, ok := r.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.roles, id)
	delete(r.rolePerms, id)
	return nil
}

func (r *memoryRBACRepo) ListPermissions(_ context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(r.permissions))
	for _, p := range r.permissions {
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryRBACRepo) EnsurePermission(_ context.Context, name, description string) (Permission, error) {
	for _, p := range r.permissions {
		if p.Name == name {
			p.Description = description
			r.permissions[p.ID] = p
			return p, nil
		}
	}
	r.nextID++
	p := Permission{ID: r.nextID, Name: name, Description: description}
	r.permissions[p.ID] = p
	return p, nil
}

func (r *memoryRBACRepo) RolePermissions(_ context.Context, roleID int64) ([]Permission, error) {
	var out []Permission
	for _, id := range r.rolePerms[roleID] {
		out = append(out, r.permissions[id])
	}
	return out, nil
}

func (r *memoryRBACRepo) SetRolePermissions(_ context.Context, roleID int64, permissionIDs []int64) error {
	r.rolePerms[roleID] = append([]int64(nil), permissionIDs...)
	return nil
}

func (r *memoryRBACRepo) AssignRole(_ context.Context, userID, roleID int64) error {
	for _, id := range r.userRoles[userID] {
		if id == roleID {
			return nil
		}
	}
	r.userRoles[userID] = append(r.userRoles[userID], roleID)
	return nil
}

func (r *memoryRBACRepo) RemoveRole(_ context.Context, userID, roleID int64) error {
	kept := r.userRoles[userID][:0]
	for _, id := range r.userRoles[userID] {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	r.userRoles[userID] = kept
	return nil
}

func (r *memoryRBACRepo) UserRoles(_ context.Context, userID int64) ([]Role, error) {
	var out []Role
	for _, id := range r.userRoles[userID] {
		out = append(out, r.roles[id])
	}
	return out, nil
}

func (r *memoryRBACRepo) EffectivePermissions(_ context.Context, userID int64) ([]string, error) {
	r.permissionCalls++
	seen := map[string]struct{}{}
	var out []string
	for _, roleID := range r.userRoles[userID] {
		for _, permID := range r.rolePerms[roleID] {
			name := r.permissions[permID].Name
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	return out, nil
}

func seededRepo(t *testing.T) (*memoryRBACRepo, *Service) {
	t.Helper()
	repo := newMemoryRBACRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	buyer, err := svc.CreateRole(ctx, "buyer", "places purchase orders")
	require.NoError(t, err)
	view, err := svc.EnsurePermission(ctx, "purchases.view", "")
	require.NoError(t, err)
	edit, err := svc.EnsurePermission(ctx, "purchases.edit", "")
	require.NoError(t, err)
	require.NoError(t, svc.SetRolePermissions(ctx, buyer.ID, []int64{view.ID, edit.ID}))
	require.NoError(t, svc.AssignRole(ctx, 42, buyer.ID))
	return repo, svc
}

func TestEffectivePermissionsThroughRoles(t *testing.T) {
	_, svc := seededRepo(t)

	perms, err := svc.EffectivePermissions(context.Background(), 42)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"purchases.view", "purchases.edit"}, perms)

	perms, err = svc.EffectivePermissions(context.Background(), 99)
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestHasRoleAndPermission(t *testing.T) {
	_, svc := seededRepo(t)
	ctx := context.Background()

	ok, err := svc.HasRole(ctx, 42, "BUYER")
	require.NoError(t, err)
	require.True(t, ok, "role names compare case-insensitively")

	ok, err = svc.HasPermission(ctx, 42, "purchases.edit")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.HasPermission(ctx, 42, "rbac.edit")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPermissionCacheInvalidatedOnRoleChange(t *testing.T) {
	repo := newMemoryRBACRepo()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewService(repo, cache)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "storekeeper", "")
	require.NoError(t, err)
	perm, err := svc.EnsurePermission(ctx, "purchases.receive", "")
	require.NoError(t, err)
	require.NoError(t, svc.SetRolePermissions(ctx, role.ID, []int64{perm.ID}))
	require.NoError(t, svc.AssignRole(ctx, 7, role.ID))

	for i := 0; i < 3; i++ {
		perms, err := svc.EffectivePermissions(ctx, 7)
		require.NoError(t, err)
		require.Equal(t, []string{"purchases.receive"}, perms)
	}
	require.Equal(t, 1, repo.permissionCalls, "repeated lookups served from cache")

	require.NoError(t, svc.RemoveRole(ctx, 7, role.ID))
	perms, err := svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, perms)
	require.Equal(t, 2, repo.permissionCalls)
}

func TestMiddlewareGuardsRoutes(t *testing.T) {
	_, svc := seededRepo(t)
	guard := Middleware{Source: svc}

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	call := func(handler http.Handler, actorID int64) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if actorID != 0 {
			req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: actorID}))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	viewOnly := guard.RequireAny("purchases.view")(next)
	require.Equal(t, http.StatusOK, call(viewOnly, 42))
	require.Equal(t, http.StatusForbidden, call(viewOnly, 99))
	require.Equal(t, http.StatusUnauthorized, call(viewOnly, 0))

	all := guard.RequireAll("purchases.view", "rbac.edit")(next)
	require.Equal(t, http.StatusForbidden, call(all, 42), "one missing permission fails RequireAll")

	any := guard.RequireAny("rbac.edit", "purchases.view")(next)
	require.Equal(t, http.StatusOK, call(any, 42))
}
