package services

import (
	"context"
	"sort"

	"github.com/KossiPascal/atlas-kanban/internal/client/store"
	"github.com/KossiPascal/atlas-kanban/internal/client/syncer"
	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/logging"
	"github.com/KossiPascal/atlas-kanban/internal/models"
)

// UserService exposes the collaborator directory.
type UserService struct {
	sync  *syncer.Orchestrator
	store *store.Store
	log   logging.Logger
}

func NewUserService(ctx context.Context, o *syncer.Orchestrator, s *store.Store, sub Subscriber, log logging.Logger) *UserService {
	svc := &UserService{sync: o, store: s, log: log.With("service", "users")}
	resync(ctx, sub, o, models.TableUsers, log)
	return svc
}

// Current returns the authenticated user's profile record.
func (u *UserService) Current(ctx context.Context) (*models.Record, error) {
	p := u.sync.Principal()
	if p.UserID == "" {
		return nil, common.ErrNotAuthenticated
	}
	return u.store.Get(ctx, models.TableUsers, p.UserID)
}

// List returns every collaborator, email sorted. Profiles are directory
// data, visible to all authenticated users.
func (u *UserService) List(ctx context.Context) ([]models.Record, error) {
	recs, err := u.store.List(ctx, models.TableUsers)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if !r.Deleted {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StringField("email") < out[j].StringField("email")
	})
	return out, nil
}

// Get returns one collaborator profile.
func (u *UserService) Get(ctx context.Context, id string) (*models.Record, error) {
	rec, err := u.store.Get(ctx, models.TableUsers, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, common.ErrNotFound
	}
	return rec, nil
}

// UpdateProfile commits an edit to the caller's own profile. Admins may edit
// anyone.
func (u *UserService) UpdateProfile(ctx context.Context, rec models.Record) (models.Record, error) {
	if rec.ID == "" {
		return rec, common.ErrMissingID
	}
	p := u.sync.Principal()
	if rec.ID != p.UserID && !p.Admin {
		return rec, common.ErrPermissionDenied
	}

	var profile models.User
	if err := rec.DecodePayload(&profile); err != nil {
		return rec, err
	}
	if err := profile.Validate(); err != nil {
		return rec, err
	}
	return u.sync.Update(ctx, models.TableUsers, rec)
}
