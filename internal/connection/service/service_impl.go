package service

import (
	"context"
	"time"

	"github.com/hydranet/aquabill/internal/clock"
	connectiondomain "github.com/hydranet/aquabill/internal/connection/domain"
	"github.com/hydranet/aquabill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const refreshInterval = 5 * time.Minute

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Backend connectiondomain.AccountBackend
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	backend connectiondomain.AccountBackend
	repo    repository.Repository[connectiondomain.Connection]
}

func NewService(p Params) connectiondomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("connection.service"),
		clock:   p.Clock,
		backend: p.Backend,
		repo:    repository.ProvideStore[connectiondomain.Connection](p.DB),
	}
}

func (s *Service) GetState(ctx context.Context, connectionID string) (connectiondomain.LifecycleState, error) {
	cached, err := s.repo.FindOne(ctx, &connectiondomain.Connection{ID: connectionID})
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	if cached != nil && now.Sub(cached.RefreshedAt) < refreshInterval {
		return cached.State, nil
	}

	raw, err := s.backend.FetchConnectionState(ctx, connectionID)
	if err != nil {
		// A stale snapshot beats failing the whole summary.
		if cached != nil {
			s.log.Warn("connection state refresh failed, using cached state",
				zap.String("connection_id", connectionID),
				zap.Error(err),
			)
			return cached.State, nil
		}
		return "", err
	}

	state := connectiondomain.ParseState(raw)
	snapshot := connectiondomain.Connection{
		ID:          connectionID,
		State:       state,
		RefreshedAt: now,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&snapshot).Error; err != nil {
		return "", err
	}
	return state, nil
}
