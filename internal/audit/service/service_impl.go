package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/stellarwp/restrict-content-sub000/internal/audit/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clk   clock.Clock
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clk:   p.Clock,
	}
}

// Record appends one audit row.
func (s *Service) Record(ctx context.Context, action, targetType string, targetID snowflake.ID, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID.String(),
		Metadata:   datatypes.JSONMap(metadata),
		CreatedAt:  s.clk.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Error("failed to write audit log",
			zap.String("action", action),
			zap.String("target_id", entry.TargetID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
