package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stellarwp/restrict-content-sub000/internal/clock"
	"github.com/stellarwp/restrict-content-sub000/internal/config"
	membershipdomain "github.com/stellarwp/restrict-content-sub000/internal/membership/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/notification"
	"github.com/stellarwp/restrict-content-sub000/internal/observability/metrics"
	paymentdomain "github.com/stellarwp/restrict-content-sub000/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dayFormat = "2006-01-02"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Memberships membershipdomain.Service
	Payments    paymentdomain.Service
	Notifier    notification.Port
	Metrics     *metrics.SweepMetrics
}

// Sweeper runs the daily expiration, reminder, snapshot and
// abandonment passes.
type Sweeper struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clk         clock.Clock
	cfg         config.Config
	memberships membershipdomain.Service
	payments    paymentdomain.Service
	notifier    notification.Port
	metrics     *metrics.SweepMetrics
}

func NewSweeper(p Params) *Sweeper {
	return &Sweeper{
		db:          p.DB,
		log:         p.Log.Named("scheduler.sweep"),
		genID:       p.GenID,
		clk:         p.Clock,
		cfg:         p.Config,
		memberships: p.Memberships,
		payments:    p.Payments,
		notifier:    p.Notifier,
		metrics:     p.Metrics,
	}
}

// Run executes one sweep. Individual pass failures are logged and the
// remaining passes still run; a sweep never aborts the process.
func (s *Sweeper) Run(ctx context.Context) error {
	now := s.clk.Now().UTC()
	day := now.Format(dayFormat)

	runID, claimed, err := s.claimDay(ctx, day, now)
	if err != nil {
		return err
	}
	if !claimed {
		s.log.Info("sweep already ran today", zap.String("day", day))
		return nil
	}
	s.log.Info("sweep started", zap.String("day", day))

	expired, err := s.expirePass(ctx, now)
	if err != nil {
		s.log.Error("expiration pass", zap.Error(err))
	}
	s.metrics.AddExpired(ctx, expired)

	renewalReminders, expirationReminders := s.reminderPass(ctx, now)
	s.metrics.AddReminders(ctx, renewalReminders, "renewal")
	s.metrics.AddReminders(ctx, expirationReminders, "expiration")

	if err := s.snapshotPass(ctx, day, now); err != nil {
		s.log.Error("snapshot pass", zap.Error(err))
	}

	abandoned, err := s.payments.AbandonStale(ctx)
	if err != nil {
		s.log.Error("abandonment pass", zap.Error(err))
	}
	s.metrics.AddAbandoned(ctx, abandoned)

	finished := s.clk.Now().UTC()
	err = s.db.WithContext(ctx).Exec(
		`UPDATE sweep_runs
		 SET finished_at = ?, expired = ?, renewal_reminders = ?,
		     expiration_reminders = ?, abandoned = ?
		 WHERE id = ?`,
		finished,
		expired,
		renewalReminders,
		expirationReminders,
		abandoned,
		runID,
	).Error
	if err != nil {
		s.log.Error("finalize sweep run", zap.Error(err))
	}

	s.log.Info("sweep finished",
		zap.String("day", day),
		zap.Int64("expired", expired),
		zap.Int64("renewal_reminders", renewalReminders),
		zap.Int64("expiration_reminders", expirationReminders),
		zap.Int64("abandoned", abandoned),
	)
	return nil
}

func (s *Sweeper) claimDay(ctx context.Context, day string, now time.Time) (snowflake.ID, bool, error) {
	id := s.genID.Generate()
	res := s.db.WithContext(ctx).Exec(
		`INSERT INTO sweep_runs (id, day, started_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (day) DO NOTHING`,
		id,
		day,
		now,
	)
	if res.Error != nil {
		return 0, false, res.Error
	}
	return id, res.RowsAffected > 0, nil
}

// expirePass walks lapsed memberships in batches. Each flip goes
// through the state machine so the expiration notice fires exactly
// once per membership.
func (s *Sweeper) expirePass(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		var ids []snowflake.ID
		err := s.db.WithContext(ctx).Raw(
			`SELECT id
			 FROM memberships
			 WHERE status IN (?, ?) AND disabled = ?
			   AND expiration_date IS NOT NULL AND expiration_date <= ?
			 ORDER BY id
			 LIMIT ?`,
			membershipdomain.StatusActive,
			membershipdomain.StatusCancelled,
			false,
			now,
			s.cfg.Sweep.BatchSize,
		).Scan(&ids).Error
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		for _, id := range ids {
			flipped, err := s.memberships.Expire(ctx, id)
			if err != nil {
				s.log.Error("expire membership", zap.Error(err),
					zap.String("membership_id", id.String()))
				continue
			}
			if flipped {
				total++
			}
		}
		if len(ids) < s.cfg.Sweep.BatchSize {
			return total, nil
		}
	}
}

type reminderRow struct {
	ID         snowflake.ID
	CustomerID snowflake.ID
}

// reminderPass dispatches one reminder per configured offset. The
// day-wide window plus the once-per-day run guard make each offset
// fire at most once per membership per cycle.
func (s *Sweeper) reminderPass(ctx context.Context, now time.Time) (int64, int64) {
	dayStart := now.Truncate(24 * time.Hour)

	var renewals int64
	for _, offset := range s.cfg.Sweep.RenewalReminderDays {
		renewals += s.remindWindow(ctx, dayStart, offset, true, notification.KindRenewalReminder)
	}
	var expirations int64
	for _, offset := range s.cfg.Sweep.ExpirationReminderDays {
		expirations += s.remindWindow(ctx, dayStart, offset, false, notification.KindExpirationReminder)
	}
	return renewals, expirations
}

func (s *Sweeper) remindWindow(ctx context.Context, dayStart time.Time, offsetDays int, autoRenew bool, kind notification.Kind) int64 {
	windowStart := dayStart.AddDate(0, 0, offsetDays)
	windowEnd := windowStart.AddDate(0, 0, 1)

	statuses := []membershipdomain.Status{membershipdomain.StatusActive}
	if !autoRenew {
		// Cancelled memberships still lapse and deserve the warning.
		statuses = append(statuses, membershipdomain.StatusCancelled)
	}

	var rows []reminderRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, customer_id
		 FROM memberships
		 WHERE status IN (?) AND disabled = ? AND auto_renew = ?
		   AND expiration_date >= ? AND expiration_date < ?
		 ORDER BY id`,
		statuses,
		false,
		autoRenew,
		windowStart,
		windowEnd,
	).Scan(&rows).Error
	if err != nil {
		s.log.Error("query reminder window", zap.Error(err),
			zap.Int("offset_days", offsetDays))
		return 0
	}

	var sent int64
	for _, row := range rows {
		err := s.notifier.Send(ctx, kind, notification.Payload{
			CustomerID:   row.CustomerID,
			MembershipID: row.ID,
		})
		if err != nil {
			s.log.Error("send reminder", zap.Error(err),
				zap.String("membership_id", row.ID.String()))
			continue
		}
		sent++
	}
	return sent
}

type levelStatusCount struct {
	LevelID snowflake.ID
	Status  membershipdomain.Status
	Total   int64
}

// snapshotPass records per-level status counts once per day.
func (s *Sweeper) snapshotPass(ctx context.Context, day string, now time.Time) error {
	var counts []levelStatusCount
	err := s.db.WithContext(ctx).Raw(
		`SELECT level_id, status, COUNT(1) AS total
		 FROM memberships
		 WHERE disabled = ?
		 GROUP BY level_id, status`,
		false,
	).Scan(&counts).Error
	if err != nil {
		return err
	}

	byLevel := make(map[snowflake.ID]*LevelDailyCount)
	for _, c := range counts {
		snapshot, ok := byLevel[c.LevelID]
		if !ok {
			snapshot = &LevelDailyCount{
				ID:        s.genID.Generate(),
				Day:       day,
				LevelID:   c.LevelID,
				CreatedAt: now,
			}
			byLevel[c.LevelID] = snapshot
		}
		switch c.Status {
		case membershipdomain.StatusActive:
			snapshot.Active = c.Total
		case membershipdomain.StatusPending:
			snapshot.Pending = c.Total
		case membershipdomain.StatusCancelled:
			snapshot.Cancelled = c.Total
		case membershipdomain.StatusExpired:
			snapshot.Expired = c.Total
		}
	}

	for _, snapshot := range byLevel {
		err := s.db.WithContext(ctx).Exec(
			`INSERT INTO level_daily_counts
			   (id, day, level_id, active, pending, cancelled, expired, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (day, level_id) DO NOTHING`,
			snapshot.ID,
			snapshot.Day,
			snapshot.LevelID,
			snapshot.Active,
			snapshot.Pending,
			snapshot.Cancelled,
			snapshot.Expired,
			snapshot.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}
