package scheduler

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SweepRun is the daily-run guard. The unique day column makes the
// sweep run at most once per calendar day no matter how many instances
// race on the schedule.
type SweepRun struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	Day                 string       `gorm:"type:text;not null;uniqueIndex"`
	StartedAt           time.Time    `gorm:"not null"`
	FinishedAt          *time.Time
	Expired             int64 `gorm:"not null;default:0"`
	RenewalReminders    int64 `gorm:"not null;default:0"`
	ExpirationReminders int64 `gorm:"not null;default:0"`
	Abandoned           int64 `gorm:"not null;default:0"`
}

// TableName sets the database table name.
func (SweepRun) TableName() string { return "sweep_runs" }

// LevelDailyCount is one day's membership status snapshot for a level.
type LevelDailyCount struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Day       string       `gorm:"type:text;not null;uniqueIndex:idx_level_daily_counts_day_level"`
	LevelID   snowflake.ID `gorm:"not null;uniqueIndex:idx_level_daily_counts_day_level"`
	Active    int64        `gorm:"not null;default:0"`
	Pending   int64        `gorm:"not null;default:0"`
	Cancelled int64        `gorm:"not null;default:0"`
	Expired   int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LevelDailyCount) TableName() string { return "level_daily_counts" }
