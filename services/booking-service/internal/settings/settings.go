// Package settings reads the environment shared by booking-service, reminder-scheduler
// and petbookctl.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/petbook/libs/config"
	"github.com/md-rashed-zaman/petbook/libs/kafkax"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/sweep"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Settings struct {
	ServiceName string
	Port        string
	GRPCPort    string
	LogLevel    string

	StorageDriver string
	DatabaseURL   string
	RedisAddr     string

	KafkaBrokers  []string
	KafkaGroupID  string
	KafkaPetTopic string

	Location *time.Location

	SweepInterval       time.Duration
	SweepItemTimeout    time.Duration
	SweepMaxRetries     int
	SweepReconcileEvery int

	Deadlines policy.StaticConfig

	RateLimitPerMinute int
	LockTTL            time.Duration
}

// Load reads every key and reports all invalid values at once.
func Load(defaultService, defaultPort string) (Settings, error) {
	var (
		s    Settings
		errs []error
		err  error
	)
	collect := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	s.ServiceName = config.String("SERVICE_NAME", defaultService)
	s.Port, err = config.Port("PORT", defaultPort)
	collect(err)
	s.GRPCPort, err = config.Port("GRPC_PORT", "9090")
	collect(err)
	s.LogLevel = config.String("LOG_LEVEL", "info")

	s.StorageDriver = strings.ToLower(config.String("STORAGE_DRIVER", DriverPostgres))
	switch s.StorageDriver {
	case DriverPostgres:
		s.DatabaseURL, err = config.RequiredString("DATABASE_URL")
		collect(err)
	case DriverMemory:
	default:
		collect(fmt.Errorf("STORAGE_DRIVER must be %q or %q (got %q)", DriverPostgres, DriverMemory, s.StorageDriver))
	}
	s.RedisAddr = config.String("REDIS_ADDR", "")

	s.KafkaBrokers = kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	s.KafkaGroupID = config.String("KAFKA_GROUP_ID", s.ServiceName)
	s.KafkaPetTopic = config.String("KAFKA_PET_TOPIC", "pets.events")

	s.Location, err = config.Location("TIMEZONE", "America/Argentina/Buenos_Aires")
	collect(err)

	s.SweepInterval, err = config.Duration("SWEEP_INTERVAL", time.Minute)
	collect(err)
	s.SweepItemTimeout, err = config.Duration("SWEEP_ITEM_TIMEOUT", 5*time.Second)
	collect(err)
	s.SweepMaxRetries, err = config.Int("SWEEP_MAX_RETRIES", 3)
	collect(err)
	s.SweepReconcileEvery, err = config.Int("SWEEP_RECONCILE_EVERY", 10)
	collect(err)

	s.Deadlines.SlotPendingLead, err = config.Duration("PENDING_DEADLINE_SLOT", policy.DefaultSlotPendingLead)
	collect(err)
	s.Deadlines.RangePendingLead, err = config.Duration("PENDING_DEADLINE_RANGE", policy.DefaultRangePendingLead)
	collect(err)
	s.Deadlines.ReminderLead, err = config.Duration("REMINDER_LEAD", policy.DefaultReminderLead)
	collect(err)

	s.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 30)
	collect(err)
	s.LockTTL, err = config.Duration("LOCK_TTL", 5*time.Second)
	collect(err)

	if len(errs) > 0 {
		return Settings{}, errors.Join(errs...)
	}
	return s, nil
}

func (s Settings) KafkaEnabled() bool { return len(s.KafkaBrokers) > 0 }

func (s Settings) SweepConfig() sweep.Config {
	return sweep.Config{
		Interval:       s.SweepInterval,
		ItemTimeout:    s.SweepItemTimeout,
		MaxRetries:     s.SweepMaxRetries,
		ReconcileEvery: s.SweepReconcileEvery,
	}
}
