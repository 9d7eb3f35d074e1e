package job

import (
	"context"
	"time"

	"floraledger/internal/config"
	"floraledger/internal/model"
	"floraledger/internal/service"

	"github.com/rs/zerolog/log"
)

// ClosureSource aggregates the ledger of one shop-local date.
type ClosureSource interface {
	GetClosureReport(ctx context.Context, date string) (*model.ClosureReport, error)
}

// ClosureReportJob pushes the daily cash register summary to the shop owner once the
// configured hour has passed. At most one report is sent per shop-local date.
type ClosureReportJob struct {
	source   ClosureSource
	notifier service.Notifier
	cfg      *config.Config
	loc      *time.Location
	now      func() time.Time
	stopCh   chan struct{}
	interval time.Duration
	lastSent string
}

func NewClosureReportJob(source ClosureSource, notifier service.Notifier, cfg *config.Config) *ClosureReportJob {
	loc, err := cfg.Location()
	if err != nil {
		loc = time.UTC
	}
	return &ClosureReportJob{
		source:   source,
		notifier: notifier,
		cfg:      cfg,
		loc:      loc,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		interval: time.Minute,
	}
}

// Enabled reports whether a report hour and a recipient are configured.
func (j *ClosureReportJob) Enabled() bool {
	return j.cfg.Business.ClosureReportHour >= 0 && j.cfg.Telegram.OwnerID != 0
}

func (j *ClosureReportJob) Start(ctx context.Context) {
	log.Info().Str("component", "closure_job").Int("hour", j.cfg.Business.ClosureReportHour).Msg("started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("component", "closure_job").Msg("context done, exiting")
			return
		case <-j.stopCh:
			log.Info().Str("component", "closure_job").Msg("stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *ClosureReportJob) Stop() {
	close(j.stopCh)
}

// runOnce sends today's report if it is due and not yet sent. It reports whether a message
// went out.
func (j *ClosureReportJob) runOnce(ctx context.Context) bool {
	if !j.Enabled() {
		return false
	}
	local := j.now().In(j.loc)
	date := local.Format("2006-01-02")
	if local.Hour() < j.cfg.Business.ClosureReportHour || j.lastSent == date {
		return false
	}

	report, err := j.source.GetClosureReport(ctx, date)
	if err != nil {
		log.Error().Str("component", "closure_job").Err(err).Str("date", date).Msg("failed to build closure report")
		return false
	}

	if err := j.notifier.Send(j.cfg.Telegram.OwnerID, service.FormatClosureReport(report)); err != nil {
		log.Error().Str("component", "closure_job").Err(err).Str("date", date).Msg("failed to send closure report")
		return false
	}

	j.lastSent = date
	log.Info().Str("component", "closure_job").Str("date", date).Int("transactions", report.Transactions).Msg("closure report sent")
	return true
}
