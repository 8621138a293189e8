// Package maintenance schedules the agent's periodic housekeeping jobs.
package maintenance

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/registry"
)

// Checkpointer is the analytics surface the jobs need.
type Checkpointer interface {
	Checkpoint() error
}

// Jobs owns the cron scheduler.
type Jobs struct {
	cron  *cron.Cron
	store Checkpointer
	reg   *registry.Registry
	log   zerolog.Logger
}

// New builds the job set. Start must be called to begin scheduling.
func New(store Checkpointer, reg *registry.Registry, log zerolog.Logger) *Jobs {
	j := &Jobs{
		cron:  cron.New(),
		store: store,
		reg:   reg,
		log:   log.With().Str("component", "maintenance").Logger(),
	}
	j.cron.AddFunc("@hourly", j.CheckpointDB)
	j.cron.AddFunc("30 4 * * *", j.LogBalances)
	return j
}

// Start begins running the scheduled jobs.
func (j *Jobs) Start() { j.cron.Start() }

// Stop halts scheduling; running jobs finish.
func (j *Jobs) Stop() { j.cron.Stop() }

// CheckpointDB merges the analytics WAL into the main database file so the
// file on disk stays compact across long uptimes.
func (j *Jobs) CheckpointDB() {
	if err := j.store.Checkpoint(); err != nil {
		j.log.Error().Err(err).Msg("analytics checkpoint failed")
		return
	}
	j.log.Debug().Msg("analytics checkpoint complete")
}

// LogBalances writes a daily summary of every broadcaster's cached balance.
func (j *Jobs) LogBalances() {
	var total int64
	for _, snap := range j.reg.All() {
		total += snap.Points
		j.log.Info().
			Str("streamer", snap.Name).
			Int64("points", snap.Points).
			Bool("live", snap.Live).
			Msg("daily balance")
	}
	j.log.Info().Int64("total", total).Msg("daily balance summary")
}
