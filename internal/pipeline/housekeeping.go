package pipeline

import (
	"github.com/robfig/cron/v3"

	logx "notiflink/pkg/logx"
)

// newHousekeeping schedules job on spec. Specs accept an optional seconds
// field and descriptors such as "@every 10m".
func newHousekeeping(spec string, job func(), log logx.Logger) (*cron.Cron, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, job); err != nil {
		return nil, err
	}
	log.Debug("housekeeping scheduled", logx.String("schedule", spec))
	return c, nil
}

// housekeep runs on the dispatch goroutine.
func (p *Pipeline) housekeep() {
	pruned := p.dedup.Prune(p.now().UnixNano())
	burst, repeat := p.dedup.Len()
	st := p.stats.snapshot()
	p.log.Info("pipeline stats",
		logx.Int("pruned", pruned),
		logx.Int("burst_entries", burst),
		logx.Int("repeat_entries", repeat),
		logx.Int64("active", st.Active),
		logx.Int("actions", p.regs.Actions.Len()),
		logx.Any("counters", st),
	)
}
