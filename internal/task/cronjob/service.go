package cronjob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "feedbot/pkg/logx"
)

type Config struct {
	Timezone       string // IANA name; empty means Local
	DefaultTimeout time.Duration
	HistorySize    int
	RetryMax       int
	RetryBase      time.Duration
}

// Job is one run of a registered job.
type Job func(ctx context.Context) error

type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Attempts int
	Error    string
}

type JobInfo struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type def struct {
	name    string
	spec    Spec
	timeout time.Duration
	job     Job
	entryID cron.EntryID
}

type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	cfg    Config
	parser cron.Parser
	c      *cron.Cron
	defs   []*def
	runCtx context.Context
	cancel context.CancelFunc

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Add registers or replaces the job called name. A running service picks it up at once.
func (s *Service) Add(name, raw string, timeout time.Duration, job Job) error {
	if job == nil {
		return errors.New("cronjob: nil job")
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return err
	}
	if _, err := s.parser.Parse(spec.Expr); err != nil {
		return fmt.Errorf("cronjob %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	d := &def{name: name, spec: spec, timeout: timeout, job: job}
	for i, old := range s.defs {
		if old.name == name {
			if s.c != nil {
				s.c.Remove(old.entryID)
			}
			s.defs[i] = d
			return s.scheduleLocked(d)
		}
	}
	s.defs = append(s.defs, d)
	return s.scheduleLocked(d)
}

// Remove drops the job called name. It reports whether one existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.defs {
		if d.name == name {
			if s.c != nil {
				s.c.Remove(d.entryID)
			}
			s.defs = append(s.defs[:i], s.defs[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.startLocked()
}

// Stop waits for running jobs until ctx ends, then cancels them.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("cron jobs still running at stop deadline")
	}
	cancel()
	s.log.Info("service stopped")
}

// Apply swaps the config; a timezone change rebuilds the cron runner.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	c := s.c
	if c == nil || oldTZ == strings.TrimSpace(cfg.Timezone) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// running jobs take s.mu, so wait for them unlocked
	<-c.Stop().Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == c {
		s.startLocked()
	}
}

func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.defs))
	for _, d := range s.defs {
		info := JobInfo{Name: d.name, Spec: d.spec.Expr}
		if s.c != nil {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	return out
}

func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) startLocked() {
	loc := loadLocation(s.cfg.Timezone, s.log)
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	for _, d := range s.defs {
		if err := s.scheduleLocked(d); err != nil {
			s.log.Warn("job not scheduled", logx.String("job", d.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("jobs", len(s.defs)))
}

func (s *Service) scheduleLocked(d *def) error {
	if s.c == nil {
		return nil
	}
	id, err := s.c.AddFunc(d.spec.Expr, func() { s.run(d) })
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) run(d *def) {
	s.mu.Lock()
	ctx := s.runCtx
	cfg := s.cfg
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	timeout := d.timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	retries := max(cfg.RetryMax, 0)
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	start := time.Now()
	var err error
	attempts := 0
	for attempts < 1+retries {
		attempts++
		runCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		err = d.job(runCtx)
		cancel()
		if err == nil || ctx.Err() != nil || attempts > retries {
			break
		}
		delay := base << (attempts - 1)
		s.log.Debug("job retry scheduled", logx.String("job", d.name), logx.Int("attempt", attempts+1), logx.Duration("delay", delay), logx.Err(err))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			err = ctx.Err()
		case <-t.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	item := HistoryItem{Name: d.name, Started: start, Duration: time.Since(start), Attempts: attempts}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("job failed", logx.String("job", d.name), logx.Err(err), logx.Int("attempts", attempts))
	} else {
		s.log.Debug("job completed", logx.String("job", d.name), logx.Duration("dur", item.Duration))
	}

	size := cfg.HistorySize
	if size <= 0 {
		size = 50
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
