package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "expirywatch/pkg/logx"
)

// Job is a named, scheduled unit of work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Service runs Jobs on a robfig/cron instance.
type Service struct {
	log    logx.Logger
	parser cron.Parser

	mu      sync.Mutex
	loc     *time.Location
	jobs    []Job
	entries map[string]cron.EntryID
	c       *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
}

// New validates tz and returns a stopped service.
func New(tz string, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc, err := LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return &Service{
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:     loc,
		entries: map[string]cron.EntryID{},
	}, nil
}

// LoadLocation resolves an IANA timezone name; empty means UTC.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Validate checks that spec parses for this service.
func (s *Service) Validate(spec string) error {
	_, err := s.parse(spec)
	return err
}

func (s *Service) parse(spec string) (cron.Schedule, error) {
	ps, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	sched, err := s.parser.Parse(ps.CronSpec())
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Add registers j. Names must be unique. When the service is running the
// job is scheduled immediately.
func (s *Service) Add(j Job) error {
	if strings.TrimSpace(j.Name) == "" || j.Run == nil {
		return errors.New("scheduler: job needs a name and a run func")
	}
	if err := s.Validate(j.Spec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.Name == j.Name {
			return fmt.Errorf("scheduler: duplicate job %q", j.Name)
		}
	}
	s.jobs = append(s.jobs, j)
	if s.c != nil {
		return s.scheduleLocked(j)
	}
	return nil
}

// Start begins triggering. Jobs receive a context derived from ctx that is
// cancelled by Stop.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startLocked()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

func (s *Service) startLocked() {
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log: s.log}),
	)
	s.entries = map[string]cron.EntryID{}
	for _, j := range s.jobs {
		if err := s.scheduleLocked(j); err != nil {
			s.log.Warn("job not scheduled", logx.String("job", j.Name), logx.Err(err))
		}
	}
	s.c.Start()
}

func (s *Service) scheduleLocked(j Job) error {
	sched, err := s.parse(j.Spec)
	if err != nil {
		return err
	}
	ctx := s.ctx
	log := s.log.With(logx.String("job", j.Name))
	run := j.Run
	cl := cronLogger{log: log}
	id := s.c.Schedule(sched, cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		start := time.Now()
		log.Debug("job started")
		if err := run(ctx); err != nil {
			log.Warn("job failed", logx.Err(err), logx.Duration("took", time.Since(start)))
			return
		}
		log.Debug("job finished", logx.Duration("took", time.Since(start)))
	})))
	s.entries[j.Name] = id
	return nil
}

// Reset replaces the timezone and job set, restarting triggering when the
// service is running.
func (s *Service) Reset(tz string, jobs []Job) error {
	loc, err := LoadLocation(tz)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := s.Validate(j.Spec); err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loc = loc
	s.jobs = append([]Job(nil), jobs...)
	if s.c == nil {
		return nil
	}
	old := s.c
	old.Stop()
	s.startLocked()
	s.log.Info("schedule reloaded", logx.String("tz", loc.String()), logx.Int("jobs", len(jobs)))
	return nil
}

// Next returns the next trigger time of the named job.
func (s *Service) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}, false
	}
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	e := s.c.Entry(id)
	return e.Next, e.Valid()
}

// Stop stops triggering and waits for running jobs until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	start := time.Now()
	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Trace("cron: "+msg, kv(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kv(keysAndValues), logx.Err(err))...)
}

func kv(keysAndValues []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		k, ok := keysAndValues[i].(string)
		if !ok {
			k = fmt.Sprint(keysAndValues[i])
		}
		out = append(out, logx.Any(k, keysAndValues[i+1]))
	}
	return out
}
