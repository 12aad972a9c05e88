// Package screening decides what to do with an incoming call.
package screening

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/behavior"
	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/fennsaji/call-shield-sub001/internal/lookup"
	"github.com/fennsaji/call-shield-sub001/internal/platform/metrics"
)

const hiddenLabel = "Hidden number"

type IncomingCall struct {
	RawNumber string
	// Hidden is set when the platform reports a withheld caller ID.
	Hidden bool
}

type Reputation interface {
	Lookup(ctx context.Context, hash domain.NumberHash) lookup.Result
}

type Behavior interface {
	Analyze(ctx context.Context, hash domain.NumberHash, now time.Time) (behavior.Signals, error)
	RecordIncoming(ctx context.Context, hash domain.NumberHash, at time.Time) error
}

type Thresholds struct {
	Flag         float64
	LikelySpam   float64
	Block        float64
	MinReporters int
}

func DefaultThresholds() Thresholds {
	return Thresholds{Flag: 0.4, LikelySpam: 0.6, Block: 0.8, MinReporters: 3}
}

type Config struct {
	// Timeout bounds the whole pipeline; the platform hard limit is 1.5s.
	Timeout       time.Duration
	RecordTimeout time.Duration
	Thresholds    Thresholds
	Now           func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Timeout:       1400 * time.Millisecond,
		RecordTimeout: 5 * time.Second,
		Thresholds:    DefaultThresholds(),
		Now:           time.Now,
	}
}

type Deps struct {
	Hasher      *domain.Hasher
	Whitelist   ports.ListStore
	Blocklist   ports.ListStore
	Prefixes    ports.PrefixRuleStore
	Preferences ports.PreferenceStore
	Contacts    ports.ContactDirectory
	Reputation  Reputation
	Behavior    Behavior
	History     ports.HistoryStore
	Notifier    ports.CallNotifier
}

type Orchestrator struct {
	deps   Deps
	policy *Policy
	cfg    Config
	logger *slog.Logger

	wg sync.WaitGroup
}

func NewOrchestrator(deps Deps, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = DefaultConfig().RecordTimeout
	}
	return &Orchestrator{
		deps:   deps,
		policy: NewPolicy(deps.Contacts),
		cfg:    cfg,
		logger: logger.With("component", "screening"),
	}
}

// caller is what the pipeline learned about the number being screened.
type caller struct {
	hash   domain.NumberHash
	e164   string
	label  string
	hidden bool
}

type evaluation struct {
	decision domain.CallDecision
	caller   caller
	err      error
	panicked bool
}

// Screen returns exactly one decision within the configured deadline. Any
// error, panic or missed deadline yields Allow(FAIL_OPEN) and records nothing.
// History and notifications are written after Screen returns.
func (o *Orchestrator) Screen(ctx context.Context, call IncomingCall) domain.CallDecision {
	timer := metrics.StartTimer()
	defer func() { metrics.ObserveScreening(timer.Elapsed()) }()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	done := make(chan evaluation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evaluation{err: fmt.Errorf("screening panicked: %v", r), panicked: true}
			}
		}()
		d, c, err := o.evaluate(ctx, call)
		done <- evaluation{decision: d, caller: c, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			reason := "error"
			if res.panicked {
				reason = "panic"
			} else if errors.Is(res.err, context.DeadlineExceeded) {
				reason = "deadline"
			}
			return o.failOpen(ctx, reason, res.err)
		}
		o.logger.InfoContext(ctx, "call screened",
			"number_hash", res.caller.hash,
			"outcome", domain.OutcomeOf(res.decision),
			"source", res.decision.DecisionSource(),
		)
		metrics.RecordDecision(string(res.decision.DecisionSource()), string(domain.OutcomeOf(res.decision)))
		o.recordAsync(res.caller, res.decision)
		return res.decision
	case <-ctx.Done():
		return o.failOpen(ctx, "deadline", ctx.Err())
	}
}

// Close waits for pending history and notification writes.
func (o *Orchestrator) Close() {
	o.wg.Wait()
}

func (o *Orchestrator) failOpen(ctx context.Context, reason string, err error) domain.CallDecision {
	o.logger.WarnContext(ctx, "screening failed open", "reason", reason, "error", err)
	metrics.RecordFailOpen(reason)
	metrics.RecordDecision(string(domain.SourceFailOpen), string(domain.OutcomeAllowed))
	return domain.Allow{Source: domain.SourceFailOpen}
}

func (o *Orchestrator) evaluate(ctx context.Context, call IncomingCall) (domain.CallDecision, caller, error) {
	now := o.cfg.Now()
	c := o.resolve(call)

	if !c.hidden {
		if d, err := o.checkLists(ctx, c); d != nil || err != nil {
			return d, c, err
		}
	}

	prefs, err := o.deps.Preferences.LoadPreferences(ctx)
	if err != nil {
		return nil, c, fmt.Errorf("failed to load preferences: %w", err)
	}

	if c.hidden {
		return hiddenDecision(prefs), c, nil
	}

	d, err := o.policy.Evaluate(ctx, prefs, c.hash, c.e164, now)
	if err != nil {
		return nil, c, err
	}
	if d != nil {
		return d, c, nil
	}

	if d := o.checkReputation(ctx, prefs, c.hash); d != nil {
		return d, c, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, c, err
	}

	if o.deps.Behavior != nil {
		signals, err := o.deps.Behavior.Analyze(ctx, c.hash, now)
		if err != nil {
			o.logger.WarnContext(ctx, "behavioral analysis skipped", "number_hash", c.hash, "error", err)
		} else if signals.Any() {
			return domain.Flag{Source: domain.SourceBehavioral}, c, nil
		}
	}

	return domain.Allow{Source: domain.SourceDefault}, c, nil
}

func (o *Orchestrator) resolve(call IncomingCall) caller {
	if call.Hidden || strings.TrimSpace(call.RawNumber) == "" {
		return caller{hidden: true, label: hiddenLabel}
	}
	e164, err := domain.NormalizeNumber(call.RawNumber)
	if err != nil {
		return caller{hidden: true, label: hiddenLabel}
	}
	return caller{
		hash:  o.deps.Hasher.HashE164(e164),
		e164:  e164,
		label: domain.MaskNumber(e164),
	}
}

func (o *Orchestrator) checkLists(ctx context.Context, c caller) (domain.CallDecision, error) {
	ok, err := o.deps.Whitelist.Contains(ctx, c.hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check whitelist: %w", err)
	}
	if ok {
		return domain.Allow{Source: domain.SourceWhitelist}, nil
	}

	ok, err = o.deps.Blocklist.Contains(ctx, c.hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check blocklist: %w", err)
	}
	if ok {
		return domain.Reject{Source: domain.SourceBlocklist}, nil
	}

	rules, err := o.deps.Prefixes.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load prefix rules: %w", err)
	}
	if rule := domain.MatchPrefix(rules, c.e164); rule != nil {
		switch rule.Action {
		case domain.PrefixBlock:
			return domain.Reject{Source: domain.SourcePrefix}, nil
		case domain.PrefixAllow:
			return domain.Allow{Source: domain.SourcePrefix}, nil
		}
	}
	return nil, nil
}

func hiddenDecision(prefs domain.Preferences) domain.CallDecision {
	if !prefs.BlockHidden {
		return domain.Allow{Source: domain.SourceHidden}
	}
	if prefs.HiddenAction == domain.HiddenSilence {
		return domain.Silence{Source: domain.SourceHidden}
	}
	return domain.Reject{Source: domain.SourceHidden}
}

func (o *Orchestrator) checkReputation(ctx context.Context, prefs domain.Preferences, hash domain.NumberHash) domain.CallDecision {
	if o.deps.Reputation == nil {
		return nil
	}
	t := o.cfg.Thresholds
	autoBlock := prefs.ProTier && prefs.AutoBlockHighConfidence

	rep := o.deps.Reputation.Lookup(ctx, hash)
	switch rep.Source {
	case lookup.SourceSeedDB:
		if autoBlock {
			return domain.Reject{Source: domain.SourceSeedDB}
		}
		return domain.Silence{Score: rep.Score, Category: rep.Category, Source: domain.SourceSeedDB}
	case lookup.SourceRemote:
		switch {
		case rep.Score >= t.Block && autoBlock && rep.UniqueReporters >= t.MinReporters:
			return domain.Reject{Source: domain.SourceRemote}
		case rep.Score >= t.LikelySpam:
			return domain.Silence{Score: rep.Score, Category: rep.Category, Source: domain.SourceRemote}
		case rep.Score >= t.Flag:
			return domain.Flag{Score: rep.Score, Category: rep.Category, Source: domain.SourceRemote}
		}
	}
	return nil
}

func (o *Orchestrator) recordAsync(c caller, d domain.CallDecision) {
	at := o.cfg.Now()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RecordTimeout)
		defer cancel()
		o.record(ctx, c, d, at)
	}()
}

func (o *Orchestrator) record(ctx context.Context, c caller, d domain.CallDecision, at time.Time) {
	if !c.hidden && o.deps.Behavior != nil {
		if err := o.deps.Behavior.RecordIncoming(ctx, c.hash, at); err != nil {
			o.logger.WarnContext(ctx, "failed to record incoming call", "number_hash", c.hash, "error", err)
		}
	}

	score, category := domain.ScoreOf(d)
	outcome := domain.OutcomeOf(d)

	if o.deps.History != nil {
		err := o.deps.History.AppendHistory(ctx, domain.CallHistoryRecord{
			NumberHash:      c.hash,
			DisplayLabel:    c.label,
			Outcome:         outcome,
			ConfidenceScore: score,
			Category:        category,
			Source:          d.DecisionSource(),
			ScreenedAt:      at,
		})
		if err != nil {
			o.logger.WarnContext(ctx, "failed to record call history", "number_hash", c.hash, "error", err)
		}
	}

	if _, allowed := d.(domain.Allow); allowed || o.deps.Notifier == nil {
		return
	}
	err := o.deps.Notifier.NotifyScreened(ctx, ports.CallNotification{
		NumberHash:   c.hash,
		DisplayLabel: c.label,
		Outcome:      outcome,
		Source:       d.DecisionSource(),
		Score:        score,
		Category:     category,
		ScreenedAt:   at,
	})
	if err != nil {
		o.logger.WarnContext(ctx, "failed to post call notification", "number_hash", c.hash, "error", err)
	}
}
