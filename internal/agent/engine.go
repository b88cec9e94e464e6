// Package agent turns inbound chat messages into humanized replies: it
// consults the session, extracts and filters marked tokens, optionally
// resolves display names, then sends the planned reply after a typing delay.
package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dayuer/charbot-go/internal/bus"
	"github.com/dayuer/charbot-go/internal/classify"
	"github.com/dayuer/charbot-go/internal/extract"
	"github.com/dayuer/charbot-go/internal/humanize"
	"github.com/dayuer/charbot-go/internal/lane"
	"github.com/dayuer/charbot-go/internal/mappings"
	"github.com/dayuer/charbot-go/internal/metrics"
	"github.com/dayuer/charbot-go/internal/session"
)

// Reply kinds carried in bus.OutboundMessage.Kind.
const (
	KindReply      = "reply"
	KindCorrection = "correction"
	KindCommand    = "command"
)

// Sender delivers text to a chat.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// BusSender publishes replies on the outbound bus.
type BusSender struct {
	Bus *bus.MessageBus
}

func (s BusSender) Send(ctx context.Context, msg bus.OutboundMessage) error {
	return s.Bus.PublishOutbound(ctx, msg)
}

// GroupLister enumerates the groups the account can bind to.
type GroupLister interface {
	ListGroups(ctx context.Context) ([]bus.Group, error)
}

// NameResolver maps a surface token to a display name.
type NameResolver interface {
	Resolve(ctx context.Context, surface string) (mappings.Entry, bool)
}

// Token is one extracted word with its classification.
type Token struct {
	Surface     string  `json:"surface"`
	Position    int     `json:"position"`
	Confidence  float64 `json:"confidence"`
	IsCandidate bool    `json:"isCandidate"`
	Reason      string  `json:"reason,omitempty"`
}

// Options wires an Engine. Machine, Humanizer and Sender are required.
type Options struct {
	Machine    *session.Machine
	Extractor  *extract.Extractor
	Classifier classify.Classifier
	Resolver   NameResolver // nil = echo tokens as written
	Humanizer  *humanize.Engine
	Sender     Sender
	Lister     GroupLister
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	// GuardCorrections drops a pending correction when the session is no
	// longer active in the reply's chat at fire time.
	GuardCorrections bool

	// ReplyMode orders replies within a chat. Empty means parallel.
	ReplyMode lane.Mode

	// Sleep waits for d or until ctx ends. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Engine handles messages for one configuration generation. Hot reload
// builds a new Engine and hands the session over with Dispatcher.Swap.
type Engine struct {
	machine    *session.Machine
	extractor  *extract.Extractor
	classifier classify.Classifier
	resolver   NameResolver
	humanizer  *humanize.Engine
	sender     Sender
	lister     GroupLister
	metrics    *metrics.Metrics
	logger     *zap.Logger
	guard      bool
	replyMode  lane.Mode
	sleep      func(ctx context.Context, d time.Duration) error

	// corrections is shared with successors so Wait covers every generation.
	corrections *sync.WaitGroup
	successor   atomic.Pointer[Engine]
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		machine:     opts.Machine,
		extractor:   opts.Extractor,
		classifier:  opts.Classifier,
		resolver:    opts.Resolver,
		humanizer:   opts.Humanizer,
		sender:      opts.Sender,
		lister:      opts.Lister,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		guard:       opts.GuardCorrections,
		replyMode:   opts.ReplyMode,
		sleep:       opts.Sleep,
		corrections: &sync.WaitGroup{},
	}
	if e.extractor == nil {
		e.extractor = extract.New(extract.DefaultMarker)
	}
	if e.classifier == nil {
		e.classifier = classify.Permissive{}
	}
	if e.replyMode == "" {
		e.replyMode = lane.ModeParallel
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.Named("agent")
	if e.sleep == nil {
		e.sleep = sleepCtx
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Machine returns the session state machine.
func (e *Engine) Machine() *session.Machine { return e.machine }

// Services names the external lookup services in use, if any.
func (e *Engine) Services() []string {
	if l, ok := e.resolver.(interface{ Services() []string }); ok {
		return l.Services()
	}
	return nil
}

// Wait blocks until every scheduled correction has fired or been dropped.
func (e *Engine) Wait() { e.corrections.Wait() }

// Task is the deferred part of handling one message: everything that may
// block on the network or a timer.
type Task struct {
	engine   *Engine
	msg      bus.InboundMessage
	decision session.Decision
}

// Begin applies the message to the session synchronously and returns the
// remaining work, or nil when the message needs no reply.
func (e *Engine) Begin(msg bus.InboundMessage) *Task {
	d := e.machine.Handle(msg)
	e.metrics.Inbound(d.Reason)
	if d.Action != session.Pipeline {
		e.logger.Debug("session decision",
			zap.String("chat", msg.ChatID), zap.String("id", msg.ID),
			zap.Stringer("action", d.Action), zap.String("reason", d.Reason))
	}
	if d.Action == session.Drop {
		return nil
	}
	return &Task{engine: e, msg: msg, decision: d}
}

// Process handles msg to completion. Corrections are still scheduled in
// the background; use Wait to drain them.
func (e *Engine) Process(ctx context.Context, msg bus.InboundMessage) error {
	t := e.Begin(msg)
	if t == nil {
		return nil
	}
	return t.Run(ctx)
}

// Run performs the task.
func (t *Task) Run(ctx context.Context) error {
	e := t.engine
	switch t.decision.Action {
	case session.Reply:
		return stageErr(StageSend, e.reply(ctx, t.msg, t.decision.Reply, KindCommand))
	case session.ListGroups:
		return e.offerGroups(ctx, t.msg)
	case session.Pipeline:
		return e.respond(ctx, t.msg)
	}
	return nil
}

func (e *Engine) reply(ctx context.Context, to bus.InboundMessage, text, kind string) error {
	return e.sender.Send(ctx, bus.OutboundMessage{
		Channel: to.Channel,
		ChatID:  to.ChatID,
		Content: text,
		Kind:    kind,
	})
}

func (e *Engine) offerGroups(ctx context.Context, msg bus.InboundMessage) error {
	if e.lister == nil {
		serr := e.reply(ctx, msg, "Group listing is not available.", KindCommand)
		return stageErr(StageListGroups, errors.Join(errors.New("no group lister configured"), serr))
	}
	groups, err := e.lister.ListGroups(ctx)
	if err != nil {
		serr := e.reply(ctx, msg, "Could not list groups, try again.", KindCommand)
		return stageErr(StageListGroups, errors.Join(err, serr))
	}
	return stageErr(StageSend, e.reply(ctx, msg, e.machine.OfferGroups(groups), KindCommand))
}

// Detect extracts and classifies the marked tokens of text.
func (e *Engine) Detect(text string) []Token {
	words := e.extractor.Tokens(text)
	tokens := make([]Token, 0, len(words))
	for i, w := range words {
		r := e.classifier.Classify(w)
		tokens = append(tokens, Token{
			Surface:     w,
			Position:    i,
			Confidence:  r.Confidence,
			IsCandidate: r.IsCandidate,
			Reason:      r.Reason,
		})
	}
	return tokens
}

// Words returns the reply words for tokens: candidates only, with display
// names substituted when a resolver is configured.
func (e *Engine) Words(ctx context.Context, tokens []Token) []string {
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !tok.IsCandidate {
			continue
		}
		word := tok.Surface
		if e.resolver != nil {
			if entry, ok := e.resolver.Resolve(ctx, tok.Surface); ok {
				word = entry.DisplayName
			}
		}
		words = append(words, word)
	}
	return words
}

// Preview runs detection and planning without sending anything.
func (e *Engine) Preview(ctx context.Context, text string) ([]Token, humanize.Plan, time.Duration) {
	tokens := e.Detect(text)
	plan := e.humanizer.Plan(e.Words(ctx, tokens))
	return tokens, plan, e.humanizer.Delay(plan)
}

func (e *Engine) respond(ctx context.Context, msg bus.InboundMessage) error {
	words := e.Words(ctx, e.Detect(msg.Content))
	if len(words) == 0 {
		return nil
	}

	plan := e.humanizer.Plan(words)
	delay := e.humanizer.Delay(plan)
	e.logger.Debug("reply planned",
		zap.String("chat", msg.ChatID), zap.Strings("tokens", words),
		zap.String("kind", string(plan.Kind)), zap.Duration("delay", delay))

	if err := e.sleep(ctx, delay); err != nil {
		return stageErr(StageDelay, err)
	}
	if err := e.reply(ctx, msg, plan.Text, KindReply); err != nil {
		return stageErr(StageSend, err)
	}
	e.metrics.ReplySent()
	if plan.IsMistake {
		e.metrics.Mistake(string(plan.Kind))
	}
	if plan.Correct {
		e.scheduleCorrection(ctx, msg, plan)
	}
	return nil
}

// scheduleCorrection sends the ground-truth reply after plan.CorrectionDelay.
// The timer is detached from ctx so the correction outlives the message.
func (e *Engine) scheduleCorrection(ctx context.Context, msg bus.InboundMessage, plan humanize.Plan) {
	ctx = context.WithoutCancel(ctx)
	e.corrections.Add(1)
	go func() {
		defer e.corrections.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("correction panicked", zap.Any("panic", r))
			}
		}()

		e.sleep(ctx, plan.CorrectionDelay)
		if e.guard && !e.activeIn(msg.ChatID) {
			e.metrics.Correction("suppressed")
			e.logger.Info("correction suppressed, session moved", zap.String("chat", msg.ChatID))
			return
		}
		if err := e.reply(ctx, msg, plan.CorrectionText(), KindCorrection); err != nil {
			e.metrics.Correction("failed")
			e.logger.Warn("correction failed", zap.Error(stageErr(StageCorrection, err)))
			return
		}
		e.metrics.Correction("sent")
	}()
}

// activeIn checks the newest engine generation, since the session may have
// been handed to a successor while the correction was pending.
func (e *Engine) activeIn(chatID string) bool {
	cur := e
	for next := cur.successor.Load(); next != nil; next = cur.successor.Load() {
		cur = next
	}
	return cur.machine.IsActiveIn(chatID)
}
