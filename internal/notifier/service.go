// Package notifier delivers engine notifications to a Telegram chat.
//
// Delivery is best-effort: the persisted Notification entity is the source
// of truth, this service only mirrors it to chat. Events arrive over the
// in-memory bus, go through a bounded queue and a rate limiter, and drop
// under sustained pressure rather than block the engine.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"planwork/internal/engine"
	"planwork/internal/eventbus"
	"planwork/internal/model"
	rtsup "planwork/internal/runtime/supervisor"
	logx "planwork/pkg/logx"
)

// Config controls the notifier.
type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	RatePerSec int
	QueueSize  int
}

type Service struct {
	mu sync.Mutex

	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	bot     *tele.Bot
	limiter *rate.Limiter

	queue chan model.Notification
	sup   *rtsup.Supervisor

	dropped uint64
}

// New builds the notifier. With Enabled false (or an empty token) it becomes
// an inert service whose Start/Stop are no-ops.
func New(cfg Config, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{cfg: cfg, log: log, bus: bus}
	if !cfg.Enabled {
		return s, nil
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notifier enabled but telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notifier enabled but chat_id is not set")
	}

	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	s.bot = bot

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)

	size := cfg.QueueSize
	if size <= 0 {
		size = 128
	}
	s.queue = make(chan model.Notification, size)
	return s, nil
}

func (s *Service) Enabled() bool { return s.cfg.Enabled && s.bot != nil }

// Start subscribes to the bus and launches the send worker.
func (s *Service) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))

	events, unsub := s.bus.Subscribe(64)
	s.sup.Go("notifier-intake", func(ctx context.Context) error {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				if e.Type != engine.EventNotificationCreated {
					continue
				}
				n, ok := e.Data.(model.Notification)
				if !ok {
					continue
				}
				select {
				case s.queue <- n:
				default:
					s.dropped++
					s.log.Warn("notification dropped (queue full)", logx.String("id", n.ID))
				}
			}
		}
	})
	s.sup.Go("notifier-send", s.sendWorker)
	s.log.Info("notifier started", logx.Int64("chat_id", s.cfg.ChatID))
}

func (s *Service) sendWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
			if err := s.send(n); err != nil {
				s.log.Error("telegram send failed", logx.String("id", n.ID), logx.Err(err))
			}
		}
	}
}

func (s *Service) send(n model.Notification) error {
	msg := n.Message
	if msg == "" {
		msg = fmt.Sprintf("Bundle %s created from template %s", n.BundleID, n.TemplateID)
	}
	_, err := s.bot.Send(tele.ChatID(s.cfg.ChatID), msg, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}

// Stop drains nothing further and waits briefly for in-flight sends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = sup.Stop(stopCtx)
	s.log.Info("notifier stopped")
}
