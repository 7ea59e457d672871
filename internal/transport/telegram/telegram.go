// Package telegram delivers reminders to a Telegram chat.
//
// Each reminder is sent as a message with an inline "Logged it" button;
// pressing the button surfaces as an action event, which the dispatcher
// treats the same way a mobile platform treats a tapped notification.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"snusstats/internal/transport"
	"snusstats/pkg/logx"
)

const actionPrefix = "logged:"

type Config struct {
	Token       string
	ChatID      int64
	PollTimeout time.Duration
	RatePerSec  int
}

type Sink struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup

	actionMu sync.Mutex
	action   transport.ActionFunc
}

func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Sink{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (s *Sink) OnAction(fn transport.ActionFunc) {
	s.actionMu.Lock()
	s.action = fn
	s.actionMu.Unlock()
}

func (s *Sink) Start(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return nil
	}
	s.running = true
	rctx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.runWG.Add(1)
	s.runMu.Unlock()

	s.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		data := strings.TrimPrefix(strings.TrimSpace(cb.Data), "\f")
		if !strings.HasPrefix(data, actionPrefix) {
			return c.Respond()
		}
		id, err := strconv.Atoi(strings.TrimPrefix(data, actionPrefix))
		if err != nil {
			return c.Respond()
		}

		s.actionMu.Lock()
		fn := s.action
		s.actionMu.Unlock()
		if fn != nil {
			fn(id)
		}
		return c.Respond(&tele.CallbackResponse{Text: "Logged"})
	})

	go func() {
		defer s.runWG.Done()
		// Ensure telebot stops when the context is cancelled.
		go func() {
			<-rctx.Done()
			s.bot.Stop()
		}()
		s.log.Info("polling started", logx.Int64("chat_id", s.cfg.ChatID))
		s.bot.Start() // blocks until Stop() is called
	}()

	return nil
}

func (s *Sink) Stop(ctx context.Context) error {
	s.runMu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	s.running = false
	s.runMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Never block shutdown on the Telegram long-poll.
		return ctx.Err()
	}
}

func (s *Sink) Deliver(ctx context.Context, d transport.Delivery) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	markup := &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{{
			{Text: "Logged it", Data: actionPrefix + strconv.Itoa(d.ID)},
		}},
	}
	text := d.Title
	if d.Body != "" {
		text += "\n" + d.Body
	}
	_, err := s.bot.Send(tele.ChatID(s.cfg.ChatID), text, markup)
	return err
}

// CheckReachable resolves the configured chat. Failure means the bot
// cannot deliver there (not started, kicked, or wrong chat id), which
// the scheduler treats as denied permission.
func (s *Sink) CheckReachable(ctx context.Context) error {
	_ = ctx // telebot's API calls carry their own timeouts
	_, err := s.bot.ChatByID(s.cfg.ChatID)
	return err
}
