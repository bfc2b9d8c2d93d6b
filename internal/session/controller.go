// Package session runs the per-client side of the coordinator: one
// controller per connected player, each a single-goroutine event loop
// over timer ticks and realtime events. Controllers never share memory;
// everything they agree on flows through the store and the bus.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
	"github.com/Satelliteq/PixelHunt-sub000/internal/realtime"
	"github.com/Satelliteq/PixelHunt-sub000/internal/reveal"
	"github.com/Satelliteq/PixelHunt-sub000/internal/room"
	"github.com/Satelliteq/PixelHunt-sub000/internal/scoring"
	"github.com/Satelliteq/PixelHunt-sub000/internal/store"
)

// Store defines what a controller needs from the shared room store. It
// writes only its own player record, its own guesses and its own chat
// messages.
type Store interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetPlayer(ctx context.Context, roomID uuid.UUID, playerID string) (*models.Player, error)
	UpdateScore(ctx context.Context, roomID uuid.UUID, playerID string, score int) error
	AppendGuess(ctx context.Context, guess models.Guess) error
	AppendChat(ctx context.Context, msg models.ChatMessage) error
}

// Config carries a controller's collaborators.
type Config struct {
	Engine   *room.Engine
	Store    Store
	Bus      realtime.Bus
	Clock    clockwork.Clock
	Notifier Notifier
}

type request struct {
	fn   func(ctx context.Context) error
	resp chan error
}

// Controller is one player's session in one room. All state below the
// channels is owned by the Run loop; the small snapshot behind mu is
// what other goroutines may read.
type Controller struct {
	cfg      Config
	roomID   uuid.UUID
	identity room.Identity
	limiter  *rate.Limiter

	events   chan realtime.Event
	internal chan func(ctx context.Context)
	requests chan request
	stopped  chan struct{}
	stop     func()

	unsub realtime.Unsubscribe

	// Loop-owned state.
	roomView      *models.Room
	auth          *room.Authority
	timeLeft      int
	revealPercent int
	scored        map[int]bool
	waitingNext   bool
	sched         *reveal.Scheduler
	schedCancel   context.CancelFunc
}

// Join enters a room and returns a controller ready to Run. Join
// failures (room full, game already started, room gone) are surfaced
// to the notifier and returned.
func Join(ctx context.Context, cfg Config, roomID uuid.UUID, identity room.Identity) (*Controller, error) {
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{}
	}

	_, auth, err := cfg.Engine.Join(ctx, roomID, identity)
	if err != nil {
		cfg.Notifier.Error(userMessage(err))
		return nil, err
	}

	c := &Controller{
		cfg:      cfg,
		roomID:   roomID,
		identity: identity,
		limiter:  rate.NewLimiter(rate.Every(500*time.Millisecond), 3),
		events:   make(chan realtime.Event, 256),
		internal: make(chan func(ctx context.Context), 16),
		requests: make(chan request),
		stopped:  make(chan struct{}),
		auth:     auth,
		scored:   make(map[int]bool),
	}
	var stopOnce sync.Once
	c.stop = func() {
		stopOnce.Do(func() { close(c.stopped) })
	}

	unsub, err := cfg.Bus.Subscribe(roomID, c.deliver)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to room: %w", err)
	}
	c.unsub = unsub

	snapshot, err := cfg.Store.GetRoom(ctx, roomID)
	if err != nil {
		unsub()
		return nil, err
	}
	c.roomView = snapshot
	if snapshot.Status == models.RoomStatusPlaying {
		// Rejoin mid-question; render a fresh timer and catch up from
		// the next reveal event.
		c.timeLeft = snapshot.Settings.QuestionTimeSec
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("player_id", identity.PlayerID).
		Bool("is_host", auth != nil).
		Msg("session joined")

	return c, nil
}

// Run drives the session until Leave, a kick, room deletion, or ctx
// cancellation. It owns every timer and the subscription; both are
// released deterministically on the way out.
func (c *Controller) Run(ctx context.Context) error {
	defer c.teardown()

	ticker := c.cfg.Clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopped:
			return nil
		case event := <-c.events:
			c.handleEvent(ctx, event)
		case fn := <-c.internal:
			fn(ctx)
		case req := <-c.requests:
			req.resp <- req.fn(ctx)
		case <-ticker.Chan():
			c.tick(ctx)
		}
	}
}

func (c *Controller) teardown() {
	c.stopScheduler()
	if c.unsub != nil {
		c.unsub()
	}
	c.stop()
	log.Debug().
		Str("room_id", c.roomID.String()).
		Str("player_id", c.identity.PlayerID).
		Msg("session torn down")
}

// deliver is the subscription callback; it hands events to the loop
// without blocking the bus.
func (c *Controller) deliver(event realtime.Event) {
	select {
	case c.events <- event:
	case <-c.stopped:
	default:
		log.Warn().
			Str("room_id", c.roomID.String()).
			Str("event_type", string(event.Type)).
			Msg("event buffer full, dropping event")
	}
}

// do runs fn on the loop goroutine and waits for its result.
func (c *Controller) do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := request{fn: fn, resp: make(chan error, 1)}
	select {
	case c.requests <- req:
	case <-c.stopped:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.resp:
		return err
	case <-c.stopped:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitGuess validates, records and evaluates a guess. A correct
// guess self-awards points exactly once per question, scored against
// the reveal percentage this controller observed when the guess was
// accepted.
func (c *Controller) SubmitGuess(ctx context.Context, text string) error {
	return c.do(ctx, func(ctx context.Context) error {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			c.cfg.Notifier.Error("enter a guess first")
			return ErrEmptyGuess
		}
		rv := c.roomView
		if rv == nil || rv.Status != models.RoomStatusPlaying || rv.CurrentQuestion == nil || len(rv.CurrentQuestion.Answers) == 0 {
			c.cfg.Notifier.Error("please wait for the question to load")
			return ErrQuestionNotLoaded
		}
		if !c.limiter.Allow() {
			c.cfg.Notifier.Error("slow down")
			return ErrTooManyGuesses
		}

		eval := Evaluate(trimmed, rv.CurrentQuestion.Answers)
		guess := models.Guess{
			ID:          uuid.New(),
			RoomID:      c.roomID,
			PlayerID:    c.identity.PlayerID,
			DisplayName: c.identity.DisplayName,
			Text:        trimmed,
			IsCorrect:   eval.IsCorrect,
			IsClose:     eval.IsClose,
			CreatedAt:   c.cfg.Clock.Now(),
		}
		if err := c.cfg.Store.AppendGuess(ctx, guess); err != nil {
			log.Error().Err(err).Str("room_id", c.roomID.String()).Msg("failed to append guess")
			c.cfg.Notifier.Error("could not submit your guess")
			return err
		}
		c.publish(ctx, realtime.EventTypeGuessSubmitted, realtime.GuessSubmittedPayload{Guess: guess})

		if eval.IsCorrect {
			c.awardPoints(ctx, rv.CurrentQuestionIndex)
		} else if eval.IsClose {
			c.cfg.Notifier.Success("so close!")
		}
		return nil
	})
}

// awardPoints increments this player's own score record. The scored
// map guards against double-awarding the same question.
func (c *Controller) awardPoints(ctx context.Context, questionIndex int) {
	if c.scored[questionIndex] {
		return
	}
	player, err := c.cfg.Store.GetPlayer(ctx, c.roomID, c.identity.PlayerID)
	if err != nil {
		log.Error().Err(err).Str("room_id", c.roomID.String()).Msg("failed to read own player record")
		return
	}
	points := scoring.Score(c.revealPercent)
	if err := c.cfg.Store.UpdateScore(ctx, c.roomID, c.identity.PlayerID, player.Score+points); err != nil {
		log.Error().Err(err).Str("room_id", c.roomID.String()).Msg("failed to update score")
		c.cfg.Notifier.Error("could not record your points")
		return
	}
	c.scored[questionIndex] = true
	c.cfg.Notifier.Success(fmt.Sprintf("correct! +%d points", points))
}

// SendChat appends to the room's chat feed.
func (c *Controller) SendChat(ctx context.Context, text string) error {
	return c.do(ctx, func(ctx context.Context) error {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		if c.roomView != nil && !c.roomView.Settings.AllowChat {
			c.cfg.Notifier.Error("chat is disabled in this room")
			return ErrChatDisabled
		}
		msg := models.ChatMessage{
			ID:          uuid.New(),
			RoomID:      c.roomID,
			PlayerID:    c.identity.PlayerID,
			DisplayName: c.identity.DisplayName,
			Text:        trimmed,
			CreatedAt:   c.cfg.Clock.Now(),
		}
		if err := c.cfg.Store.AppendChat(ctx, msg); err != nil {
			log.Error().Err(err).Str("room_id", c.roomID.String()).Msg("failed to append chat message")
			c.cfg.Notifier.Error("could not send your message")
			return err
		}
		c.publish(ctx, realtime.EventTypeChatPosted, realtime.ChatPostedPayload{Message: msg})
		return nil
	})
}

// StartGame begins the countdown. Host only.
func (c *Controller) StartGame(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		updated, err := c.cfg.Engine.Start(ctx, c.auth, c.roomID)
		if err != nil {
			c.cfg.Notifier.Error(userMessage(err))
			return err
		}
		c.applyRoomUpdate(ctx, *updated)
		return nil
	})
}

// ResetGame returns a finished room to the lobby. Host only.
func (c *Controller) ResetGame(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		updated, err := c.cfg.Engine.Reset(ctx, c.auth, c.roomID)
		if err != nil {
			c.cfg.Notifier.Error(userMessage(err))
			return err
		}
		c.scored = make(map[int]bool)
		c.revealPercent = 0
		c.timeLeft = 0
		c.applyRoomUpdate(ctx, *updated)
		return nil
	})
}

// UpdateSettings replaces the room settings. Host only, lobby only.
func (c *Controller) UpdateSettings(ctx context.Context, settings models.RoomSettings) error {
	return c.do(ctx, func(ctx context.Context) error {
		updated, err := c.cfg.Engine.UpdateSettings(ctx, c.auth, c.roomID, settings)
		if err != nil {
			c.cfg.Notifier.Error(userMessage(err))
			return err
		}
		c.applyRoomUpdate(ctx, *updated)
		return nil
	})
}

// KickPlayer removes a non-host player. Host only.
func (c *Controller) KickPlayer(ctx context.Context, targetID string) error {
	return c.do(ctx, func(ctx context.Context) error {
		if err := c.cfg.Engine.Kick(ctx, c.auth, c.roomID, targetID); err != nil {
			c.cfg.Notifier.Error(userMessage(err))
			return err
		}
		c.cfg.Notifier.Success("player removed")
		return nil
	})
}

// TransferHost hands host authority to another player while waiting.
func (c *Controller) TransferHost(ctx context.Context, targetID string) error {
	return c.do(ctx, func(ctx context.Context) error {
		if err := c.cfg.Engine.TransferHost(ctx, c.auth, c.roomID, targetID); err != nil {
			c.cfg.Notifier.Error(userMessage(err))
			return err
		}
		c.auth = nil
		return nil
	})
}

// Leave deletes this player's record and shuts the session down.
func (c *Controller) Leave(ctx context.Context) error {
	err := c.do(ctx, func(ctx context.Context) error {
		return c.cfg.Engine.Leave(ctx, c.roomID, c.identity.PlayerID)
	})
	c.stop()
	if err != nil && !errors.Is(err, store.ErrPlayerNotFound) {
		return err
	}
	return nil
}

// tick runs once per wall-clock second.
func (c *Controller) tick(ctx context.Context) {
	if c.roomView == nil {
		return
	}
	switch c.roomView.Status {
	case models.RoomStatusCountdown:
		if c.auth != nil {
			updated, err := c.cfg.Engine.CountdownTick(ctx, c.auth, c.roomID)
			if err != nil {
				log.Warn().Err(err).Str("room_id", c.roomID.String()).Msg("countdown tick failed")
				return
			}
			c.applyRoomUpdate(ctx, *updated)
		} else if c.roomView.Countdown > 0 {
			// Local render only; the host owns the shared field.
			c.roomView.Countdown--
		}
	case models.RoomStatusPlaying:
		if c.timeLeft > 0 {
			c.timeLeft--
		}
		if c.timeLeft == 0 && c.auth != nil && !c.waitingNext {
			c.advance(ctx)
		}
	}
}

// advance drives the host's question-advance path; reveals are held
// first so a late reveal tick cannot race the transition.
func (c *Controller) advance(ctx context.Context) {
	c.waitingNext = true
	if c.sched != nil {
		c.sched.Hold()
	}
	updated, err := c.cfg.Engine.Advance(ctx, c.auth, c.roomID)
	if err != nil {
		log.Warn().Err(err).Str("room_id", c.roomID.String()).Msg("question advance failed")
		c.waitingNext = false
		return
	}
	c.applyRoomUpdate(ctx, *updated)
}

func (c *Controller) handleEvent(ctx context.Context, event realtime.Event) {
	payload, err := realtime.ParsePayload(event)
	if err != nil {
		log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("ignoring malformed event")
		return
	}

	switch p := payload.(type) {
	case realtime.RoomUpdatedPayload:
		c.applyRoomUpdate(ctx, p.Room)

	case realtime.RoomDeletedPayload:
		c.cfg.Notifier.Error("the room was closed")
		c.stop()

	case realtime.PlayerKickedPayload:
		if p.PlayerID == c.identity.PlayerID {
			c.cfg.Notifier.Error("you were removed from the room")
			c.stop()
		}

	case realtime.PlayerLeftPayload:
		if p.NewHostID == c.identity.PlayerID && c.auth == nil {
			c.claimAuthority(ctx)
		}

	case realtime.HostChangedPayload:
		if p.HostID == c.identity.PlayerID && c.auth == nil {
			c.claimAuthority(ctx)
		} else if p.HostID != c.identity.PlayerID {
			c.auth = nil
		}

	case realtime.RevealProgressPayload:
		if c.roomView != nil && p.QuestionIndex == c.roomView.CurrentQuestionIndex {
			c.revealPercent = p.Percent
		}
	}
}

// claimAuthority verifies the shared document names this player host
// and, mid-game, takes over the timers the old host abandoned.
func (c *Controller) claimAuthority(ctx context.Context) {
	auth, err := c.cfg.Engine.ClaimAuthority(ctx, c.roomID, c.identity.PlayerID)
	if err != nil {
		log.Warn().Err(err).Str("room_id", c.roomID.String()).Msg("failed to claim host authority")
		return
	}
	c.auth = auth
	c.cfg.Notifier.Success("you are now the host")

	if c.roomView != nil && c.roomView.Status == models.RoomStatusPlaying && !c.waitingNext {
		remaining := c.timeLeft
		if remaining <= 0 {
			remaining = 1
		}
		c.startScheduler(ctx, time.Duration(remaining)*time.Second)
	}
}

// applyRoomUpdate replaces the local view and reacts to the
// transitions it reveals.
func (c *Controller) applyRoomUpdate(ctx context.Context, updated models.Room) {
	prev := c.roomView
	cp := updated
	c.roomView = &cp

	if updated.HostID != c.identity.PlayerID {
		c.auth = nil
	}

	switch updated.Status {
	case models.RoomStatusCountdown:
		if prev == nil || prev.Status == models.RoomStatusWaiting {
			// Fresh game: forget per-question scoring guards.
			c.scored = make(map[int]bool)
			c.revealPercent = 0
		}
		if prev != nil && prev.CurrentQuestionIndex != updated.CurrentQuestionIndex {
			// Next question staged: reveal progress resets.
			c.stopScheduler()
			c.revealPercent = 0
			c.waitingNext = false
		}

	case models.RoomStatusPlaying:
		if prev == nil || prev.Status != models.RoomStatusPlaying {
			c.timeLeft = updated.Settings.QuestionTimeSec
			c.waitingNext = false
			if c.auth != nil {
				c.startScheduler(ctx, room.QuestionDuration(updated.Settings))
			}
		}

	case models.RoomStatusFinished:
		c.stopScheduler()
		c.waitingNext = false
		c.timeLeft = 0

	case models.RoomStatusWaiting:
		if prev != nil && prev.Status != models.RoomStatusWaiting {
			c.scored = make(map[int]bool)
			c.revealPercent = 0
			c.timeLeft = 0
		}
	}
}

// startScheduler begins revealing the current question. Host only; the
// reveal order is seeded from the clock so each question gets a fresh
// random sequence.
func (c *Controller) startScheduler(ctx context.Context, duration time.Duration) {
	c.stopScheduler()

	questionIndex := c.roomView.CurrentQuestionIndex
	schedCtx, cancel := context.WithCancel(ctx)
	c.schedCancel = cancel

	sched := reveal.NewScheduler(c.cfg.Clock, c.cfg.Clock.Now().UnixNano(), duration,
		func(cells []int, percent int) {
			c.publish(schedCtx, realtime.EventTypeRevealProgress, realtime.RevealProgressPayload{
				QuestionIndex: questionIndex,
				Cells:         cells,
				Percent:       percent,
			})
		},
		func() {
			// Full reveal is the second question-advance trigger.
			select {
			case c.internal <- func(ctx context.Context) {
				if !c.waitingNext {
					c.advance(ctx)
				}
			}:
			case <-c.stopped:
			}
		},
	)
	c.sched = sched
	go sched.Run(schedCtx)
}

func (c *Controller) stopScheduler() {
	if c.schedCancel != nil {
		c.schedCancel()
		c.schedCancel = nil
	}
	c.sched = nil
}

func (c *Controller) publish(ctx context.Context, eventType realtime.EventType, payload any) {
	event, err := realtime.NewEvent(c.roomID, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", c.roomID.String()).Msg("failed to build event")
		return
	}
	if err := c.cfg.Bus.Publish(ctx, event); err != nil {
		log.Error().Err(err).
			Str("room_id", c.roomID.String()).
			Str("event_type", string(eventType)).
			Msg("failed to publish event")
	}
}

// Room returns a copy of the last observed room document.
func (c *Controller) Room(ctx context.Context) (*models.Room, error) {
	var snapshot *models.Room
	err := c.do(ctx, func(ctx context.Context) error {
		if c.roomView == nil {
			return store.ErrRoomNotFound
		}
		cp := *c.roomView
		snapshot = &cp
		return nil
	})
	return snapshot, err
}

// RevealPercent returns the reveal progress last observed for the
// current question.
func (c *Controller) RevealPercent(ctx context.Context) int {
	percent := 0
	_ = c.do(ctx, func(ctx context.Context) error {
		percent = c.revealPercent
		return nil
	})
	return percent
}

// IsHost reports whether this controller currently holds host authority.
func (c *Controller) IsHost(ctx context.Context) bool {
	isHost := false
	_ = c.do(ctx, func(ctx context.Context) error {
		isHost = c.auth != nil
		return nil
	})
	return isHost
}

// PlayerID returns the session's stable player identity.
func (c *Controller) PlayerID() string {
	return c.identity.PlayerID
}

// Done is closed once the session has shut down (leave, kick, or room
// deletion). Transports use it to close the client connection.
func (c *Controller) Done() <-chan struct{} {
	return c.stopped
}

// userMessage maps domain errors onto the transient notices users see.
func userMessage(err error) string {
	switch {
	case errors.Is(err, room.ErrGameInProgress):
		return "game already started"
	case errors.Is(err, room.ErrRoomFull):
		return "room is full"
	case errors.Is(err, room.ErrNotEnoughPlayers):
		return "waiting for more players"
	case errors.Is(err, room.ErrNotHost):
		return "only the host can do that"
	case errors.Is(err, room.ErrTransferWhilePlaying):
		return "host can only be transferred in the lobby"
	case errors.Is(err, room.ErrKickHost):
		return "the host cannot be kicked"
	case errors.Is(err, room.ErrInvalidSettings):
		return "those settings are not valid"
	case errors.Is(err, room.ErrWrongStatus):
		return "that is not possible right now"
	case errors.Is(err, store.ErrRoomNotFound):
		return "room not found"
	default:
		return "something went wrong, please try again"
	}
}
