// Package session orchestrates one conversation with the hosted chat
// backend: resuming or creating the session, hydrating the transcript,
// binding the realtime channel and merging both message streams into a
// single ordered log.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parleychat/parley-go/internal/api"
	"github.com/parleychat/parley-go/internal/model/chat"
)

// State is the controller's lifecycle position.
type State string

const (
	StateUninitialized  State = "uninitialized"
	StateLoading        State = "loading"
	StateActive         State = "active"
	StateProfilePending State = "profile_pending"
	StateClosed         State = "closed"
	StateError          State = "error"
)

// Event is delivered to subscribers on every state change and on every
// accepted log insertion. Message is nil for pure state changes.
type Event struct {
	State   State
	Session chat.Session
	Message *chat.Message
}

const (
	escalationRequestText = "I would like to talk to a human agent."
	escalationAckText     = "An agent is on the way. Hang tight!"
)

// Options tunes controller behavior.
type Options struct {
	// UserName is attached to outbound events as the author display name.
	UserName string
	// EscalationDelay is the pause before the synthetic agent acknowledgment
	// is appended after an escalation request.
	EscalationDelay time.Duration
	Logger          *zap.Logger
}

// Controller is the single owner of the session lifecycle. One controller is
// constructed per active conversation; there are no shared singletons.
type Controller struct {
	store    Store
	api      API
	channel  Realtime
	notifier Notifier
	logger   *zap.Logger

	userName        string
	escalationDelay time.Duration

	mu          sync.Mutex
	state       State
	session     chat.Session
	errMsg      string
	log         messageLog
	flowGen     uint64
	activeFlow  uint64
	subscribers []func(Event)
}

// NewController wires the collaborators together. notifier may be nil, in
// which case side effects are discarded.
func NewController(store Store, backend API, channel Realtime, notifier Notifier, opts Options) *Controller {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := opts.UserName
	if name == "" {
		name = "visitor"
	}
	delay := opts.EscalationDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	return &Controller{
		store:           store,
		api:             backend,
		channel:         channel,
		notifier:        notifier,
		logger:          logger,
		userName:        name,
		escalationDelay: delay,
		state:           StateUninitialized,
	}
}

// Subscribe registers fn for state and log change events. Events are
// delivered synchronously in the order they occur.
func (c *Controller) Subscribe(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a snapshot of the current session.
func (c *Controller) Session() chat.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Messages returns a snapshot of the conversation log.
func (c *Controller) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.snapshot()
}

// ErrorMessage returns the display message for the Error state, or "".
func (c *Controller) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Start resumes the stored session or creates a fresh one, hydrates the log
// and, when the session allows it, binds the realtime channel. Only one flow
// may be in flight at a time.
func (c *Controller) Start(ctx context.Context) error {
	gen, err := c.beginFlow()
	if err != nil {
		return err
	}
	return c.runFlow(ctx, gen)
}

// Retry re-enters Loading after a failed flow. Error is not terminal.
func (c *Controller) Retry(ctx context.Context) error {
	return c.Start(ctx)
}

// StartNewConversation abandons the current session entirely: the realtime
// binding is dropped, the stored id cleared, the log reset, and a fresh
// session created. Any in-flight hydrate for the old session is cancelled at
// apply time.
func (c *Controller) StartNewConversation(ctx context.Context) error {
	c.mu.Lock()
	c.flowGen++
	gen := c.flowGen
	c.activeFlow = gen
	c.session = chat.Session{}
	c.errMsg = ""
	c.log.reset()
	c.state = StateLoading
	c.mu.Unlock()

	c.channel.Disconnect()
	c.publish(Event{State: StateLoading})

	current, err := c.clearStore(gen)
	if err != nil {
		failErr := c.fail(gen, err)
		c.endFlow(gen)
		return failErr
	}
	if !current {
		c.endFlow(gen)
		return nil
	}
	return c.runFlow(ctx, gen)
}

// beginFlow claims the single flow slot and moves the controller to Loading.
func (c *Controller) beginFlow() (uint64, error) {
	c.mu.Lock()
	if c.activeFlow != 0 {
		c.mu.Unlock()
		return 0, ErrFlowInFlight
	}
	c.flowGen++
	gen := c.flowGen
	c.activeFlow = gen
	c.errMsg = ""
	c.state = StateLoading
	snap := c.session
	c.mu.Unlock()

	c.publish(Event{State: StateLoading, Session: snap})
	return gen, nil
}

func (c *Controller) endFlow(gen uint64) {
	c.mu.Lock()
	if c.activeFlow == gen {
		c.activeFlow = 0
	}
	c.mu.Unlock()
}

// saveSession persists the id unless the flow was superseded. The generation
// check and the write happen under one lock so an abandoned flow can never
// overwrite a newer flow's stored id.
func (c *Controller) saveSession(gen uint64, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.flowGen {
		return false, nil
	}
	return true, c.store.Save(id)
}

// clearStore wipes the stored id under the same generation discipline as
// saveSession.
func (c *Controller) clearStore(gen uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.flowGen {
		return false, nil
	}
	return true, c.store.Clear()
}

// runFlow is the hydrate path: resume the stored session if the backend
// still knows it, otherwise create a new one and hydrate that.
func (c *Controller) runFlow(ctx context.Context, gen uint64) error {
	defer c.endFlow(gen)

	id, ok, err := c.store.Load()
	if err != nil {
		// A broken store degrades to first-run behavior.
		c.logger.Warn("session store read failed", zap.Error(err))
		ok = false
	}

	if ok {
		state, err := c.api.FetchSession(ctx, id)
		switch {
		case err == nil:
			return c.applyHydrate(ctx, gen, id, state)
		case errors.Is(err, api.ErrNotFound):
			// Stale identifier. Fall through to session creation; the
			// caller never sees this error.
			c.logger.Info("stored session unknown to backend, creating a new one",
				zap.String("session", id))
		default:
			return c.fail(gen, err)
		}
	}

	created, err := c.api.CreateSession(ctx, nil)
	if err != nil {
		return c.fail(gen, err)
	}
	current, err := c.saveSession(gen, created.SessionID)
	if err != nil {
		return c.fail(gen, err)
	}
	if !current {
		return nil
	}

	state, err := c.api.FetchSession(ctx, created.SessionID)
	if err != nil {
		return c.fail(gen, err)
	}
	return c.applyHydrate(ctx, gen, created.SessionID, state)
}

// applyHydrate installs a fetch result, unless a newer flow has superseded
// this one in the meantime.
func (c *Controller) applyHydrate(ctx context.Context, gen uint64, id string, state api.SessionState) error {
	c.mu.Lock()
	if gen != c.flowGen {
		c.mu.Unlock()
		return nil
	}

	c.session = chat.Session{
		ID:         id,
		Status:     state.Status,
		ThemeColor: state.ThemeColor,
		Profile:    state.Profile,
	}
	c.log.hydrate(state.History)

	var next State
	connect := false
	switch state.Status {
	case chat.StatusClosed:
		next = StateClosed
	case chat.StatusActive:
		if c.session.ProfileComplete() {
			next = StateActive
			connect = true
		} else {
			next = StateProfilePending
		}
	default:
		next = StateError
		c.errMsg = fmt.Sprintf("session is in an unexpected state: %s", state.Status)
	}
	c.state = next
	snap := c.session
	c.mu.Unlock()

	if connect {
		c.bindChannel(ctx, id)
	}
	c.publish(Event{State: next, Session: snap})
	return nil
}

// bindChannel registers the inbound handlers and connects to the session
// room. Channel trouble never changes the session status; the transport
// keeps retrying on its own.
func (c *Controller) bindChannel(ctx context.Context, id string) {
	c.channel.OnMessage(c.handleRealtime)
	c.channel.OnFileAnnounced(c.handleRealtime)
	if err := c.channel.Connect(ctx, id); err != nil {
		c.logger.Warn("realtime connect failed", zap.String("session", id), zap.Error(err))
	}
}

// fail moves the flow's target to Error, unless superseded.
func (c *Controller) fail(gen uint64, err error) error {
	c.mu.Lock()
	if gen != c.flowGen {
		c.mu.Unlock()
		return nil
	}
	c.state = StateError
	c.errMsg = displayMessage(err)
	snap := c.session
	c.mu.Unlock()

	c.logger.Error("session flow failed", zap.Error(err))
	c.publish(Event{State: StateError, Session: snap})
	return err
}

// SetProfile attaches the visitor identity and, when the session was waiting
// on it, promotes the controller to Active and binds the realtime channel.
// Safe to repeat with the same arguments.
func (c *Controller) SetProfile(ctx context.Context, email, name string) error {
	c.mu.Lock()
	id := c.session.ID
	st := c.state
	c.mu.Unlock()

	if id == "" || (st != StateProfilePending && st != StateActive) {
		return ErrNoSession
	}
	if err := c.api.SetProfile(ctx, id, email, name); err != nil {
		return err
	}

	c.mu.Lock()
	if c.session.ID != id {
		// The session was switched while the request was in flight.
		c.mu.Unlock()
		return nil
	}
	c.session.Profile = &chat.Profile{Email: email, FirstName: name}
	promoted := false
	if c.state == StateProfilePending {
		c.state = StateActive
		promoted = true
	}
	next := c.state
	snap := c.session
	c.mu.Unlock()

	if promoted {
		c.bindChannel(ctx, id)
		c.publish(Event{State: next, Session: snap})
	}
	return nil
}

// SendText appends the message optimistically and pushes it through the
// realtime channel. A send failure is returned to the caller so the specific
// message can be marked failed; the session state is untouched.
func (c *Controller) SendText(text string) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNoSession
	}
	msg := chat.Message{
		ID:        uuid.NewString(),
		Sender:    chat.SenderUser,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	c.log.append(msg)
	next := c.state
	snap := c.session
	c.mu.Unlock()

	c.publish(Event{State: next, Session: snap, Message: &msg})

	if err := c.channel.Send(text); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendAttachment uploads the file and only then announces it on the realtime
// channel; a failed upload is never announced.
func (c *Controller) SendAttachment(ctx context.Context, payload []byte, filename string) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNoSession
	}
	id := c.session.ID
	c.mu.Unlock()

	att, err := c.api.UploadAttachment(ctx, id, payload, filename, api.MessageMeta{AuthorName: c.userName})
	if err != nil {
		return fmt.Errorf("upload attachment: %w", err)
	}

	c.mu.Lock()
	if c.session.ID != id {
		c.mu.Unlock()
		return nil
	}
	msg := chat.Message{
		ID:         uuid.NewString(),
		Sender:     chat.SenderUser,
		Attachment: &chat.Attachment{URL: att.URL, Filename: att.Filename},
		Timestamp:  time.Now().UTC(),
	}
	c.log.append(msg)
	next := c.state
	snap := c.session
	c.mu.Unlock()

	c.publish(Event{State: next, Session: snap, Message: &msg})

	if err := c.channel.AnnounceFileSent(att.URL, att.Filename); err != nil {
		return fmt.Errorf("announce attachment: %w", err)
	}
	return nil
}

// EscalateToAgent flags the session for human takeover and posts the
// visitor's request. After a short delay a synthetic agent acknowledgment is
// appended; the session status itself never changes. A session switch during
// the delay cancels the acknowledgment.
func (c *Controller) EscalateToAgent(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNoSession
	}
	id := c.session.ID
	gen := c.flowGen
	c.mu.Unlock()

	if err := c.api.RequestAgent(ctx, id); err != nil {
		return fmt.Errorf("request agent: %w", err)
	}
	if err := c.SendText(escalationRequestText); err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.escalationDelay):
		}

		c.mu.Lock()
		if c.flowGen != gen || c.state != StateActive {
			c.mu.Unlock()
			return
		}
		msg := chat.Message{
			ID:        uuid.NewString(),
			Sender:    chat.SenderAgent,
			Text:      escalationAckText,
			Timestamp: time.Now().UTC(),
		}
		c.log.append(msg)
		next := c.state
		snap := c.session
		c.mu.Unlock()

		c.publish(Event{State: next, Session: snap, Message: &msg})
		c.sideEffects(msg)
	}()
	return nil
}

// Close tears down the realtime binding. The stored session id is kept so
// the conversation resumes on the next start.
func (c *Controller) Close() {
	c.mu.Lock()
	c.flowGen++
	c.mu.Unlock()
	c.channel.Disconnect()
}

// handleRealtime merges one accepted inbound envelope into the log. The room
// check against the live session id guards the window where a delivery
// straddles a session swap.
func (c *Controller) handleRealtime(env chat.Envelope) {
	msg := env.Message()

	c.mu.Lock()
	if env.Room != c.session.ID {
		c.mu.Unlock()
		return
	}
	if !c.log.appendRealtime(msg) {
		// Duplicate echo: no log change, no side effects.
		c.mu.Unlock()
		return
	}
	next := c.state
	snap := c.session
	c.mu.Unlock()

	c.publish(Event{State: next, Session: snap, Message: &msg})
	c.sideEffects(msg)
}

// sideEffects fires the notification port exactly once for a bot or agent
// insertion. User-authored entries fire nothing.
func (c *Controller) sideEffects(msg chat.Message) {
	if msg.Sender == chat.SenderUser {
		return
	}
	body := msg.Text
	if body == "" && msg.Attachment != nil {
		body = msg.Attachment.Filename
	}
	c.notifier.PlayAlertSound()
	c.notifier.ShowLocalNotification("New message", body)
}

// publish delivers an event to all subscribers outside the lock.
func (c *Controller) publish(ev Event) {
	c.mu.Lock()
	subs := make([]func(Event), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// displayMessage turns a flow error into something fit for the widget UI.
func displayMessage(err error) string {
	if errors.Is(err, api.ErrAuth) {
		return "Chat is unavailable: the public key was rejected."
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return "Can't reach the chat service. Check your connection and retry."
	}
	return err.Error()
}
