package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vovakirdan/datingchat-server/internal/groups"
	"github.com/vovakirdan/datingchat-server/internal/messages"
	"github.com/vovakirdan/datingchat-server/internal/notify"
	"github.com/vovakirdan/datingchat-server/internal/observability"
	"github.com/vovakirdan/datingchat-server/internal/presence"
	"github.com/vovakirdan/datingchat-server/internal/store"
)

const (
	DefaultMaxContentLength = 2000
	previewLength           = 80
)

var validate = validator.New()

// Deps are the collaborators an Orchestrator coordinates.
type Deps struct {
	Users       store.UserStore
	Presence    *presence.Service
	Groups      *groups.Manager
	Messages    *messages.Log
	Broadcaster Broadcaster
	Publisher   notify.Publisher
}

// Orchestrator is the entry point for connection lifecycle and send actions.
type Orchestrator struct {
	users       store.UserStore
	presence    *presence.Service
	groups      *groups.Manager
	messages    *messages.Log
	broadcaster Broadcaster
	publisher   notify.Publisher

	seq           *sequencer
	maxContentLen int
	now           func() time.Time
	tracer        trace.Tracer
	log           *zerolog.Logger
}

// NewOrchestrator wires deps together. maxContentLength <= 0 uses the default.
func NewOrchestrator(deps Deps, maxContentLength int, logger *zerolog.Logger) *Orchestrator {
	if maxContentLength <= 0 {
		maxContentLength = DefaultMaxContentLength
	}
	l := logger.With().Str("component", "orchestrator").Logger()
	return &Orchestrator{
		users:         deps.Users,
		presence:      deps.Presence,
		groups:        deps.Groups,
		messages:      deps.Messages,
		broadcaster:   deps.Broadcaster,
		publisher:     deps.Publisher,
		seq:           newSequencer(),
		maxContentLen: maxContentLength,
		now:           time.Now,
		tracer:        otel.Tracer("datingchat/core"),
		log:           &l,
	}
}

// normalizeUsername lowercases and trims so identities compare case-insensitively.
func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// OnConnect runs the chat handshake for conn against peer: join the pair
// group, record presence, load the thread (catching up read state), announce
// the new group state and hand the thread to the caller only. The caller must
// run OnDisconnect even when this fails.
func (o *Orchestrator) OnConnect(ctx context.Context, conn groups.Connection, peer string) (*Handshake, error) {
	ctx, span := o.tracer.Start(ctx, "chat.connect")
	defer span.End()

	conn.Username = normalizeUsername(conn.Username)
	peer = normalizeUsername(peer)
	if conn.ID == "" || conn.Username == "" {
		return nil, o.fail(span, coreError(ErrCodeProtocol, "missing identity", nil))
	}
	if peer == "" {
		return nil, o.fail(span, coreError(ErrCodeProtocol, "missing peer", nil))
	}
	if peer == conn.Username {
		return nil, o.fail(span, coreError(ErrCodeValidation, "cannot open a conversation with yourself", nil))
	}

	name := groups.GroupName(conn.Username, peer)
	span.SetAttributes(attribute.String("chat.group", name), attribute.String("chat.user", conn.Username))

	group, err := o.groups.Join(ctx, name, conn)
	if err != nil {
		// Memory already holds the member; the next disconnect reconciles the row.
		o.log.Warn().Err(err).Str("group", name).Str("conn_id", conn.ID).Msg("join persisted partially")
	}

	if o.presence.UserConnected(conn.Username, conn.ID) {
		o.announce(EventUserOnline, conn.Username)
	}

	thread, err := o.messages.GetThread(ctx, conn.Username, peer)
	if err != nil {
		return nil, o.fail(span, coreError(ErrCodeDeliveryFailed, "could not load conversation", err))
	}

	o.broadcaster.SendToGroup(name, EventGroupUpdated, group)
	o.broadcaster.SendToConnections([]string{conn.ID}, EventMessageThread, thread)

	o.log.Info().Str("user", conn.Username).Str("peer", peer).Str("conn_id", conn.ID).Int("thread", len(thread)).Msg("chat connected")
	return &Handshake{Group: group, Thread: thread}, nil
}

// OnPresenceConnect records a presence-only connection.
func (o *Orchestrator) OnPresenceConnect(_ context.Context, conn groups.Connection) error {
	conn.Username = normalizeUsername(conn.Username)
	if conn.ID == "" || conn.Username == "" {
		return coreError(ErrCodeProtocol, "missing identity", nil)
	}

	if o.presence.UserConnected(conn.Username, conn.ID) {
		o.announce(EventUserOnline, conn.Username)
		return nil
	}
	o.broadcaster.SendToConnections([]string{conn.ID}, EventOnlineUsers, o.presence.GetOnlineUsers())
	return nil
}

// OnDisconnect cleans up connectionID. Unknown connections are a no-op, so it
// is safe to call after a failed or partial handshake.
func (o *Orchestrator) OnDisconnect(ctx context.Context, connectionID string) {
	ctx, span := o.tracer.Start(ctx, "chat.disconnect")
	defer span.End()

	group, err := o.groups.Leave(ctx, connectionID)
	switch {
	case errors.Is(err, groups.ErrNotFound):
		o.log.Debug().Str("conn_id", connectionID).Msg("connection was not in a group")
	case err != nil:
		o.log.Warn().Err(err).Str("conn_id", connectionID).Msg("leave persisted partially")
		fallthrough
	default:
		o.broadcaster.SendToGroup(group.Name, EventGroupUpdated, group)
	}

	if username, offline, ok := o.presence.ConnectionClosed(connectionID); ok && offline {
		o.announce(EventUserOffline, username)
	}
}

// announce tells everyone else about a presence change, then refreshes the
// online list for every connection.
func (o *Orchestrator) announce(kind EventKind, username string) {
	o.broadcaster.SendToConnections(o.presence.ConnectionsExcept(username), kind, username)
	o.broadcaster.SendToConnections(o.presence.Connections(), EventOnlineUsers, o.presence.GetOnlineUsers())
}

type sendRequest struct {
	Sender    string `validate:"required"`
	Recipient string `validate:"required"`
	Content   string `validate:"required"`
}

// SendMessage validates, persists and delivers a message. Delivery is live
// when the recipient is in the shared group, a notification when they are
// online elsewhere, and a broker event when they are offline.
func (o *Orchestrator) SendMessage(ctx context.Context, sender, recipient, content string) (*store.Message, error) {
	ctx, span := o.tracer.Start(ctx, "chat.send")
	defer span.End()

	req := sendRequest{
		Sender:    normalizeUsername(sender),
		Recipient: normalizeUsername(recipient),
		Content:   strings.TrimSpace(content),
	}
	if err := validate.Struct(req); err != nil {
		observability.IncMessage(observability.OutcomeRejected)
		return nil, o.fail(span, coreError(ErrCodeValidation, "sender, recipient and content are required", err))
	}
	if err := validate.Var(req.Content, fmt.Sprintf("max=%d", o.maxContentLen)); err != nil {
		observability.IncMessage(observability.OutcomeRejected)
		return nil, o.fail(span, coreError(ErrCodeValidation, fmt.Sprintf("content exceeds %d characters", o.maxContentLen), err))
	}
	if req.Sender == req.Recipient {
		observability.IncMessage(observability.OutcomeRejected)
		return nil, o.fail(span, coreError(ErrCodeValidation, "you cannot send messages to yourself", nil))
	}

	from, err := o.resolveUser(ctx, req.Sender)
	if err != nil {
		observability.IncMessage(observability.OutcomeRejected)
		return nil, o.fail(span, err)
	}
	if _, err := o.resolveUser(ctx, req.Recipient); err != nil {
		observability.IncMessage(observability.OutcomeRejected)
		return nil, o.fail(span, err)
	}

	name := groups.GroupName(req.Sender, req.Recipient)
	span.SetAttributes(attribute.String("chat.group", name))

	saved, live, err := o.appendAndBroadcast(ctx, name, &store.Message{
		SenderUsername:    req.Sender,
		RecipientUsername: req.Recipient,
		Content:           req.Content,
	})
	if err != nil {
		observability.IncMessage(observability.OutcomeFailed)
		o.log.Error().Err(err).Str("group", name).Msg("message not persisted")
		return nil, o.fail(span, coreError(ErrCodeDeliveryFailed, "message could not be delivered", err))
	}

	switch {
	case live:
		observability.IncMessage(observability.OutcomeLive)
	case o.notifyOnline(saved, from):
		observability.IncMessage(observability.OutcomeNotified)
	default:
		observability.IncMessage(observability.OutcomeOffline)
		o.publishOffline(ctx, saved)
	}

	span.SetAttributes(attribute.Bool("chat.live", live), attribute.Int64("chat.message_id", saved.ID))
	return saved, nil
}

// appendAndBroadcast holds the group's sequencer so broadcasts follow commit order.
func (o *Orchestrator) appendAndBroadcast(ctx context.Context, name string, msg *store.Message) (*store.Message, bool, error) {
	unlock := o.seq.lock(name)
	defer unlock()

	now := o.now().UTC()
	msg.SentAt = now
	live := o.groups.IsPresent(name, msg.RecipientUsername)
	if live {
		msg.ReadAt = &now
	}

	saved, err := o.messages.Append(ctx, msg)
	if err != nil {
		return nil, false, err
	}
	o.broadcaster.SendToGroup(name, EventNewMessage, saved)
	return saved, live, nil
}

// notifyOnline alerts the recipient's other connections. Returns false when
// the recipient has none.
func (o *Orchestrator) notifyOnline(msg *store.Message, from *store.User) bool {
	conns := o.presence.GetConnectionsForUser(msg.RecipientUsername)
	if len(conns) == 0 {
		return false
	}
	o.broadcaster.SendToConnections(conns, EventNewMessageNotification, Notification{
		MessageID: msg.ID,
		Sender:    msg.SenderUsername,
		KnownAs:   from.KnownAs,
		Preview:   preview(msg.Content),
		SentAt:    msg.SentAt,
	})
	return true
}

func (o *Orchestrator) publishOffline(ctx context.Context, msg *store.Message) {
	if o.publisher == nil {
		return
	}
	err := o.publisher.Publish(ctx, notify.RoutingKeyOffline, notify.OfflineMessage{
		MessageID: msg.ID,
		Sender:    msg.SenderUsername,
		Recipient: msg.RecipientUsername,
		Preview:   preview(msg.Content),
		SentAt:    msg.SentAt,
	})
	if err != nil {
		o.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("offline notification not published")
	}
}

func (o *Orchestrator) resolveUser(ctx context.Context, username string) (*store.User, error) {
	user, err := o.users.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, coreError(ErrCodeValidation, fmt.Sprintf("user %q does not exist", username), err)
	case err != nil:
		return nil, coreError(ErrCodeDeliveryFailed, "could not resolve user", err)
	}
	return user, nil
}

// GetPage returns one page of username's mailbox.
func (o *Orchestrator) GetPage(ctx context.Context, p messages.Params) (*messages.Page, error) {
	p.Username = normalizeUsername(p.Username)
	page, err := o.messages.GetPage(ctx, p)
	if err != nil {
		return nil, mapLogError(err)
	}
	return page, nil
}

// GetThread returns the conversation as requester sees it, marking their
// unread messages read.
func (o *Orchestrator) GetThread(ctx context.Context, requester, other string) ([]*store.Message, error) {
	requester, other = normalizeUsername(requester), normalizeUsername(other)
	if requester == "" || other == "" {
		return nil, coreError(ErrCodeValidation, "both usernames are required", nil)
	}
	thread, err := o.messages.GetThread(ctx, requester, other)
	if err != nil {
		return nil, mapLogError(err)
	}
	return thread, nil
}

// DeleteMessage deletes id from username's side; the row is purged once both
// sides have deleted it.
func (o *Orchestrator) DeleteMessage(ctx context.Context, id int64, username string) error {
	purged, err := o.messages.DeleteForUser(ctx, id, normalizeUsername(username))
	if err != nil {
		return mapLogError(err)
	}
	o.log.Debug().Int64("message_id", id).Str("user", username).Bool("purged", purged).Msg("message deleted")
	return nil
}

// GetOnlineUsers returns online usernames, sorted.
func (o *Orchestrator) GetOnlineUsers() []string {
	return o.presence.GetOnlineUsers()
}

func mapLogError(err error) error {
	switch {
	case errors.Is(err, messages.ErrNotFound):
		return coreError(ErrCodeNotFound, "message not found", err)
	case errors.Is(err, messages.ErrForbidden):
		return coreError(ErrCodeForbidden, "you cannot delete this message", err)
	case errors.Is(err, messages.ErrBadContainer):
		return coreError(ErrCodeValidation, "container must be inbox, outbox or unread", err)
	default:
		return coreError(ErrCodeDeliveryFailed, "message store unavailable", err)
	}
}

func (o *Orchestrator) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, CodeOf(err))
	return err
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}
