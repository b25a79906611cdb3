package messages

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/datingchat-server/internal/store"
)

var (
	ErrNotFound     = errors.New("message not found")
	ErrPersistence  = errors.New("message persistence failed")
	ErrForbidden    = errors.New("not a party to this message")
	ErrSelfMessage  = errors.New("sender and recipient are the same user")
	ErrBadContainer = errors.New("unknown message container")
)

// Party identifies which side of a message acts on it.
type Party = store.Party

const (
	PartySender    = store.PartySender
	PartyRecipient = store.PartyRecipient
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// Options tunes paging.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Params selects one page of a user's mailbox. PageNumber is 1-indexed.
type Params struct {
	Container  store.Container
	Username   string
	PageNumber int
	PageSize   int
}

// Page is a slice of a mailbox with pagination metadata.
type Page struct {
	Items       []*store.Message
	TotalCount  int
	PageSize    int
	CurrentPage int
	TotalPages  int
}

// Log is the durable message history.
type Log struct {
	store store.MessageStore
	opts  Options
	now   func() time.Time
	log   *zerolog.Logger
}

// New builds a Log over st. Zero options fall back to package defaults.
func New(st store.MessageStore, opts Options, logger *zerolog.Logger) *Log {
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = MaxPageSize
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	opts.DefaultPageSize = min(opts.DefaultPageSize, opts.MaxPageSize)

	l := logger.With().Str("component", "messages").Logger()
	return &Log{store: st, opts: opts, now: time.Now, log: &l}
}

// Append persists msg and returns it with its assigned id.
// Nothing may be delivered when this fails.
func (l *Log) Append(ctx context.Context, msg *store.Message) (*store.Message, error) {
	if msg.SenderUsername == msg.RecipientUsername {
		return nil, ErrSelfMessage
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = l.now()
	}
	if err := l.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return msg, nil
}

// GetThread returns the conversation between requester and other as the
// requester sees it, oldest first. Messages addressed to requester that were
// still unread are marked read and that is persisted before returning.
func (l *Log) GetThread(ctx context.Context, requester, other string) ([]*store.Message, error) {
	thread, err := l.store.ListThread(ctx, requester, other)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	unread := lo.Filter(thread, func(m *store.Message, _ int) bool {
		return m.RecipientUsername == requester && m.ReadAt == nil
	})
	if len(unread) == 0 {
		return thread, nil
	}

	readAt := l.now().UTC()
	ids := lo.Map(unread, func(m *store.Message, _ int) int64 { return m.ID })
	if err := l.store.MarkRead(ctx, ids, readAt); err != nil {
		return nil, fmt.Errorf("%w: mark read: %w", ErrPersistence, err)
	}
	for _, m := range unread {
		m.ReadAt = &readAt
	}

	l.log.Debug().Str("user", requester).Str("peer", other).Int("marked_read", len(ids)).Msg("thread caught up")
	return thread, nil
}

// GetPage returns one page of a mailbox, newest first. A page past the end is
// empty but still carries the totals. An empty container means unread.
func (l *Log) GetPage(ctx context.Context, p Params) (*Page, error) {
	if p.Container == "" {
		p.Container = store.ContainerUnread
	}
	switch p.Container {
	case store.ContainerInbox, store.ContainerOutbox, store.ContainerUnread:
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadContainer, p.Container)
	}

	pageNumber := max(p.PageNumber, 1)
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = l.opts.DefaultPageSize
	}
	pageSize = min(pageSize, l.opts.MaxPageSize)

	offset, limit := 0, 0
	// A page whose offset does not fit in an int is past the end; only the
	// totals are fetched.
	if pageNumber-1 <= math.MaxInt/pageSize {
		offset, limit = (pageNumber-1)*pageSize, pageSize
	}

	items, total, err := l.store.ListMessages(ctx, store.MessageFilter{
		Container: p.Container,
		Username:  p.Username,
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if items == nil {
		items = []*store.Message{}
	}

	return &Page{
		Items:       items,
		TotalCount:  total,
		PageSize:    pageSize,
		CurrentPage: pageNumber,
		TotalPages:  (total + pageSize - 1) / pageSize,
	}, nil
}

// Get loads one message.
func (l *Log) Get(ctx context.Context, id int64) (*store.Message, error) {
	msg, err := l.store.GetMessage(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return msg, nil
}

// MarkDeletedAndMaybePurge sets by's deleted flag. Once both sides have
// deleted, the row is removed and purged is true. The decision is made by the
// store against the current row, so msg may be stale.
func (l *Log) MarkDeletedAndMaybePurge(ctx context.Context, msg *store.Message, by Party) (bool, error) {
	purged, err := l.store.MarkDeleted(ctx, msg.ID, by)
	if err != nil {
		return false, storeErr(err)
	}

	switch by {
	case PartySender:
		msg.SenderDeleted = true
	case PartyRecipient:
		msg.RecipientDeleted = true
	}
	if purged {
		l.log.Debug().Int64("message_id", msg.ID).Msg("message purged")
	}
	return purged, nil
}

// DeleteForUser deletes message id from username's side.
func (l *Log) DeleteForUser(ctx context.Context, id int64, username string) (bool, error) {
	msg, err := l.Get(ctx, id)
	if err != nil {
		return false, err
	}

	var by Party
	switch username {
	case msg.SenderUsername:
		by = PartySender
	case msg.RecipientUsername:
		by = PartyRecipient
	default:
		return false, ErrForbidden
	}
	// Deleting a side twice looks like deleting a message that is gone.
	if !msg.VisibleTo(username) {
		return false, ErrNotFound
	}
	return l.MarkDeletedAndMaybePurge(ctx, msg, by)
}

func storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
