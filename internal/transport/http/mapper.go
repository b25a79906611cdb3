package http

import (
	"errors"
	"net/http"

	"github.com/samber/lo"

	"github.com/vovakirdan/datingchat-server/internal/core"
	"github.com/vovakirdan/datingchat-server/internal/groups"
	"github.com/vovakirdan/datingchat-server/internal/proto"
	"github.com/vovakirdan/datingchat-server/internal/store"
)

func messageToProto(m *store.Message) proto.Message {
	return proto.Message{
		ID:                m.ID,
		SenderUsername:    m.SenderUsername,
		RecipientUsername: m.RecipientUsername,
		Content:           m.Content,
		SentAt:            m.SentAt,
		ReadAt:            m.ReadAt,
	}
}

func messagesToProto(msgs []*store.Message) []proto.Message {
	out := lo.Map(msgs, func(m *store.Message, _ int) proto.Message {
		return messageToProto(m)
	})
	if out == nil {
		out = []proto.Message{}
	}
	return out
}

func groupToProto(g groups.Group) proto.EventGroupUpdated {
	conns := lo.Map(g.Connections, func(c groups.Connection, _ int) proto.Connection {
		return proto.Connection{ConnectionID: c.ID, Username: c.Username}
	})
	if conns == nil {
		conns = []proto.Connection{}
	}
	return proto.EventGroupUpdated{Name: g.Name, Connections: conns}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}

	switch payload := event.Payload.(type) {
	case groups.Group:
		out.Data = groupToProto(payload)
	case []*store.Message:
		out.Data = proto.EventMessageThread{Messages: messagesToProto(payload)}
	case *store.Message:
		out.Data = messageToProto(payload)
	case core.Notification:
		out.Data = proto.EventNewMessageNotification{
			MessageID: payload.MessageID,
			Sender:    payload.Sender,
			KnownAs:   payload.KnownAs,
			Preview:   payload.Preview,
			SentAt:    payload.SentAt,
		}
	case string:
		out.Data = proto.EventPresence{Username: payload}
	case []string:
		out.Data = proto.EventOnlineUsers{Users: payload}
	case *core.CoreError:
		return errorOutbound(payload)
	}
	return out
}

func errorOutbound(err error) proto.Outbound {
	var coreErr *core.CoreError
	if errors.As(err, &coreErr) {
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: coreErr.Code, Msg: coreErr.Message},
		}
	}
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "internal error"},
	}
}

func protocolError(msg string) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: core.ErrCodeProtocol, Msg: msg},
	}
}

// statusForError maps a core error to the REST status code.
func statusForError(err error) int {
	switch core.CodeOf(err) {
	case core.ErrCodeValidation:
		return http.StatusBadRequest
	case core.ErrCodeNotFound:
		return http.StatusNotFound
	case core.ErrCodeForbidden:
		return http.StatusForbidden
	case core.ErrCodeDeliveryFailed:
		return http.StatusBadGateway
	case core.ErrCodeProtocol:
		return http.StatusUnauthorized
	case core.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
