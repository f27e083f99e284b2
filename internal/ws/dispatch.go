package ws

import (
	"context"
	"encoding/json"
	"errors"

	"zchat-signal/internal/domain"
	"zchat-signal/internal/protocol"
	"zchat-signal/internal/service"
	"zchat-signal/internal/signaling"
)

// dispatch routes one inbound frame. Successful requests are acknowledged
// when the client supplied a request_id; failures always produce an error
// frame, except for ICE candidates which are dropped silently.
func (h *Handler) dispatch(ctx context.Context, c *conn, user *domain.User, f protocol.Frame) {
	var err error
	switch f.Type {
	case protocol.EventFriendRequest:
		var p protocol.FriendRequestPayload
		if err = f.Decode(&p); err == nil {
			_, err = h.social.SendFriendRequest(ctx, user.ID, p.ReceiverID)
		}
	case protocol.EventUnsendRequest:
		var p protocol.FriendRequestPayload
		if err = f.Decode(&p); err == nil {
			err = h.social.UnsendRequest(ctx, user.ID, p.ReceiverID)
		}
	case protocol.EventAcceptRequest:
		var p protocol.RequestDecisionPayload
		if err = f.Decode(&p); err == nil {
			_, err = h.social.AcceptRequest(ctx, user.ID, p.RequestID)
		}
	case protocol.EventRejectRequest:
		var p protocol.RequestDecisionPayload
		if err = f.Decode(&p); err == nil {
			err = h.social.RejectRequest(ctx, user.ID, p.RequestID)
		}
	case protocol.EventRemoveFriend:
		var p protocol.RemoveFriendPayload
		if err = f.Decode(&p); err == nil {
			err = h.social.Unfriend(ctx, user.ID, p.FriendID)
		}

	case protocol.EventTextMessage, protocol.EventFileMessage:
		err = h.sendMessage(ctx, user.ID, f)
	case protocol.EventGetMessages:
		var p protocol.GetMessagesPayload
		if err = f.Decode(&p); err == nil {
			var msgs []protocol.MessageView
			if msgs, err = h.messages.ListMessages(ctx, user.ID, p.ConversationID, p.Limit); err == nil {
				c.Send(protocol.MustFrame(protocol.EventDispatchMessages, protocol.DispatchMessagesPayload{
					ConversationID: p.ConversationID,
					Messages:       msgs,
				}).WithRequestID(f.RequestID))
				return
			}
		}
	case protocol.EventGetDirectChats:
		var convs []service.ConversationView
		if convs, err = h.messages.Conversations(ctx, user.ID); err == nil {
			c.Send(protocol.MustFrame(protocol.EventDispatchDirectChats, map[string]any{
				"conversations": convs,
			}).WithRequestID(f.RequestID))
			return
		}

	case protocol.EventICECandidate:
		var p protocol.ICECandidatePayload
		if err := f.Decode(&p); err == nil {
			_ = h.calls.RelayICE(ctx, user.ID, p)
		}
		return

	default:
		kind, action, ok := protocol.ParseCallEvent(f.Type)
		if !ok {
			c.logger.Debug("unknown event", "event", f.Type)
			c.Send(protocol.ErrorFrame(f.RequestID, protocol.CodeUnknownEvent, "unknown event "+f.Type, false))
			return
		}
		err = h.callAction(ctx, c, user.ID, kind, action, f)
	}

	if err != nil {
		code, retryable := errorCode(err)
		if code == protocol.CodeStorageFailure {
			c.logger.Error("event failed", "event", f.Type, "error", err)
		} else {
			c.logger.Debug("event rejected", "event", f.Type, "code", code, "error", err)
		}
		c.Send(protocol.ErrorFrame(f.RequestID, code, err.Error(), retryable))
		return
	}
	if f.RequestID != "" {
		c.Send(protocol.AckFrame(f.RequestID))
	}
}

func (h *Handler) sendMessage(ctx context.Context, senderID int64, f protocol.Frame) error {
	var p protocol.SendMessagePayload
	if err := f.Decode(&p); err != nil {
		return err
	}
	in := service.SendMessageInput{
		ConversationID: p.ConversationID,
		ReceiverID:     p.ReceiverID,
		Content:        p.Content,
	}
	if f.Type == protocol.EventFileMessage {
		if p.FilePath == "" {
			return domain.ErrInvalidInput
		}
		in.FilePath = &p.FilePath
		if p.FileType != "" {
			in.FileType = &p.FileType
		}
	}
	_, err := h.messages.SendMessage(ctx, senderID, in)
	return err
}

func (h *Handler) callAction(ctx context.Context, c *conn, userID int64, kind domain.CallKind, action protocol.CallAction, f protocol.Frame) error {
	switch action {
	case protocol.CallStart:
		var p protocol.StartCallPayload
		if err := f.Decode(&p); err != nil {
			return err
		}
		snap, err := h.calls.Start(ctx, userID, kind, p)
		if err == nil && snap.State.Live() {
			c.own(snap.ID)
		}
		return err
	case protocol.CallAccept:
		var p protocol.AcceptCallPayload
		if err := f.Decode(&p); err != nil {
			return err
		}
		if err := h.calls.Accept(ctx, userID, p); err != nil {
			return err
		}
		c.own(p.CallID)
		return nil
	}

	var p protocol.CallRefPayload
	if err := f.Decode(&p); err != nil {
		return err
	}
	switch action {
	case protocol.CallDecline:
		return h.calls.Decline(ctx, userID, p.CallID)
	case protocol.CallEnd:
		return h.calls.End(ctx, userID, p.CallID)
	case protocol.CallBusy:
		return h.calls.Busy(ctx, userID, p.CallID)
	default:
		// server-to-client call events are not accepted from clients
		return errUnexpectedEvent
	}
}

var errUnexpectedEvent = errors.New("event is server-to-client only")

// errorCode classifies err into a wire error code.
func errorCode(err error) (code string, retryable bool) {
	switch {
	case errors.Is(err, errUnexpectedEvent):
		return protocol.CodeUnknownEvent, false
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, signaling.ErrInvalidArgument):
		return protocol.CodeInvalidPayload, false
	case errors.Is(err, domain.ErrNotFound):
		return protocol.CodeNotFound, false
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, signaling.ErrNotParticipant):
		return protocol.CodeForbidden, false
	case errors.Is(err, domain.ErrConflict):
		return protocol.CodeConflict, false
	case errors.Is(err, signaling.ErrBusy):
		return protocol.CodeBusy, false
	case errors.Is(err, signaling.ErrCallNotFound):
		return protocol.CodeCallNotFound, false
	case errors.Is(err, signaling.ErrCallEnded):
		return protocol.CodeCallEnded, false
	case errors.Is(err, signaling.ErrInvalidTransition):
		return protocol.CodeInvalidTransition, false
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return protocol.CodeInvalidPayload, false
	}
	return protocol.CodeStorageFailure, true
}
