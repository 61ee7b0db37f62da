package ws

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kasuganosora/ucsmail/friends"
	"github.com/kasuganosora/ucsmail/model"
	"github.com/kasuganosora/ucsmail/session"
	"github.com/kasuganosora/ucsmail/wire"
	"go.uber.org/zap"
)

// FriendHandlers serves friend and ignore list requests for the session's
// primary character.
type FriendHandlers struct {
	reg    *friends.Registry
	logger *zap.Logger
}

// NewFriendHandlers creates FriendHandlers.
func NewFriendHandlers(reg *friends.Registry, logger *zap.Logger) *FriendHandlers {
	return &FriendHandlers{reg: reg, logger: logger}
}

// RegisterHandlers registers all friend request handlers on the router.
func (fh *FriendHandlers) RegisterHandlers(r *Router) {
	r.On("add_friend", fh.change("add_friend", model.FriendKindFriend, true))
	r.On("remove_friend", fh.change("remove_friend", model.FriendKindFriend, false))
	r.On("add_ignore", fh.change("add_ignore", model.FriendKindIgnore, true))
	r.On("remove_ignore", fh.change("remove_ignore", model.FriendKindIgnore, false))
	r.On("list_buddies", fh.HandleList)
}

type nameReq struct {
	Name string `json:"name"`
}

func (fh *FriendHandlers) change(reqType string, kind model.FriendKind, add bool) HandlerFunc {
	return func(ctx context.Context, s *session.Session, raw json.RawMessage) error {
		var req nameReq
		if err := json.Unmarshal(raw, &req); err != nil || strings.TrimSpace(req.Name) == "" {
			sendError(s, reqType, "malformed payload")
			return nil
		}
		var err error
		if add {
			err = fh.reg.Add(ctx, s.CharID(), kind, strings.TrimSpace(req.Name))
		} else {
			err = fh.reg.Remove(ctx, s.CharID(), kind, strings.TrimSpace(req.Name))
		}
		if err != nil {
			sendError(s, reqType, "not changed")
			return nil
		}
		return fh.HandleList(ctx, s, nil)
	}
}

// HandleList sends the buddy list packet.
func (fh *FriendHandlers) HandleList(ctx context.Context, s *session.Session, _ json.RawMessage) error {
	fr, ig, err := fh.reg.List(ctx, s.CharID())
	if err != nil {
		return err
	}
	s.SendPacket(wire.OpBuddyList, friends.BuddyListPacket(fr, ig))
	fh.logger.Debug("buddy list sent",
		zap.Uint32("charid", s.CharID()), zap.Int("friends", len(fr)), zap.Int("ignored", len(ig)))
	return nil
}
