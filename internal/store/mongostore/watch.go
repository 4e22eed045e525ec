package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
)

var errStreamClosed = errors.New("change stream closed by server")

// SubscribeRoom streams one room document.
func (s *Store) SubscribeRoom(ctx context.Context, roomID string) (*store.Subscription[model.ChatRoom], error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, store.ErrNotFound
	}
	return watch(ctx, s, "room", s.rooms,
		bson.D{{Key: "documentKey._id", Value: oid}},
		func(ctx context.Context) (model.ChatRoom, error) {
			room, err := s.GetRoom(ctx, roomID)
			if err != nil {
				return model.ChatRoom{}, err
			}
			return *room, nil
		})
}

// SubscribeRooms streams every room, most recently updated first.
func (s *Store) SubscribeRooms(ctx context.Context) (*store.Subscription[[]model.ChatRoom], error) {
	return watch(ctx, s, "rooms", s.rooms, nil, s.listRooms)
}

// SubscribeMessages streams a room's messages in creation order.
func (s *Store) SubscribeMessages(ctx context.Context, roomID string) (*store.Subscription[[]model.ChatMessage], error) {
	setupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	_, err := s.GetRoom(setupCtx, roomID)
	cancel()
	if err != nil {
		return nil, err
	}
	return watch(ctx, s, "messages", s.messages,
		bson.D{{Key: "fullDocument.roomId", Value: roomID}},
		func(ctx context.Context) ([]model.ChatMessage, error) {
			return s.listMessages(ctx, roomID)
		})
}

// SubscribeQuickReplies streams every template ordered by sort order.
func (s *Store) SubscribeQuickReplies(ctx context.Context) (*store.Subscription[[]model.QuickReply], error) {
	return watch(ctx, s, "quick_replies", s.quickReplies, nil, s.ListQuickReplies)
}

// watch opens a change stream on coll and publishes a fresh load after
// every matching change. Changes that arrive together are coalesced into
// one reload. The stream is opened before the initial load so nothing
// written in between is missed.
func watch[T any](ctx context.Context, s *Store, kind string, coll *mongo.Collection, match bson.D, load func(context.Context) (T, error)) (*store.Subscription[T], error) {
	wctx, cancel := context.WithCancel(ctx)
	setupCtx, setupCancel := context.WithTimeout(wctx, s.timeout)
	defer setupCancel()

	pipeline := mongo.Pipeline{}
	if len(match) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}
	cs, err := coll.Watch(setupCtx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open %s change stream: %w", kind, err)
	}

	initial, err := load(setupCtx)
	if err != nil {
		cs.Close(context.Background())
		cancel()
		return nil, err
	}

	sub := store.NewSubscription[T](cancel)
	sub.Publish(initial)

	go func() {
		defer cs.Close(context.Background())
		for cs.Next(wctx) {
			for cs.TryNext(wctx) {
			}
			if cs.Err() != nil {
				break
			}
			v, err := load(wctx)
			if err != nil {
				if wctx.Err() != nil {
					sub.Close()
					return
				}
				s.logSubscriptionEnd(kind, err)
				sub.Fail(err)
				return
			}
			sub.Publish(v)
		}

		if wctx.Err() != nil {
			sub.Close()
			return
		}
		err := cs.Err()
		if err == nil {
			err = errStreamClosed
		}
		s.logSubscriptionEnd(kind, err)
		sub.Fail(err)
	}()

	return sub, nil
}
