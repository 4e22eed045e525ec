package mongostore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
)

// AppendMessage inserts the message and updates the room summary and the
// counterpart's unread counter in one transaction. The room's updatedAt
// is advanced on the server and copied to the message, so timestamps in
// a room strictly increase.
func (s *Store) AppendMessage(ctx context.Context, roomID string, draft *model.MessageDraft) (*model.ChatMessage, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, store.ErrNotFound
	}

	session, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(context.Background())

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var room roomDoc
		err := s.rooms.FindOneAndUpdate(sc,
			bson.D{{Key: "_id", Value: oid}},
			appendPipeline(draft),
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&room)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, err
		}

		stamp := room.UpdatedAt
		msg := draft.NewMessage(primitive.NewObjectID().Hex(), roomID, &stamp)
		doc := newMessageDoc(msg)
		if _, err := s.messages.InsertOne(sc, doc); err != nil {
			return nil, err
		}
		return doc, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	doc := result.(*messageDoc)
	msg := doc.toModel()
	return &msg, nil
}

// appendPipeline updates the room summary. Pipeline stages read the
// previous updatedAt, so the new one is at least a millisecond later.
func appendPipeline(draft *model.MessageDraft) mongo.Pipeline {
	counter := unreadField(draft.Sender.Counterpart())
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "lastMessage", Value: bson.D{{Key: "$literal", Value: draft.Summary()}}},
			{Key: "lastSender", Value: bson.D{{Key: "$literal", Value: string(draft.Sender)}}},
			{Key: "updatedAt", Value: bson.D{{Key: "$max", Value: bson.A{
				"$$NOW",
				bson.D{{Key: "$add", Value: bson.A{"$updatedAt", 1}}},
			}}}},
			{Key: counter, Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$" + counter, 0}}},
				1,
			}}}},
		}}},
	}
}

func newMessageDoc(msg *model.ChatMessage) *messageDoc {
	oid, _ := primitive.ObjectIDFromHex(msg.ID)
	return &messageDoc{
		ID:          oid,
		RoomID:      msg.RoomID,
		From:        string(msg.Sender),
		Text:        msg.Text,
		ImageURL:    msg.ImageURL,
		CreatedAt:   msg.CreatedAt,
		ReadByAdmin: msg.ReadByAdmin,
		ReadByUser:  msg.ReadByUser,
	}
}

// MarkRead sets the viewer's read flag on a counterpart message.
func (s *Store) MarkRead(ctx context.Context, roomID, messageID string, viewer model.Role) error {
	doc, err := s.loadMessage(ctx, roomID, messageID)
	if err != nil {
		return err
	}
	if doc.sender() == viewer {
		return store.ErrForbidden
	}
	if (viewer == model.RoleAdmin && doc.ReadByAdmin) || (viewer == model.RoleUser && doc.ReadByUser) {
		return nil
	}

	_, err = s.messages.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: doc.ID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: readField(viewer), Value: true}}}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

// SoftDelete replaces the message content with the deleted placeholder.
func (s *Store) SoftDelete(ctx context.Context, roomID, messageID string, sender model.Role) error {
	doc, err := s.loadMessage(ctx, roomID, messageID)
	if err != nil {
		return err
	}
	if doc.sender() != sender {
		return store.ErrForbidden
	}

	_, err = s.messages.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: doc.ID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "text", Value: model.DeletedPlaceholder},
			{Key: "imageUrl", Value: nil},
			{Key: "isDeleted", Value: true},
		}}},
	)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// CountMessages counts the room's messages matching filter.
func (s *Store) CountMessages(ctx context.Context, roomID string, filter model.MessageFilter) (int, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return 0, err
	}
	n, err := s.messages.CountDocuments(ctx, messageFilter(roomID, filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return int(n), nil
}

// RecentMessages returns up to limit of the newest messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, roomID string, limit int) ([]model.ChatMessage, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	msgs, err := s.findMessages(ctx, roomID, opts)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (s *Store) listMessages(ctx context.Context, roomID string) ([]model.ChatMessage, error) {
	msgs, err := s.findMessages(ctx, roomID, options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	model.SortMessages(msgs)
	return msgs, nil
}

func (s *Store) findMessages(ctx context.Context, roomID string, opts *options.FindOptions) ([]model.ChatMessage, error) {
	cur, err := s.messages.Find(ctx, bson.D{{Key: "roomId", Value: roomID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	msgs := make([]model.ChatMessage, len(docs))
	for i := range docs {
		msgs[i] = docs[i].toModel()
	}
	return msgs, nil
}

func (s *Store) loadMessage(ctx context.Context, roomID, messageID string) (*messageDoc, error) {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, store.ErrNotFound
	}
	var doc messageDoc
	err = s.messages.FindOne(ctx, bson.D{
		{Key: "_id", Value: oid},
		{Key: "roomId", Value: roomID},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return &doc, nil
}
