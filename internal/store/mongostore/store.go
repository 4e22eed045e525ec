package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

// Store is a MongoDB store.Store.
type Store struct {
	client       *mongo.Client
	rooms        *mongo.Collection
	messages     *mongo.Collection
	quickReplies *mongo.Collection
	timeout      time.Duration
	logger       *logger.Logger
}

var _ store.Store = (*Store)(nil)

// New creates a store on database. timeout bounds subscription setup.
func New(client *mongo.Client, database string, timeout time.Duration, log *logger.Logger) *Store {
	db := client.Database(database)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{
		client:       client,
		rooms:        db.Collection(roomsCollection),
		messages:     db.Collection(messagesCollection),
		quickReplies: db.Collection(quickRepliesCollection),
		timeout:      timeout,
		logger:       log.Named("mongostore"),
	}
}

// EnsureIndexes creates the indexes the store relies on. The unique userId
// index is what makes concurrent room creation safe.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.rooms.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_user"),
		},
		{
			Keys: bson.D{{Key: "updatedAt", Value: -1}},
		},
	}); err != nil {
		return fmt.Errorf("failed to create room indexes: %w", err)
	}

	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "createdAt", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	if _, err := s.quickReplies.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sortOrder", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create quick reply indexes: %w", err)
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client. Open change streams end with it.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// FindRoomByUser returns the room owned by userID.
func (s *Store) FindRoomByUser(ctx context.Context, userID string) (*model.ChatRoom, error) {
	return s.findRoom(ctx, bson.D{{Key: "userId", Value: userID}})
}

// CreateRoom inserts a room for userID. A concurrent creation for the same
// user loses on the unique index and gets ErrRoomExists.
func (s *Store) CreateRoom(ctx context.Context, userID string) (*model.ChatRoom, error) {
	doc := roomDoc{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.rooms.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrRoomExists
		}
		return nil, fmt.Errorf("failed to insert room: %w", err)
	}
	room := doc.toModel()
	return &room, nil
}

// GetRoom returns a room by ID.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*model.ChatRoom, error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, store.ErrNotFound
	}
	return s.findRoom(ctx, bson.D{{Key: "_id", Value: oid}})
}

// SetTyping sets the typing flag owned by role.
func (s *Store) SetTyping(ctx context.Context, roomID string, role model.Role, typing bool) error {
	return s.updateRoom(ctx, roomID, bson.D{{Key: "$set", Value: bson.D{{Key: typingField(role), Value: typing}}}})
}

// ResetUnread zeroes the unread counter owned by viewer.
func (s *Store) ResetUnread(ctx context.Context, roomID string, viewer model.Role) error {
	return s.updateRoom(ctx, roomID, bson.D{{Key: "$set", Value: bson.D{{Key: unreadField(viewer), Value: 0}}}})
}

func (s *Store) findRoom(ctx context.Context, filter bson.D) (*model.ChatRoom, error) {
	var doc roomDoc
	if err := s.rooms.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	room := doc.toModel()
	return &room, nil
}

func (s *Store) updateRoom(ctx context.Context, roomID string, update bson.D) error {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return store.ErrNotFound
	}
	res, err := s.rooms.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) listRooms(ctx context.Context) ([]model.ChatRoom, error) {
	cur, err := s.rooms.Find(ctx, bson.D{}, options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	var docs []roomDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode rooms: %w", err)
	}
	rooms := make([]model.ChatRoom, len(docs))
	for i := range docs {
		rooms[i] = docs[i].toModel()
	}
	return rooms, nil
}

func (s *Store) logSubscriptionEnd(kind string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Warn("change stream ended", zap.String("kind", kind), zap.Error(err))
}
