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

// ListQuickReplies returns every template ordered by sort order.
func (s *Store) ListQuickReplies(ctx context.Context) ([]model.QuickReply, error) {
	cur, err := s.quickReplies.Find(ctx, bson.D{}, options.Find().
		SetSort(bson.D{{Key: "sortOrder", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list quick replies: %w", err)
	}
	var docs []quickReplyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode quick replies: %w", err)
	}
	list := make([]model.QuickReply, len(docs))
	for i := range docs {
		list[i] = docs[i].toModel()
	}
	return list, nil
}

// GetQuickReply returns a template by ID.
func (s *Store) GetQuickReply(ctx context.Context, id string) (*model.QuickReply, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	var doc quickReplyDoc
	if err := s.quickReplies.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load quick reply: %w", err)
	}
	qr := doc.toModel()
	return &qr, nil
}

// CreateQuickReply inserts a template.
func (s *Store) CreateQuickReply(ctx context.Context, req *model.QuickReplyRequest) (*model.QuickReply, error) {
	doc := quickReplyDoc{
		ID:        primitive.NewObjectID(),
		Category:  req.Category,
		Text:      req.Text,
		SortOrder: req.SortOrder,
	}
	if _, err := s.quickReplies.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert quick reply: %w", err)
	}
	qr := doc.toModel()
	return &qr, nil
}

// UpdateQuickReply replaces a template's fields.
func (s *Store) UpdateQuickReply(ctx context.Context, id string, req *model.QuickReplyRequest) (*model.QuickReply, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	var doc quickReplyDoc
	err = s.quickReplies.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "category", Value: req.Category},
			{Key: "text", Value: req.Text},
			{Key: "sortOrder", Value: req.SortOrder},
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update quick reply: %w", err)
	}
	qr := doc.toModel()
	return &qr, nil
}

// DeleteQuickReply removes a template.
func (s *Store) DeleteQuickReply(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrNotFound
	}
	res, err := s.quickReplies.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("failed to delete quick reply: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
