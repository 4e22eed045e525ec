package mongostore

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/capitalize-ai/recruit-chat/internal/model"
)

const (
	roomsCollection        = "chatRooms"
	messagesCollection     = "messages"
	quickRepliesCollection = "quickReplies"
)

type roomDoc struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty"`
	UserID              string             `bson:"userId"`
	LastMessage         string             `bson:"lastMessage"`
	LastSender          string             `bson:"lastSender,omitempty"`
	UpdatedAt           time.Time          `bson:"updatedAt"`
	UnreadCountForAdmin int                `bson:"unreadCountForAdmin"`
	UnreadCountForUser  int                `bson:"unreadCountForUser"`
	UserTyping          bool               `bson:"userTyping"`
	AdminTyping         bool               `bson:"adminTyping"`
}

func (d *roomDoc) toModel() model.ChatRoom {
	room := model.ChatRoom{
		ID:                  d.ID.Hex(),
		UserID:              d.UserID,
		LastMessage:         d.LastMessage,
		UpdatedAt:           d.UpdatedAt,
		UnreadCountForAdmin: d.UnreadCountForAdmin,
		UnreadCountForUser:  d.UnreadCountForUser,
		UserTyping:          d.UserTyping,
		AdminTyping:         d.AdminTyping,
	}
	if d.LastSender != "" {
		room.LastSender = model.ResolveSender(d.LastSender, "", nil)
	}
	return room
}

// messageDoc accepts every sender encoding found in older documents: a
// from field, a sender field or an isAdmin flag. New messages carry from.
type messageDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	RoomID      string             `bson:"roomId"`
	From        string             `bson:"from,omitempty"`
	Sender      string             `bson:"sender,omitempty"`
	IsAdmin     *bool              `bson:"isAdmin,omitempty"`
	Text        *string            `bson:"text"`
	ImageURL    *string            `bson:"imageUrl"`
	CreatedAt   *time.Time         `bson:"createdAt"`
	IsDeleted   bool               `bson:"isDeleted"`
	ReadByAdmin bool               `bson:"readByAdmin"`
	ReadByUser  bool               `bson:"readByUser"`
	IsEdited    bool               `bson:"isEdited"`
}

func (d *messageDoc) sender() model.Role {
	return model.ResolveSender(d.From, d.Sender, d.IsAdmin)
}

func (d *messageDoc) toModel() model.ChatMessage {
	msg := model.ChatMessage{
		ID:          d.ID.Hex(),
		RoomID:      d.RoomID,
		Sender:      d.sender(),
		Text:        d.Text,
		ImageURL:    d.ImageURL,
		IsDeleted:   d.IsDeleted,
		ReadByAdmin: d.ReadByAdmin,
		ReadByUser:  d.ReadByUser,
		IsEdited:    d.IsEdited,
	}
	if d.CreatedAt != nil {
		t := d.CreatedAt.UTC()
		msg.CreatedAt = &t
	}
	return msg
}

type quickReplyDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Category  string             `bson:"category"`
	Text      string             `bson:"text"`
	SortOrder int                `bson:"sortOrder"`
}

func (d *quickReplyDoc) toModel() model.QuickReply {
	return model.QuickReply{
		ID:        d.ID.Hex(),
		Category:  d.Category,
		Text:      d.Text,
		SortOrder: d.SortOrder,
	}
}

// unreadField is the room counter owned by viewer.
func unreadField(viewer model.Role) string {
	if viewer == model.RoleAdmin {
		return "unreadCountForAdmin"
	}
	return "unreadCountForUser"
}

func typingField(role model.Role) string {
	if role == model.RoleAdmin {
		return "adminTyping"
	}
	return "userTyping"
}

func readField(viewer model.Role) string {
	if viewer == model.RoleAdmin {
		return "readByAdmin"
	}
	return "readByUser"
}

// adminSenderFilter matches messages whose normalized sender is admin.
func adminSenderFilter() bson.D {
	unset := bson.D{{Key: "$in", Value: bson.A{nil, ""}}}
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "from", Value: string(model.RoleAdmin)}},
		bson.D{
			{Key: "from", Value: unset},
			{Key: "sender", Value: string(model.RoleAdmin)},
		},
		bson.D{
			{Key: "from", Value: unset},
			{Key: "sender", Value: unset},
			{Key: "isAdmin", Value: true},
		},
	}}}
}

// senderFilter matches messages whose normalized sender is role.
func senderFilter(role model.Role) bson.D {
	if role == model.RoleAdmin {
		return adminSenderFilter()
	}
	return bson.D{{Key: "$nor", Value: bson.A{adminSenderFilter()}}}
}

// messageFilter translates f into a query on roomID's messages.
func messageFilter(roomID string, f model.MessageFilter) bson.D {
	q := bson.D{{Key: "roomId", Value: roomID}}
	if f.Sender != nil {
		q = append(q, bson.E{Key: "$and", Value: bson.A{senderFilter(*f.Sender)}})
	}
	if f.ReadByAdmin != nil {
		q = append(q, flagFilter("readByAdmin", *f.ReadByAdmin))
	}
	if f.ReadByUser != nil {
		q = append(q, flagFilter("readByUser", *f.ReadByUser))
	}
	if f.Deleted != nil {
		q = append(q, flagFilter("isDeleted", *f.Deleted))
	}
	return q
}

// flagFilter treats a missing boolean field as false.
func flagFilter(field string, v bool) bson.E {
	if v {
		return bson.E{Key: field, Value: true}
	}
	return bson.E{Key: field, Value: bson.D{{Key: "$ne", Value: true}}}
}
