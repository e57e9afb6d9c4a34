// Package protocol WebSocket sync message catalog
// Package protocol WebSocket 同步消息定义
package protocol

import (
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/domain"
)

// Type message discriminator on the wire
// Type 消息类型
type Type string

const (
	TypeInit             Type = "INIT"
	TypeInitResponse     Type = "INIT_RESPONSE"
	TypeInitResponseNorm Type = "INIT_RESPONSE_NORM"
	TypeCreate           Type = "CREATE"
	TypeUpdate           Type = "UPDATE"
	TypeDelete           Type = "DELETE"
	TypeTagCreate        Type = "TAG_CREATE"
	TypeTagUpdate        Type = "TAG_UPDATE"
	TypeTagDelete        Type = "TAG_DELETE"
	TypeCategoryCreate   Type = "CATEGORY_CREATE"
	TypeCategoryUpdate   Type = "CATEGORY_UPDATE"
	TypeCategoryDelete   Type = "CATEGORY_DELETE"
	TypeRelationAdd      Type = "RELATION_ADD"
	TypeRelationRemove   Type = "RELATION_REMOVE"
	TypePing             Type = "PING"
	TypePong             Type = "PONG"
	TypeAck              Type = "ACK"
)

// FormatFlat INIT option asking for the notes-only INIT_RESPONSE
// FormatFlat INIT 选项，要求返回仅包含笔记的 INIT_RESPONSE
const FormatFlat = "flat"

// Envelope fields shared by every message
// Envelope 所有消息共有的字段
type Envelope struct {
	Type Type `json:"type"`
	// Timestamp epoch milliseconds at the sender
	// Timestamp 发送方的毫秒时间戳
	Timestamp int64 `json:"timestamp"`
	// ClientID sender id; only server-assigned values are meaningful
	// ClientID 发送方 ID，只有服务端分配的值有意义
	ClientID string `json:"clientId,omitempty"`
}

// Header gives access to the envelope of any message
func (e *Envelope) Header() *Envelope { return e }

// Message closed set of sync messages; see Decode for the full list
// Message 同步消息的封闭集合
type Message interface {
	Header() *Envelope
}

// Note wire form of a note; updatedAt may not precede createdAt, a missing createdAt takes updatedAt
type Note struct {
	ID        string    `json:"id" validate:"entityid"`
	Title     *string   `json:"title,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" validate:"required,gtefield=CreatedAt"`
}

// Label wire form of a tag or category
type Label struct {
	ID        string    `json:"id" validate:"entityid"`
	Name      string    `json:"name" validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" validate:"required,gtefield=CreatedAt"`
}

// NoteTag note_tags relation row
type NoteTag struct {
	NoteID string `json:"noteId"`
	TagID  string `json:"tagId"`
}

// NoteCategory note_categories relation row
type NoteCategory struct {
	NoteID     string `json:"noteId"`
	CategoryID string `json:"categoryId"`
}

// Relations 关联集合
type Relations struct {
	NoteTags       []NoteTag      `json:"note_tags"`
	NoteCategories []NoteCategory `json:"note_categories"`
}

// NormalizedPayload 规范化的初始化载荷
type NormalizedPayload struct {
	Notes      []*Note   `json:"notes"`
	Tags       []*Label  `json:"tags"`
	Categories []*Label  `json:"categories"`
	Relations  Relations `json:"relations"`
}

// Init 客户端初始化请求
type Init struct {
	Envelope
	Format string `json:"format,omitempty"`
}

// InitResponse notes-only snapshot for older clients
// InitResponse 仅包含笔记的初始化响应（兼容旧客户端）
type InitResponse struct {
	Envelope
	Notes []*Note `json:"notes"`
}

// InitResponseNorm 规范化的初始化响应
type InitResponseNorm struct {
	Envelope
	Payload NormalizedPayload `json:"payload"`
}

// NoteChange CREATE or UPDATE
type NoteChange struct {
	Envelope
	Note *Note `json:"note" validate:"required"`
}

// NoteDelete DELETE
type NoteDelete struct {
	Envelope
	NoteID string `json:"noteId" validate:"entityid"`
}

// TagChange TAG_CREATE or TAG_UPDATE
type TagChange struct {
	Envelope
	Tag *Label `json:"tag" validate:"required"`
}

// TagDelete TAG_DELETE
type TagDelete struct {
	Envelope
	TagID string `json:"tagId" validate:"entityid"`
}

// CategoryChange CATEGORY_CREATE or CATEGORY_UPDATE
type CategoryChange struct {
	Envelope
	Category *Label `json:"category" validate:"required"`
}

// CategoryDelete CATEGORY_DELETE
type CategoryDelete struct {
	Envelope
	CategoryID string `json:"categoryId" validate:"entityid"`
}

// RelationChange RELATION_ADD or RELATION_REMOVE
type RelationChange struct {
	Envelope
	RelationName domain.RelationName `json:"relationName" validate:"required,oneof=note_tags note_categories"`
	NoteID       string              `json:"noteId" validate:"entityid"`
	TargetID     string              `json:"targetId" validate:"entityid"`
}

// Ping 心跳
type Ping struct {
	Envelope
}

// Pong 心跳响应
type Pong struct {
	Envelope
}

// AckError failure detail carried by an ACK
type AckError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Ack acknowledges one inbound mutation
// Ack 对单条变更消息的确认
type Ack struct {
	Envelope
	OriginalTimestamp int64 `json:"originalTimestamp"`
	// Applied false when LWW kept the stored value or the operation failed
	// Applied 为 false 表示 LWW 保留了已存储的值或操作失败
	Applied bool      `json:"applied"`
	Error   *AckError `json:"error,omitempty"`
}

// Unknown well-formed message with a type outside the catalog
// Unknown 格式正确但类型未知的消息
type Unknown struct {
	Envelope
}

// IsLabelDelete reports whether t deletes a tag or category
func IsLabelDelete(t Type) bool {
	return t == TypeTagDelete || t == TypeCategoryDelete
}

// UpsertTypes returns the create/update types used for kind k
// UpsertTypes 返回实体类型 k 对应的创建与更新消息类型
func UpsertTypes(k domain.Kind) (create Type, update Type) {
	switch k {
	case domain.KindTag:
		return TypeTagCreate, TypeTagUpdate
	case domain.KindCategory:
		return TypeCategoryCreate, TypeCategoryUpdate
	}
	return TypeCreate, TypeUpdate
}

// DeleteType 返回实体类型 k 对应的删除消息类型
func DeleteType(k domain.Kind) Type {
	switch k {
	case domain.KindTag:
		return TypeTagDelete
	case domain.KindCategory:
		return TypeCategoryDelete
	}
	return TypeDelete
}
