package protocol

import (
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/domain"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Decode parses one text frame. A well-formed frame with an unlisted type yields *Unknown;
// anything unparseable returns an error matching domain.ErrProtocol.
// Decode 解析一个文本帧：类型未知返回 *Unknown，无法解析时返回 domain.ErrProtocol
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(domain.ErrProtocol, err.Error())
	}
	if env.Type == "" {
		return nil, errors.Wrap(domain.ErrProtocol, "missing message type")
	}

	var m Message
	switch env.Type {
	case TypeInit:
		m = &Init{}
	case TypeInitResponse:
		m = &InitResponse{}
	case TypeInitResponseNorm:
		m = &InitResponseNorm{}
	case TypeCreate, TypeUpdate:
		m = &NoteChange{}
	case TypeDelete:
		m = &NoteDelete{}
	case TypeTagCreate, TypeTagUpdate:
		m = &TagChange{}
	case TypeTagDelete:
		m = &TagDelete{}
	case TypeCategoryCreate, TypeCategoryUpdate:
		m = &CategoryChange{}
	case TypeCategoryDelete:
		m = &CategoryDelete{}
	case TypeRelationAdd, TypeRelationRemove:
		m = &RelationChange{}
	case TypePing:
		m = &Ping{}
	case TypePong:
		m = &Pong{}
	case TypeAck:
		m = &Ack{}
	default:
		return &Unknown{Envelope: env}, nil
	}

	if err := sonic.Unmarshal(data, m); err != nil {
		return nil, errors.Wrapf(domain.ErrProtocol, "decode %s: %v", env.Type, err)
	}
	return m, nil
}

// Encode 序列化消息
func Encode(m Message) ([]byte, error) {
	data, err := sonic.Marshal(m)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", m.Header().Type)
	}
	return data, nil
}

// Stamp sets type, timestamp and client id on an outbound message
// Stamp 为待发送的消息设置类型、时间戳与客户端 ID
func Stamp(m Message, t Type, clientID string, now time.Time) Message {
	h := m.Header()
	h.Type = t
	h.Timestamp = now.UnixMilli()
	h.ClientID = clientID
	return m
}
