package syncclient

import (
	"github.com/haierkeys/notegpt-sync-service/internal/domain"
	"github.com/haierkeys/notegpt-sync-service/pkg/protocol"
)

// outbox frames produced while offline, at most one per entity key
// outbox 离线期间产生的消息，每个实体 key 最多保留一条
type outbox struct {
	order []string
	items map[string]protocol.Message
}

func newOutbox() *outbox {
	return &outbox{items: make(map[string]protocol.Message)}
}

func entityKey(kind domain.Kind, id string) string {
	return string(kind) + ":" + id
}

func relationKey(rel domain.Relation) string {
	return "rel:" + rel.Key()
}

// put replaces the frame queued under key. An upsert keeps the slot of the frame it
// replaces so a note is still created before relations that point at it; a delete
// moves to the back.
// put 替换 key 对应的消息：更新保留原位置，删除移到队尾
func (o *outbox) put(key string, m protocol.Message, toBack bool) {
	if _, ok := o.items[key]; ok {
		o.items[key] = m
		if !toBack {
			return
		}
		o.remove(key)
	}
	o.items[key] = m
	o.order = append(o.order, key)
}

func (o *outbox) get(key string) (protocol.Message, bool) {
	m, ok := o.items[key]
	return m, ok
}

func (o *outbox) remove(key string) {
	for i, k := range o.order {
		if k == key {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	delete(o.items, key)
}

// dropRelations discards queued relation frames made moot by a local cascade
func (o *outbox) dropRelations(match func(domain.Relation) bool) {
	for _, key := range append([]string(nil), o.order...) {
		if rc, ok := o.items[key].(*protocol.RelationChange); ok && match(rc.Relation()) {
			o.remove(key)
		}
	}
}

// drain returns the queued frames in send order and empties the outbox
func (o *outbox) drain() []protocol.Message {
	out := make([]protocol.Message, 0, len(o.order))
	for _, key := range o.order {
		out = append(out, o.items[key])
	}
	o.order = nil
	o.items = make(map[string]protocol.Message)
	return out
}

func (o *outbox) Len() int {
	return len(o.order)
}

// isDelete reports whether the frame queued under key removes the entity
func (o *outbox) isDelete(key string) bool {
	m, ok := o.items[key]
	if !ok {
		return false
	}
	switch t := m.Header().Type; t {
	case protocol.TypeDelete, protocol.TypeRelationRemove:
		return true
	default:
		return protocol.IsLabelDelete(t)
	}
}
