package realtime

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Phoenix channel events used by the realtime service.
const (
	eventJoin      = "phx_join"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
	eventSystem    = "system"

	heartbeatTopic = "phoenix"
)

// message is one Phoenix frame. Ref is null on server pushes.
type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type changeConfig struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type joinConfig struct {
	PostgresChanges []changeConfig `json:"postgres_changes"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data changeData `json:"data"`
}

type changeData struct {
	Table     string    `json:"table"`
	Type      string    `json:"type"`
	Record    types.Row `json:"record"`
	OldRecord types.Row `json:"old_record"`
}

func topicFor(table string) string {
	return "realtime:public:" + table
}

func newMessage(topic, event string, payload any, ref uint64) (message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return message{}, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	r := strconv.FormatUint(ref, 10)
	return message{Topic: topic, Event: event, Payload: data, Ref: &r}, nil
}

// serverFilter renders the first equality predicate in the realtime filter
// syntax. The service accepts a single filter; the rest are applied locally.
func serverFilter(filter []types.Predicate) string {
	for _, p := range filter {
		if p.Op != types.OpEq || p.Value == nil {
			continue
		}
		switch v := p.Value.(type) {
		case string:
			return p.Field + "=eq." + v
		case bool:
			return p.Field + "=eq." + strconv.FormatBool(v)
		case int:
			return p.Field + "=eq." + strconv.Itoa(v)
		case float64:
			return p.Field + "=eq." + strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// toEvent converts a postgres_changes payload. ok is false for payloads that
// carry no row change.
func toEvent(payload json.RawMessage) (types.ChangeEvent, bool) {
	var p changePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return types.ChangeEvent{}, false
	}
	ev := types.ChangeEvent{Table: p.Data.Table}
	switch strings.ToUpper(p.Data.Type) {
	case "INSERT":
		ev.Op = types.ChangeInsert
		ev.New = p.Data.Record
	case "UPDATE":
		ev.Op = types.ChangeUpdate
		ev.New = p.Data.Record
		ev.Old = p.Data.OldRecord
	case "DELETE":
		ev.Op = types.ChangeDelete
		ev.Old = p.Data.OldRecord
	default:
		return types.ChangeEvent{}, false
	}
	if len(ev.Old) == 0 {
		ev.Old = nil
	}
	return ev, true
}

// matches applies filter to the event's row. Deleted rows often arrive with
// only their primary key, so predicates on absent columns are skipped for
// deletes.
func matches(filter []types.Predicate, ev types.ChangeEvent) bool {
	if ev.Op != types.ChangeDelete {
		return types.MatchPredicates(filter, ev.New)
	}
	present := make([]types.Predicate, 0, len(filter))
	for _, p := range filter {
		fields := p.Fields
		if p.Op != types.OpSearch {
			fields = []string{p.Field}
		}
		for _, f := range fields {
			if _, ok := ev.Old[f]; ok {
				present = append(present, p)
				break
			}
		}
	}
	return types.MatchPredicates(present, ev.Old)
}
