package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Event names carried in the "event" field of a frame.
const (
	EventJoinChat       = "joinChat"
	EventSendMessage    = "sendMessage"
	EventReceiveMessage = "receiveMessage"
	EventTyping         = "typing"
)

// Frame is the envelope for every message on the relay socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var errNoRoomKey = errors.New("missing room key")

// EncodeFrame builds a wire frame. data is embedded as-is.
func EncodeFrame(event string, data json.RawMessage) ([]byte, error) {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// DecodeFrame parses an inbound frame.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, err
	}
	if f.Event == "" {
		return Frame{}, errors.New("frame has no event")
	}
	return f, nil
}

// RoomKey extracts a room key from a frame payload. A bare string or number
// is the key itself; an object carries it in "roomKey" or, failing that,
// "chatId". Numeric keys are kept in their decimal form so private chat ids
// and "chat_<eventId>" keys address the same rooms the REST API reports.
func RoomKey(data json.RawMessage) (string, error) {
	v, err := decodeLoose(data)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case map[string]interface{}:
		if key := scalarKey(t["roomKey"]); key != "" {
			return key, nil
		}
		if key := scalarKey(t["chatId"]); key != "" {
			return key, nil
		}
		return "", errNoRoomKey
	default:
		if key := scalarKey(t); key != "" {
			return key, nil
		}
		return "", errNoRoomKey
	}
}

// typingUser returns the raw "userId" of a typing payload, or nil.
func typingUser(data json.RawMessage) json.RawMessage {
	var body struct {
		UserID json.RawMessage `json:"userId"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil
	}
	if len(body.UserID) == 0 || bytes.Equal(body.UserID, []byte("null")) {
		return nil
	}
	return body.UserID
}

func decodeLoose(data json.RawMessage) (interface{}, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errNoRoomKey
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func scalarKey(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	}
	return ""
}
