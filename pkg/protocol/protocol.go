// Package protocol implements the VoiceFlow streaming wire format.
//
// A session runs over one duplex WebSocket that interleaves JSON text
// messages with binary audio messages:
//
//	client → service   {"type":"start","dictionary":[...]}   (dictionary optional)
//	client → service   <binary: little-endian float32 PCM, mono, 16 kHz>
//	client → service   {"type":"update_dictionary","words":[...]}
//	client → service   {"type":"stop"}
//
//	service → client   {"type":"partial","text":"..."}
//	service → client   {"type":"final","text":"..."}
//	service → client   {"type":"dictionary_updated","count":N}
//	service → client   {"type":"error","message":"..."}
//
// Audio messages carry no framing header; the WebSocket message boundary
// delimits them.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is wrapped by [Decode] errors when a service message is not
// valid JSON or lacks a field its type requires.
var ErrMalformed = errors.New("protocol: malformed message")

// ErrUnknownType is wrapped by [Decode] errors when a service message carries
// a type this client does not understand.
var ErrUnknownType = errors.New("protocol: unknown message type")

// ControlKind tags the variant held by a [Control].
type ControlKind int

const (
	// ControlStart begins a session, optionally carrying dictionary hints.
	ControlStart ControlKind = iota + 1

	// ControlStop ends the session and asks the service for a final result.
	ControlStop

	// ControlUpdateDictionary replaces the hint list of the live session.
	ControlUpdateDictionary

	// ControlError reports a client-side failure to the service.
	ControlError
)

// String returns the wire name of the control kind.
func (k ControlKind) String() string {
	switch k {
	case ControlStart:
		return "start"
	case ControlStop:
		return "stop"
	case ControlUpdateDictionary:
		return "update_dictionary"
	case ControlError:
		return "error"
	default:
		return fmt.Sprintf("ControlKind(%d)", int(k))
	}
}

// Control is a client → service control message.
type Control struct {
	Kind ControlKind

	// Words is the dictionary for ControlStart and ControlUpdateDictionary.
	Words []string

	// Reason is the description for ControlError.
	Reason string
}

// Start returns a start message. An empty dictionary is omitted on the wire.
func Start(dictionary []string) Control {
	return Control{Kind: ControlStart, Words: dictionary}
}

// Stop returns a stop message.
func Stop() Control { return Control{Kind: ControlStop} }

// UpdateDictionary returns a dictionary update message. An empty list is sent
// as an empty array so the service clears its hints.
func UpdateDictionary(words []string) Control {
	return Control{Kind: ControlUpdateDictionary, Words: words}
}

// Error returns a client error message.
func Error(reason string) Control {
	return Control{Kind: ControlError, Reason: reason}
}

type startWire struct {
	Type       string   `json:"type"`
	Dictionary []string `json:"dictionary,omitempty"`
}

type updateWire struct {
	Type  string   `json:"type"`
	Words []string `json:"words"`
}

type errorWire struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type typeOnly struct {
	Type string `json:"type"`
}

// MarshalJSON encodes c in its wire form.
func (c Control) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ControlStart:
		return json.Marshal(startWire{Type: c.Kind.String(), Dictionary: c.Words})
	case ControlStop:
		return json.Marshal(typeOnly{Type: c.Kind.String()})
	case ControlUpdateDictionary:
		words := c.Words
		if words == nil {
			words = []string{}
		}
		return json.Marshal(updateWire{Type: c.Kind.String(), Words: words})
	case ControlError:
		return json.Marshal(errorWire{Type: c.Kind.String(), Message: c.Reason})
	default:
		return nil, fmt.Errorf("protocol: cannot encode %s", c.Kind)
	}
}

// EventKind tags the variant held by an [Event].
type EventKind int

const (
	// EventPartial is an interim hypothesis for the audio received so far.
	EventPartial EventKind = iota + 1

	// EventFinal is the authoritative transcript of a stopped session.
	EventFinal

	// EventDictionaryUpdated acknowledges a dictionary update.
	EventDictionaryUpdated

	// EventError reports a service-side failure.
	EventError
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventDictionaryUpdated:
		return "dictionary_updated"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a service → client message.
type Event struct {
	Kind EventKind

	// Text is set for EventPartial and EventFinal.
	Text string

	// Count is the acknowledged hint count for EventDictionaryUpdated.
	Count int

	// Message is the failure description for EventError.
	Message string

	// OriginalText is the unpolished transcript some services attach to a
	// final result. Empty when absent.
	OriginalText string

	// PolishMethod names the server-side polishing applied to a final
	// result ("none", "rules", …). Empty when absent.
	PolishMethod string
}

type eventWire struct {
	Type         string  `json:"type"`
	Text         *string `json:"text"`
	Count        *int    `json:"count"`
	Message      *string `json:"message"`
	OriginalText string  `json:"original_text"`
	PolishMethod string  `json:"polish_method"`
}

// Decode parses one service text message. Errors wrap [ErrMalformed] or
// [ErrUnknownType].
func Decode(data []byte) (Event, error) {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	missing := func(field string) (Event, error) {
		return Event{}, fmt.Errorf("%w: %q message without %q", ErrMalformed, w.Type, field)
	}

	switch w.Type {
	case "partial":
		if w.Text == nil {
			return missing("text")
		}
		return Event{Kind: EventPartial, Text: *w.Text}, nil
	case "final":
		if w.Text == nil {
			return missing("text")
		}
		return Event{
			Kind:         EventFinal,
			Text:         *w.Text,
			OriginalText: w.OriginalText,
			PolishMethod: w.PolishMethod,
		}, nil
	case "dictionary_updated":
		if w.Count == nil {
			return missing("count")
		}
		return Event{Kind: EventDictionaryUpdated, Count: *w.Count}, nil
	case "error":
		if w.Message == nil {
			return missing("message")
		}
		return Event{Kind: EventError, Message: *w.Message}, nil
	case "":
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
}

// EncodeAudio packs samples as little-endian float32 PCM.
func EncodeAudio(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// DecodeAudio unpacks little-endian float32 PCM. A trailing partial sample is
// ignored.
func DecodeAudio(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
