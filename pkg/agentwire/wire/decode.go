package wire

import (
	"bytes"
	"encoding/json"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
)

// lineHead is the shared shape of every frame's discriminating fields.
type lineHead struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Request   json.RawMessage `json:"request"`
	Response  json.RawMessage `json:"response"`
}

// responseBody is the nested object carried by a control_response frame.
type responseBody struct {
	Subtype   string          `json:"subtype"`
	RequestID string          `json:"request_id"`
	Response  json.RawMessage `json:"response"`
	Error     json.RawMessage `json:"error"`
}

// Decode parses one protocol line into a typed Frame. A failure to decode is
// reported as a recoverable *agenterrs.DecodeError; it never invalidates the
// session. Decode retains references into line, so the caller must hand over
// ownership of the slice.
func Decode(line []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, agenterrs.NewDecodeError("empty line", nil, nil)
	}

	var head lineHead
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return nil, agenterrs.NewDecodeError("invalid json object", trimmed, err)
	}

	if head.Type == "" {
		return nil, agenterrs.NewDecodeError("missing type field", trimmed, nil)
	}

	switch head.Type {
	case TypeControlRequest:
		return decodeControlRequest(trimmed, head)
	case TypeControlResponse:
		return decodeControlResponse(trimmed, head)
	case TypeControlCancel:
		if head.RequestID == "" {
			return nil, agenterrs.NewDecodeError("control_cancel_request missing request_id", trimmed, nil)
		}

		return ControlCancel{RequestID: head.RequestID}, nil
	case TypeStreamEvent:
		return StreamEvent{Raw: json.RawMessage(trimmed)}, nil
	default:
		if bareEventKinds[head.Type] {
			return StreamEvent{Raw: json.RawMessage(trimmed)}, nil
		}

		return PlainMessage{Type: head.Type, Raw: json.RawMessage(trimmed)}, nil
	}
}

func decodeControlRequest(trimmed []byte, head lineHead) (Frame, error) {
	if head.RequestID == "" {
		return nil, agenterrs.NewDecodeError("control_request missing request_id", trimmed, nil)
	}
	if len(head.Request) == 0 {
		return nil, agenterrs.NewDecodeError("control_request missing request body", trimmed, nil)
	}

	var body struct {
		Subtype string `json:"subtype"`
	}
	if err := json.Unmarshal(head.Request, &body); err != nil {
		return nil, agenterrs.NewDecodeError("control_request body is not an object", trimmed, err)
	}

	return ControlRequest{
		RequestID: head.RequestID,
		Subtype:   body.Subtype,
		Request:   head.Request,
	}, nil
}

func decodeControlResponse(trimmed []byte, head lineHead) (Frame, error) {
	if len(head.Response) == 0 {
		return nil, agenterrs.NewDecodeError("control_response missing response body", trimmed, nil)
	}

	var body responseBody
	if err := json.Unmarshal(head.Response, &body); err != nil {
		return nil, agenterrs.NewDecodeError("control_response body is not an object", trimmed, err)
	}
	if body.RequestID == "" {
		return nil, agenterrs.NewDecodeError("control_response missing request_id", trimmed, nil)
	}

	return ControlResponse{
		RequestID: body.RequestID,
		Subtype:   body.Subtype,
		Result:    body.Response,
		Error:     errorText(body.Error),
	}, nil
}

// errorText renders the error field of a response body, which the protocol
// usually carries as a string but may extend to a structured object.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return string(raw)
}
