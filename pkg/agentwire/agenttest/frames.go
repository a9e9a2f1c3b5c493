package agenttest

import (
	"encoding/json"
	"fmt"
)

// SuccessResponse builds a control_response line with a success
// outcome carrying payload.
func SuccessResponse(requestID string, payload any) []byte {
	line, err := json.Marshal(map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": requestID,
			"response":   payload,
		},
	})
	if err != nil {
		panic(fmt.Sprintf("agenttest: unencodable payload: %v", err))
	}
	return line
}

// ErrorResponse builds a control_response line with an error outcome.
func ErrorResponse(requestID, message string) []byte {
	line, _ := json.Marshal(map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "error",
			"request_id": requestID,
			"error":      message,
		},
	})
	return line
}

// ControlRequest builds an inbound control_request line with the given
// subtype-specific fields.
func ControlRequest(requestID, subtype string, fields map[string]any) []byte {
	request := map[string]any{"subtype": subtype}
	for k, v := range fields {
		request[k] = v
	}
	line, err := json.Marshal(map[string]any{
		"type":       "control_request",
		"request_id": requestID,
		"request":    request,
	})
	if err != nil {
		panic(fmt.Sprintf("agenttest: unencodable request: %v", err))
	}
	return line
}

// StreamEvent wraps an event body in the stream_event envelope.
func StreamEvent(event map[string]any) []byte {
	line, err := json.Marshal(map[string]any{
		"type":  "stream_event",
		"event": event,
	})
	if err != nil {
		panic(fmt.Sprintf("agenttest: unencodable event: %v", err))
	}
	return line
}

// MessageStart builds a message_start stream event.
func MessageStart(messageID, model string) []byte {
	return StreamEvent(map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":    messageID,
			"model": model,
			"role":  "assistant",
		},
	})
}

// TextBlockStart builds a content_block_start event for a text block.
func TextBlockStart(index int) []byte {
	return StreamEvent(map[string]any{
		"type":          "content_block_start",
		"index":         index,
		"content_block": map[string]any{"type": "text", "text": ""},
	})
}

// TextDelta builds a content_block_delta event carrying text.
func TextDelta(index int, text string) []byte {
	return StreamEvent(map[string]any{
		"type":  "content_block_delta",
		"index": index,
		"delta": map[string]any{"type": "text_delta", "text": text},
	})
}

// ContentBlockStop builds a content_block_stop event.
func ContentBlockStop(index int) []byte {
	return StreamEvent(map[string]any{
		"type":  "content_block_stop",
		"index": index,
	})
}

// MessageDelta builds a message_delta event; stopReason "" means null.
func MessageDelta(stopReason string) []byte {
	delta := map[string]any{}
	if stopReason != "" {
		delta["stop_reason"] = stopReason
	} else {
		delta["stop_reason"] = nil
	}
	return StreamEvent(map[string]any{
		"type":  "message_delta",
		"delta": delta,
	})
}

// MessageStop builds a message_stop event.
func MessageStop() []byte {
	return StreamEvent(map[string]any{"type": "message_stop"})
}

// SystemInit builds the agent's init system message.
func SystemInit(sessionID, model string) []byte {
	line, _ := json.Marshal(map[string]any{
		"type":       "system",
		"subtype":    "init",
		"session_id": sessionID,
		"model":      model,
	})
	return line
}

// RequestIDOf extracts the request_id of an outbound control_request
// line, or "" when the line is not one.
func RequestIDOf(line []byte) string {
	var head struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(line, &head); err != nil || head.Type != "control_request" {
		return ""
	}
	return head.RequestID
}

// SubtypeOf extracts the request subtype of an outbound
// control_request line, or "" when the line is not one.
func SubtypeOf(line []byte) string {
	var head struct {
		Type    string `json:"type"`
		Request struct {
			Subtype string `json:"subtype"`
		} `json:"request"`
	}
	if err := json.Unmarshal(line, &head); err != nil || head.Type != "control_request" {
		return ""
	}
	return head.Request.Subtype
}
