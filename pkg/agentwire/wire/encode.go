package wire

import (
	"encoding/json"
	"maps"
)

// EncodeControlRequest builds the line for an outbound control request. The
// subtype-specific fields are merged with the subtype into the nested
// request object.
func EncodeControlRequest(requestID, subtype string, fields map[string]any) ([]byte, error) {
	request := make(map[string]any, len(fields)+1)
	maps.Copy(request, fields)
	request["subtype"] = subtype

	return json.Marshal(map[string]any{
		"type":       TypeControlRequest,
		"request_id": requestID,
		"request":    request,
	})
}

// EncodeSuccessResponse builds the line answering a control request with a
// success outcome carrying payload.
func EncodeSuccessResponse(requestID string, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": TypeControlResponse,
		"response": map[string]any{
			"subtype":    OutcomeSuccess,
			"request_id": requestID,
			"response":   payload,
		},
	})
}

// EncodeErrorResponse builds the line answering a control request with an
// error outcome carrying message.
func EncodeErrorResponse(requestID, message string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": TypeControlResponse,
		"response": map[string]any{
			"subtype":    OutcomeError,
			"request_id": requestID,
			"error":      message,
		},
	})
}
