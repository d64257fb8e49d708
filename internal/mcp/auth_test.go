package mcp

import (
	"encoding/json"
	"testing"

	"pgregory.net/rapid"
)

func testMCPErrorResponse_Shape(t *rapid.T) {
	id := rapid.Int64().Draw(t, "id")
	code := rapid.SampledFrom([]int{
		ErrorCodeParseError,
		ErrorCodeInvalidRequest,
		ErrorCodeMethodNotFound,
		ErrorCodeInvalidParams,
		ErrorCodeInternalError,
		ErrorCodeUnauthenticated,
	}).Draw(t, "code")
	msg := rapid.String().Draw(t, "msg")

	raw, err := json.Marshal(MCPErrorResponse(id, code, msg))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int64  `json:"id"`
		Error   struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.JSONRPC != "2.0" || decoded.ID != id || decoded.Error.Code != code {
		t.Fatalf("envelope mismatch: %s", raw)
	}
	if decoded.Error.Message != msg {
		t.Fatalf("message mismatch: got=%q want=%q", decoded.Error.Message, msg)
	}
}

func TestMCPErrorResponse_Shape(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testMCPErrorResponse_Shape)
}

func FuzzMCPErrorResponse_Shape(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testMCPErrorResponse_Shape))
}
