package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/starmap-tiles/server/internal/mapdata"
	"github.com/starmap-tiles/server/internal/service"
)

const maxRPCBody = 64 * 1024

// rpcHandler serves the JSON-RPC map module. Protocol errors are answered
// with a JSON-RPC error object and HTTP 200.
func rpcHandler(svc *service.StarMapService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRPCBody))
		if err != nil {
			http.Error(w, "failed to read request", http.StatusBadRequest)
			return
		}

		var req mapdata.Request
		if err := json.Unmarshal(body, &req); err != nil {
			writeRPCError(w, nil, mapdata.CodeParseError, "parse error")
			return
		}
		if req.Method == "" {
			writeRPCError(w, req.ID, mapdata.CodeInvalidRequest, "missing method")
			return
		}
		if req.Method != mapdata.MethodGetStarMap {
			writeRPCError(w, req.ID, mapdata.CodeMethodNotFound, "method not found: "+req.Method)
			return
		}

		params, err := mapdata.DecodeStarMapParams(req.Params)
		if err != nil {
			writeRPCError(w, req.ID, mapdata.CodeInvalidParams, err.Error())
			return
		}

		stars, err := svc.QueryRegion(r.Context(), params.Region())
		if err != nil {
			code := mapdata.CodeInternalError
			if errors.Is(err, mapdata.ErrInvalidRegion) {
				code = mapdata.CodeInvalidParams
			}
			writeRPCError(w, req.ID, code, err.Error())
			return
		}

		result, err := json.Marshal(mapdata.StarMapResult{Stars: stars})
		if err != nil {
			writeRPCError(w, req.ID, mapdata.CodeInternalError, err.Error())
			return
		}
		writeJSON(w, mapdata.Response{JSONRPC: "2.0", Result: result, ID: rpcID(req.ID)})
	}
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	writeJSON(w, mapdata.Response{
		JSONRPC: "2.0",
		Error:   &mapdata.Error{Code: code, Message: message},
		ID:      rpcID(id),
	})
}

func rpcID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
