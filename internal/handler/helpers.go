package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rolekeeper/rolekeeper/internal/console"
	"github.com/rolekeeper/rolekeeper/internal/hasura"
	"github.com/rolekeeper/rolekeeper/internal/metadata"
	"github.com/rolekeeper/rolekeeper/internal/model"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeList wraps items in the list envelope.
func writeList[T any](w http.ResponseWriter, items []T, start time.Time) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: items,
		Meta: &model.ResponseMeta{
			Count:  len(items),
			TookMs: float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeSessionError maps session, validation and transport errors to the
// error envelope.
func writeSessionError(w http.ResponseWriter, err error) {
	code, ctx := classifyError(err)
	writeError(w, code, err.Error(), ctx)
}

// classifyError returns the HTTP status for err and any context worth
// returning to the caller.
func classifyError(err error) (int, map[string]interface{}) {
	var (
		verr *metadata.ValidationError
		terr *hasura.TransportError
	)
	switch {
	case errors.As(err, &verr):
		ctx := map[string]interface{}{"field": verr.Field}
		if verr.Role != "" {
			ctx["role"] = verr.Role
		}
		if errors.Is(err, metadata.ErrRoleExists) {
			return http.StatusConflict, ctx
		}
		return http.StatusUnprocessableEntity, ctx

	case errors.As(err, &terr):
		ctx := map[string]interface{}{
			"operation":       terr.Op,
			"upstream_status": terr.Status,
			"upstream_body":   terr.Body,
		}
		if detail, ok := terr.Detail(); ok {
			ctx["upstream_code"] = detail.Code
		}
		return http.StatusBadGateway, ctx

	case errors.Is(err, console.ErrNotLoaded):
		return http.StatusConflict, nil

	case errors.Is(err, console.ErrUnknownRole):
		return http.StatusNotFound, nil

	case errors.Is(err, metadata.ErrNotObject):
		return http.StatusBadGateway, nil

	default:
		// Network failures reaching the metadata service.
		return http.StatusBadGateway, nil
	}
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryBool extracts a boolean query parameter. Returns false if the parameter
// is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
