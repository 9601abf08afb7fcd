package web

import (
	"encoding/json"
	"net/http"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/schema"
)

// handleSync triggers a reconciliation pass: GET/POST /sync?type=numbers|e911.
//
// Two maintenance forms share the endpoint, matching what operator pages
// expect: reset=1 acknowledges the change baseline and force_reset=1
// clears a wedged in-progress flag.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resourceTypeParam(w, r)
	if !ok {
		return
	}

	if hasParam(r, "force_reset") {
		if err := s.svc.ForceRelease(r.Context(), rt); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "message": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "force reset successful"})
		return
	}

	if hasParam(r, "reset") {
		if err := s.svc.Acknowledge(r.Context(), rt); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "message": err.Error()})
			return
		}
		s.Broadcast(Event{Type: EventAcknowledged, Data: mustJSON(map[string]string{"resource_type": string(rt)})})
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "reset successful"})
		return
	}

	partition := ""
	if rt == schema.ResourceNumbers {
		partition = r.FormValue("trunk_group")
		if partition == "" {
			partition = s.trunkGroup
		}
	}

	outcome := s.svc.Sync(r.Context(), rt, partition)
	s.Broadcast(Event{Type: EventSyncComplete, Data: mustJSON(map[string]interface{}{
		"resource_type": string(rt),
		"outcome":       outcome,
	})})

	// A failed sync is "try again later" for the poller, never an HTTP
	// error; previously cached data is still being served.
	writeJSON(w, http.StatusOK, outcome)
}

// handleStatus reports the poll snapshot: GET /status?type=numbers|e911.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resourceTypeParam(w, r)
	if !ok {
		return
	}

	view, err := s.svc.Status(r.Context(), rt)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleNumbers serves the cached number inventory:
// GET /numbers?trunk_group=NAME.
func (s *Server) handleNumbers(w http.ResponseWriter, r *http.Request) {
	trunkGroup := r.FormValue("trunk_group")
	if trunkGroup == "" {
		trunkGroup = s.trunkGroup
	}

	numbers, err := s.svc.Numbers(r.Context(), trunkGroup)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"numbers": numbers,
		"count":   len(numbers),
	})
}

// handleE911 serves the cached E911 records: GET /e911.
func (s *Server) handleE911(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.E911Records(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// resourceTypeParam parses and validates the type parameter, writing the
// error response itself when invalid.
func (s *Server) resourceTypeParam(w http.ResponseWriter, r *http.Request) (schema.ResourceType, bool) {
	rt, err := schema.ParseResourceType(r.FormValue("type"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": err.Error()})
		return "", false
	}
	return rt, true
}

// hasParam reports whether a query/form parameter is present.
func hasParam(r *http.Request, name string) bool {
	if r.URL.Query().Has(name) {
		return true
	}
	return r.FormValue(name) != ""
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mustJSON marshals v, panicking only on programmer error (unmarshalable
// types).
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
