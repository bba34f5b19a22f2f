package api

import (
	"context"
	"net/http"
	"sort"
)

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components []componentStatus `json:"components"`
}

// Pinger lets optional dependencies report their own health on /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health handles GET /healthz, probing the datastore and any registered
// auxiliary components.
func (h *Handler) Health(extras map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		ctx := r.Context()
		overall := "ok"
		statusCode := http.StatusOK
		record := func(component string, err error) componentStatus {
			status := "ok"
			message := ""
			if err != nil {
				status = "degraded"
				message = err.Error()
				overall = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
			return componentStatus{Component: component, Status: status, Error: message}
		}

		components := make([]componentStatus, 0, 1+len(extras))
		if h.Store != nil {
			components = append(components, record("datastore", h.Store.Ping(ctx)))
		}
		names := make([]string, 0, len(extras))
		for name := range extras {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if pinger := extras[name]; pinger != nil {
				components = append(components, record(name, pinger.Ping(ctx)))
			}
		}
		writeJSON(w, statusCode, healthResponse{Status: overall, Components: components})
	}
}
