package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Total     *int        `json:"total,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteSuccess writes a successful envelope.
func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, Envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// WriteList writes a successful envelope with the number of items in data.
func WriteList(w http.ResponseWriter, message string, data interface{}, total int) {
	WriteJSON(w, http.StatusOK, Envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Total:     &total,
		Timestamp: time.Now().UTC(),
	})
}

// WriteError writes a failed envelope without error detail.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteFailure(w, status, message, nil, false)
}

// WriteFailure writes a failed envelope. err's text is included only when
// detail is set.
func WriteFailure(w http.ResponseWriter, status int, message string, err error, detail bool) {
	env := Envelope{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if detail && err != nil {
		env.Error = err.Error()
	}
	WriteJSON(w, status, env)
}
