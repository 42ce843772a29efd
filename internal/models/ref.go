package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Ref es la referencia normalizada a un usuario (reportedBy, assignedTo).
// El backend a veces manda solo el id y a veces el objeto expandido; la forma
// se resuelve aquí, una sola vez, al decodificar.
type Ref struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

func (r Ref) IsZero() bool { return r.ID == "" }

// DisplayName cae al id cuando no hay nombre.
func (r Ref) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Ref{}
		return nil
	}
	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Ref{ID: id}
		return nil
	case '{':
		var obj struct {
			UserID json.RawMessage `json:"userId"`
			ID     json.RawMessage `json:"id"`
			Name   string          `json:"name"`
			Email  string          `json:"email"`
			Role   string          `json:"role"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		id := rawID(obj.UserID)
		if id == "" {
			id = rawID(obj.ID)
		}
		*r = Ref{ID: id, Name: obj.Name, Email: obj.Email, Role: obj.Role}
		return nil
	default:
		if id := rawID(data); id != "" {
			*r = Ref{ID: id}
			return nil
		}
		return fmt.Errorf("referencia inválida: %s", data)
	}
}

// rawID convierte un id JSON (string o número) a string.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}
