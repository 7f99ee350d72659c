package domain

import "time"

// SessionInfo es la metadata de una sesión de chat.
type SessionInfo struct {
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Name         string    `json:"name"`
}

// SessionSummary es una entrada del listado de sesiones, ordenado por
// fecha de creación descendente.
type SessionSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Name         string    `json:"name"`
}

// ModelInfo describe un modelo disponible en el backend de inferencia.
type ModelInfo struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Size       int64     `json:"size,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}
