package domain

import "time"

// Role identifica quién produjo un mensaje dentro de una conversación.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid indica si el rol es uno de los que se persisten como turno. El
// mensaje de sistema nunca se guarda; se antepone solo al generar.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message es un turno de conversación. Pertenece a una única sesión y es
// inmutable una vez guardado.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
