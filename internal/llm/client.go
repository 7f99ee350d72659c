package llm

import (
	"context"
	"errors"

	"llm-chat/internal/domain"
)

var (
	// ErrConnection marca fallos de transporte hacia el backend.
	ErrConnection = errors.New("llm backend unreachable")
	// ErrGeneration marca backend alcanzable pero sin texto utilizable.
	ErrGeneration = errors.New("llm generation failed")
)

// Message es un turno en el formato que espera el backend de chat.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request reúne prompt, historial y parámetros de una generación. El
// mensaje de sistema viaja solo aquí; nunca se persiste como turno.
type Request struct {
	Model       string
	Temperature float64
	MaxTokens   int
	System      string
	History     []Message
	Prompt      string
}

// Client define la interfaz hacia el backend de inferencia. La variante
// streaming invoca onFragment cero o más veces, en orden de emisión,
// antes de devolver el texto final concatenado.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	GenerateStream(ctx context.Context, req Request, onFragment func(string)) (string, error)
	ListModels(ctx context.Context) ([]domain.ModelInfo, error)
}
