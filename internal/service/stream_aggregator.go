package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyStream marca un stream que terminó sin producir texto. Es un
// fallo, no un mensaje vacío: nunca se persiste.
var ErrEmptyStream = errors.New("stream produced no output")

// GenerationError envuelve un fallo de generación conservando el texto
// parcial que ya se mostró; el caller decide qué hacer con él.
type GenerationError struct {
	Partial string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Partial == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (with %d chars of partial output)", e.Err, len(e.Partial))
}

func (e *GenerationError) Unwrap() error { return e.Err }

// StreamAggregator acumula fragmentos en orden de llegada y, tras cada
// uno, expone la concatenación actual al observador para que la UI pueda
// repintar a mitad de la generación.
type StreamAggregator struct {
	builder  strings.Builder
	onUpdate func(partial string)
}

// NewStreamAggregator registra el observador de texto parcial; puede ser
// nil si no hay nadie mirando.
func NewStreamAggregator(onUpdate func(string)) *StreamAggregator {
	return &StreamAggregator{onUpdate: onUpdate}
}

// Append agrega un fragmento al buffer y notifica el parcial completo.
func (a *StreamAggregator) Append(fragment string) {
	a.builder.WriteString(fragment)
	if a.onUpdate != nil {
		a.onUpdate(a.builder.String())
	}
}

// Partial devuelve la concatenación acumulada hasta ahora.
func (a *StreamAggregator) Partial() string {
	return a.builder.String()
}

// Final devuelve el texto canónico completo. Un stream agotado sin emitir
// nada utilizable se distingue como fallo.
func (a *StreamAggregator) Final() (string, error) {
	text := a.builder.String()
	if strings.TrimSpace(text) == "" {
		return "", &GenerationError{Err: ErrEmptyStream}
	}
	return text, nil
}
