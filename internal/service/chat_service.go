package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"llm-chat/internal/domain"
	"llm-chat/internal/llm"
	"llm-chat/internal/repository"
)

var (
	ErrEmptyPrompt  = errors.New("empty prompt")
	ErrTurnInFlight = errors.New("turn already in flight for session")
)

const (
	// historyWindow limita cuántos turnos previos viajan como contexto.
	historyWindow = 10

	namingTemperature = 0.7
	maxChatNameLen    = 50

	systemPrompt = `You are Lucy, an advanced AI assistant with access to ` +
		`comprehensive knowledge across all domains. You think analytically, ` +
		`communicate with clarity and precision, and keep a professional yet ` +
		`friendly tone. You are aware that you are an AI and you are direct ` +
		`and honest in all interactions.`

	namingPrompt = `Based on the following conversation, create a concise ` +
		`4-5 word title that captures the main topic or purpose. Make it ` +
		`clear and descriptive.
Initial user message:
%s
Your response:
%s
Generate only the title, nothing else.`
)

// GenerateOptions son los parámetros por turno; los valores ausentes
// caen a los defaults de configuración. Temperature es puntero para que
// un 0 explícito (decodificación greedy) sea distinguible de "sin
// especificar".
type GenerateOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Turn es un intercambio completo: mensaje de usuario y su respuesta.
type Turn struct {
	UserMessage      domain.Message `json:"user_message"`
	AssistantMessage domain.Message `json:"assistant_message"`
}

// ChatService orquesta un turno de conversación: registra el mensaje del
// usuario, llama al backend (batch o streaming) y persiste la respuesta.
type ChatService struct {
	logger  *zap.Logger
	history repository.ChatHistory
	client  llm.Client

	defaultModel       string
	defaultTemperature float64
	defaultMaxTokens   int

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewChatService(logger *zap.Logger, history repository.ChatHistory, client llm.Client, model string, temperature float64, maxTokens int) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		logger:             logger,
		history:            history,
		client:             client,
		defaultModel:       model,
		defaultTemperature: temperature,
		defaultMaxTokens:   maxTokens,
		inFlight:           make(map[string]bool),
	}
}

// Send ejecuta un turno. El mensaje del usuario se persiste antes de
// llamar al backend, así nunca se pierde aunque la generación falle; el
// par no es transaccional y la UI tolera un turno de usuario sin
// respuesta. Con onPartial no nulo la generación es streaming y el
// observador recibe la concatenación parcial tras cada fragmento.
func (s *ChatService) Send(ctx context.Context, sessionID, prompt string, opts GenerateOptions, onPartial func(string)) (Turn, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Turn{}, ErrEmptyPrompt
	}

	if err := s.beginTurn(sessionID); err != nil {
		return Turn{}, err
	}
	defer s.endTurn(sessionID)

	// El historial se lee antes de registrar el turno actual.
	history, err := s.history.GetMessages(ctx, sessionID)
	if err != nil {
		s.logger.Warn("read history failed, continuing without context",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		history = nil
	}

	if err := s.history.AddMessage(ctx, sessionID, domain.RoleUser, prompt); err != nil {
		return Turn{}, fmt.Errorf("save user message: %w", err)
	}
	userAt := time.Now().UTC()

	req := s.buildRequest(prompt, history, opts)

	var text string
	if onPartial != nil {
		agg := NewStreamAggregator(onPartial)
		if _, err := s.client.GenerateStream(ctx, req, agg.Append); err != nil {
			return Turn{}, &GenerationError{Partial: agg.Partial(), Err: err}
		}
		text, err = agg.Final()
		if err != nil {
			return Turn{}, err
		}
	} else {
		text, err = s.client.Generate(ctx, req)
		if err != nil {
			return Turn{}, err
		}
		if strings.TrimSpace(text) == "" {
			return Turn{}, &GenerationError{Err: ErrEmptyStream}
		}
	}

	if err := s.history.AddMessage(ctx, sessionID, domain.RoleAssistant, text); err != nil {
		return Turn{}, fmt.Errorf("save assistant message: %w", err)
	}

	// Tras el primer intercambio completo se intenta nombrar la sesión.
	// Es estrictamente best-effort: corre aparte y nunca falla el turno.
	if s.history.GetSessionInfo(ctx, sessionID).MessageCount == 2 {
		go s.autoNameSession(sessionID, prompt, text)
	}

	return Turn{
		UserMessage:      domain.Message{Role: domain.RoleUser, Content: prompt, Timestamp: userAt},
		AssistantMessage: domain.Message{Role: domain.RoleAssistant, Content: text, Timestamp: time.Now().UTC()},
	}, nil
}

// Models devuelve los modelos disponibles, sustituyendo una entrada
// sintética con el modelo configurado cuando el backend no responde, para
// que la UI de selección nunca vea un conjunto vacío.
func (s *ChatService) Models(ctx context.Context) []domain.ModelInfo {
	models, err := s.client.ListModels(ctx)
	if err != nil {
		s.logger.Warn("list models failed", zap.Error(err))
	}
	if len(models) == 0 {
		return []domain.ModelInfo{{Name: s.defaultModel, Status: "available"}}
	}
	return models
}

func (s *ChatService) buildRequest(prompt string, history []domain.Message, opts GenerateOptions) llm.Request {
	if opts.Model == "" {
		opts.Model = s.defaultModel
	}
	temperature := s.defaultTemperature
	if opts.Temperature != nil && *opts.Temperature >= 0 {
		temperature = *opts.Temperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = s.defaultMaxTokens
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	past := make([]llm.Message, 0, len(history))
	for _, m := range history {
		past = append(past, llm.Message{Role: string(m.Role), Content: m.Content})
	}

	return llm.Request{
		Model:       opts.Model,
		Temperature: temperature,
		MaxTokens:   opts.MaxTokens,
		System:      systemPrompt,
		History:     past,
		Prompt:      prompt,
	}
}

func (s *ChatService) beginTurn(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[sessionID] {
		return ErrTurnInFlight
	}
	s.inFlight[sessionID] = true
	return nil
}

func (s *ChatService) endTurn(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, sessionID)
}

func (s *ChatService) autoNameSession(sessionID, prompt, response string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name, err := s.client.Generate(ctx, llm.Request{
		Model:       s.defaultModel,
		Temperature: namingTemperature,
		MaxTokens:   s.defaultMaxTokens,
		Prompt:      fmt.Sprintf(namingPrompt, strings.TrimSpace(prompt), strings.TrimSpace(response)),
	})
	if err != nil {
		s.logger.Warn("chat naming failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	name = cleanChatName(name)
	if name == "" {
		return
	}
	if !s.history.RenameSession(ctx, sessionID, name) {
		s.logger.Warn("rename session failed", zap.String("session_id", sessionID))
	}
}

func cleanChatName(name string) string {
	name = strings.ReplaceAll(name, "\n", " ")
	name = strings.Trim(strings.TrimSpace(name), `"`)
	runes := []rune(name)
	if len(runes) > maxChatNameLen {
		name = string(runes[:maxChatNameLen-3]) + "..."
	}
	return name
}
