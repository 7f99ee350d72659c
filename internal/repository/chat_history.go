package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"llm-chat/internal/domain"
)

var (
	ErrStoreUnavailable = errors.New("chat history store unavailable")
	ErrInvalidSession   = errors.New("invalid session id")
	ErrInvalidMessage   = errors.New("invalid message")
)

const (
	sessionKeyPrefix = "chat:"
	metaKeySuffix    = ":meta"

	metaFieldCreatedAt = "created_at"
	metaFieldCount     = "message_count"
	metaFieldName      = "chat_name"

	defaultSessionName = "New Chat"
	scanPageSize       = 100
)

// ChatHistory es la única autoridad sobre el estado persistido de las
// conversaciones.
type ChatHistory interface {
	CreateSession(ctx context.Context, name string) (string, error)
	AddMessage(ctx context.Context, sessionID string, role domain.Role, content string) error
	GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	GetSessionInfo(ctx context.Context, sessionID string) domain.SessionInfo
	ListSessions(ctx context.Context) []domain.SessionSummary
	RenameSession(ctx context.Context, sessionID, name string) bool
	DeleteSession(ctx context.Context, sessionID string) bool
	ClearAllSessions(ctx context.Context) bool
}

// redisCmdable cubre los comandos de Redis que usa el store; *redis.Client
// lo satisface y los tests lo reemplazan por un fake.
type redisCmdable interface {
	Ping(ctx context.Context) *redis.StatusCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisChatHistory implementa ChatHistory sobre Redis: los mensajes de una
// sesión viven en una lista bajo el id de sesión y la metadata en un hash
// companion con sufijo ":meta". El contador de mensajes se mantiene con
// HINCRBY, nunca recalculando la lista.
type RedisChatHistory struct {
	client redisCmdable
	logger *zap.Logger
	codec  MessageCodec

	maxRetries    int
	retryInterval time.Duration
	sleep         func(time.Duration)
	now           func() time.Time
}

// NewRedisChatHistory conecta con Redis verificando conectividad con un
// ping y un presupuesto acotado de reintentos. Agotado el presupuesto
// devuelve ErrStoreUnavailable; las operaciones posteriores reconectan de
// forma transparente vía go-redis.
func NewRedisChatHistory(ctx context.Context, addr, password string, db, maxRetries int, retryInterval time.Duration, logger *zap.Logger) (*RedisChatHistory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	h := newRedisChatHistory(client, maxRetries, retryInterval, logger)
	if err := h.pingWithRetry(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

func newRedisChatHistory(client redisCmdable, maxRetries int, retryInterval time.Duration, logger *zap.Logger) *RedisChatHistory {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryInterval <= 0 {
		retryInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisChatHistory{
		client:        client,
		logger:        logger,
		maxRetries:    maxRetries,
		retryInterval: retryInterval,
		sleep:         time.Sleep,
		now:           time.Now,
	}
}

func (h *RedisChatHistory) pingWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= h.maxRetries; attempt++ {
		if err := h.client.Ping(ctx).Err(); err != nil {
			lastErr = err
			h.logger.Warn("redis connection attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", h.maxRetries),
				zap.Error(err),
			)
			if attempt < h.maxRetries {
				h.sleep(h.retryInterval)
			}
			continue
		}
		h.logger.Info("connected to redis")
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}

// CreateSession genera un id nuevo y escribe la metadata completa antes de
// devolverlo. El id ordena por fecha de creación y nunca se reutiliza.
func (h *RedisChatHistory) CreateSession(ctx context.Context, name string) (string, error) {
	now := h.now().UTC()
	stamp := now.Format("20060102_150405")
	sessionID := sessionKeyPrefix + stamp + "_" + uuid.NewString()[:8]

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Chat " + now.Format("20060102_1504")
	}

	err := h.client.HSet(ctx, sessionID+metaKeySuffix,
		metaFieldCreatedAt, now.Format(time.RFC3339Nano),
		metaFieldCount, 0,
		metaFieldName, name,
	).Err()
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	h.logger.Info("session created", zap.String("session_id", sessionID))
	return sessionID, nil
}

// AddMessage agrega un turno al final de la sesión e incrementa el
// contador de metadata. Si el incremento falla después de un append
// exitoso el error se propaga: un contador silenciosamente desfasado
// rompe el invariante count == len(messages).
func (h *RedisChatHistory) AddMessage(ctx context.Context, sessionID string, role domain.Role, content string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || !strings.HasPrefix(sessionID, sessionKeyPrefix) {
		return fmt.Errorf("%w: %q", ErrInvalidSession, sessionID)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, role)
	}

	payload, err := h.codec.Encode(domain.Message{
		Role:      role,
		Content:   content,
		Timestamp: h.now().UTC(),
	})
	if err != nil {
		return err
	}

	if err := h.client.RPush(ctx, sessionID, payload).Err(); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if err := h.client.HIncrBy(ctx, sessionID+metaKeySuffix, metaFieldCount, 1).Err(); err != nil {
		return fmt.Errorf("increment message count: %w", err)
	}
	return nil
}

// GetMessages devuelve los mensajes en orden de inserción. Una sesión
// desconocida devuelve lista vacía, no error; un registro corrupto se
// salta con warning en vez de abortar la lectura completa.
func (h *RedisChatHistory) GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return []domain.Message{}, nil
	}

	raw, err := h.client.LRange(ctx, sessionID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, entry := range raw {
		msg, err := h.codec.Decode(entry)
		if err != nil {
			h.logger.Warn("skipping corrupt message record",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// GetSessionInfo nunca falla: si la sesión o su metadata no existen
// sintetiza un registro por defecto para que la UI siempre tenga algo que
// renderizar.
func (h *RedisChatHistory) GetSessionInfo(ctx context.Context, sessionID string) domain.SessionInfo {
	info := domain.SessionInfo{
		CreatedAt:    h.now().UTC(),
		MessageCount: 0,
		Name:         defaultSessionName,
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return info
	}

	meta, err := h.client.HGetAll(ctx, sessionID+metaKeySuffix).Result()
	if err != nil {
		h.logger.Warn("read session metadata failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return info
	}
	if len(meta) == 0 {
		return info
	}

	if t, err := time.Parse(time.RFC3339Nano, meta[metaFieldCreatedAt]); err == nil {
		info.CreatedAt = t
	}
	if n, err := strconv.Atoi(meta[metaFieldCount]); err == nil && n >= 0 {
		info.MessageCount = n
	}
	if name := strings.TrimSpace(meta[metaFieldName]); name != "" {
		info.Name = name
	} else {
		info.Name = "Chat " + strings.TrimPrefix(sessionID, sessionKeyPrefix)
	}
	return info
}

// ListSessions enumera las sesiones por patrón de clave, más reciente
// primero. Una sesión recién creada existe solo como hash de metadata
// hasta el primer RPUSH, así que el id se deriva de ambas claves y se
// deduplica. Metadata faltante o malformada degrada esa entrada a
// defaults en vez de abortar el listado.
func (h *RedisChatHistory) ListSessions(ctx context.Context) []domain.SessionSummary {
	var keys []string
	cursor := uint64(0)
	for {
		page, next, err := h.client.Scan(ctx, cursor, sessionKeyPrefix+"*", scanPageSize).Result()
		if err != nil {
			h.logger.Warn("session scan failed", zap.Error(err))
			return []domain.SessionSummary{}
		}
		keys = append(keys, page...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	seen := make(map[string]struct{}, len(keys))
	summaries := make([]domain.SessionSummary, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimSuffix(key, metaKeySuffix)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		info := h.GetSessionInfo(ctx, id)
		summaries = append(summaries, domain.SessionSummary{
			ID:           id,
			CreatedAt:    info.CreatedAt,
			MessageCount: info.MessageCount,
			Name:         info.Name,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID > summaries[j].ID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries
}

// RenameSession devuelve false, no error, con id o nombre vacío: renombrar
// es una acción best-effort de la UI.
func (h *RedisChatHistory) RenameSession(ctx context.Context, sessionID, name string) bool {
	sessionID = strings.TrimSpace(sessionID)
	name = strings.TrimSpace(name)
	if sessionID == "" || name == "" {
		return false
	}

	if err := h.client.HSet(ctx, sessionID+metaKeySuffix, metaFieldName, name).Err(); err != nil {
		h.logger.Warn("rename session failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// DeleteSession elimina lista de mensajes y metadata en un único DEL.
func (h *RedisChatHistory) DeleteSession(ctx context.Context, sessionID string) bool {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false
	}

	if err := h.client.Del(ctx, sessionID, sessionID+metaKeySuffix).Err(); err != nil {
		h.logger.Warn("delete session failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return false
	}
	h.logger.Info("session deleted", zap.String("session_id", sessionID))
	return true
}

// ClearAllSessions borra toda clave bajo el patrón de sesiones. Un fallo a
// mitad del loop se reporta como fallo general; lo ya borrado no se
// restaura.
func (h *RedisChatHistory) ClearAllSessions(ctx context.Context) bool {
	ok := true
	cursor := uint64(0)
	for {
		page, next, err := h.client.Scan(ctx, cursor, sessionKeyPrefix+"*", scanPageSize).Result()
		if err != nil {
			h.logger.Warn("session scan failed", zap.Error(err))
			return false
		}
		for _, key := range page {
			if err := h.client.Del(ctx, key).Err(); err != nil {
				h.logger.Warn("delete key failed", zap.String("key", key), zap.Error(err))
				ok = false
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ok
}
