package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"llm-chat/internal/config"
	"llm-chat/internal/llm"
	"llm-chat/internal/repository"
	"llm-chat/internal/service"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	history, err := repository.NewRedisChatHistory(
		ctx,
		cfg.RedisAddr,
		cfg.RedisPassword,
		cfg.RedisDB,
		cfg.RedisMaxRetries,
		cfg.RedisRetryInterval,
		logger,
	)
	if err != nil {
		log.Fatalf("no se pudo conectar al store de historial: %v", err)
	}

	llmClient := llm.NewOllamaClient(cfg.OllamaHost, cfg.OllamaModel, cfg.OllamaTimeout, logger)
	chatSvc := service.NewChatService(logger, history, llmClient, cfg.OllamaModel, cfg.OllamaTemperature, cfg.OllamaMaxTokens)

	fmt.Println("===== LLM Chat =====")
	fmt.Println("Modelos disponibles:")
	for _, m := range chatSvc.Models(ctx) {
		fmt.Printf("  - %s (%s)\n", m.Name, m.Status)
	}

	for {
		fmt.Println("\n[1] Nuevo chat")
		fmt.Println("[2] Continuar sesion")
		fmt.Println("[3] Borrar sesion")
		fmt.Println("[4] Borrar todas las sesiones")
		fmt.Println("[5] Salir")
		fmt.Print("Selecciona una opcion: ")

		line, _ := reader.ReadString('\n')
		switch strings.TrimSpace(line) {
		case "1":
			sessionID, err := history.CreateSession(ctx, "")
			if err != nil {
				fmt.Printf("error creando sesion: %v\n", err)
				continue
			}
			chatFlow(ctx, reader, chatSvc, history, sessionID)
		case "2":
			sessionID := pickSession(ctx, reader, history)
			if sessionID == "" {
				continue
			}
			replaySession(ctx, history, sessionID)
			chatFlow(ctx, reader, chatSvc, history, sessionID)
		case "3":
			sessionID := pickSession(ctx, reader, history)
			if sessionID == "" {
				continue
			}
			if history.DeleteSession(ctx, sessionID) {
				fmt.Println("Sesion borrada.")
			} else {
				fmt.Println("No se pudo borrar la sesion.")
			}
		case "4":
			if history.ClearAllSessions(ctx) {
				fmt.Println("Todas las sesiones borradas.")
			} else {
				fmt.Println("No se pudieron borrar todas las sesiones.")
			}
		case "5":
			os.Exit(0)
		default:
			fmt.Println("Opcion invalida.")
		}
	}
}

func pickSession(ctx context.Context, reader *bufio.Reader, history repository.ChatHistory) string {
	sessions := history.ListSessions(ctx)
	if len(sessions) == 0 {
		fmt.Println("No hay sesiones guardadas.")
		return ""
	}

	fmt.Println("Sesiones disponibles:")
	for i, s := range sessions {
		fmt.Printf("[%d] %s (%d mensajes, %s)\n", i+1, s.Name, s.MessageCount, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Print("Selecciona una sesion: ")

	line, _ := reader.ReadString('\n')
	idx, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || idx < 1 || idx > len(sessions) {
		fmt.Println("Seleccion invalida.")
		return ""
	}
	return sessions[idx-1].ID
}

func replaySession(ctx context.Context, history repository.ChatHistory, sessionID string) {
	messages, err := history.GetMessages(ctx, sessionID)
	if err != nil {
		fmt.Printf("error leyendo mensajes: %v\n", err)
		return
	}
	for _, m := range messages {
		fmt.Printf("[%s] %s\n", m.Role, m.Content)
	}
}

func chatFlow(ctx context.Context, reader *bufio.Reader, chatSvc *service.ChatService, history repository.ChatHistory, sessionID string) {
	info := history.GetSessionInfo(ctx, sessionID)
	fmt.Printf("---- %s (escribe 'salir' para terminar chat) ----\n", info.Name)

	for {
		fmt.Print("Tu > ")
		text, err := reader.ReadString('\n')
		if err != nil {
			fmt.Printf("error leyendo input: %v\n", err)
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "salir") || strings.EqualFold(text, "exit") {
			fmt.Println("Saliendo del chat...")
			return
		}

		fmt.Print("Asistente > ")
		printed := 0
		_, err = chatSvc.Send(ctx, sessionID, text, service.GenerateOptions{}, func(partial string) {
			fmt.Print(partial[printed:])
			printed = len(partial)
		})
		if err != nil {
			fmt.Printf("\nerror generando respuesta: %v\n", err)
			continue
		}
		fmt.Println()
	}
}
