package llm

import (
	"context"
	"strings"

	"llm-chat/internal/domain"
)

// MockClient permite tests sin llamar a un backend real.
type MockClient struct {
	Response  string
	Fragments []string
	Err       error
	Models    []domain.ModelInfo
	ListErr   error

	LastRequest Request
	Calls       int
}

func (m *MockClient) Generate(ctx context.Context, req Request) (string, error) {
	m.LastRequest = req
	m.Calls++
	return m.Response, m.Err
}

func (m *MockClient) GenerateStream(ctx context.Context, req Request, onFragment func(string)) (string, error) {
	m.LastRequest = req
	m.Calls++
	for _, f := range m.Fragments {
		if onFragment != nil {
			onFragment(f)
		}
	}
	if m.Err != nil {
		return strings.Join(m.Fragments, ""), m.Err
	}
	return strings.Join(m.Fragments, ""), nil
}

func (m *MockClient) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	return m.Models, m.ListErr
}
