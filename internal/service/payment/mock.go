package payment

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockVerifier — управляемый verifier для разработки и тестов: отвечает
// заранее заданной ошибкой и запоминает вызовы.
type MockVerifier struct {
	method domain.PaymentMethod
	mode   domain.VerificationMode

	mu        sync.Mutex
	VerifyErr error
	Calls     []MockVerifyCall
}

// MockVerifyCall — зафиксированный вызов Verify.
type MockVerifyCall struct {
	Ref           string
	ExpectedMinor int64
}

// NewMockVerifier создаёт mock для заданного метода и режима.
func NewMockVerifier(method domain.PaymentMethod, mode domain.VerificationMode) *MockVerifier {
	return &MockVerifier{method: method, mode: mode}
}

func (m *MockVerifier) Method() domain.PaymentMethod { return m.method }

func (m *MockVerifier) Mode() domain.VerificationMode { return m.mode }

func (m *MockVerifier) Verify(_ context.Context, ref string, expectedMinor int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockVerifyCall{Ref: ref, ExpectedMinor: expectedMinor})
	return m.VerifyErr
}

// SetVerifyErr задаёт результат последующих вызовов Verify.
func (m *MockVerifier) SetVerifyErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifyErr = err
}

// CallCount возвращает количество вызовов Verify.
func (m *MockVerifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

var _ domain.PaymentVerifier = (*MockVerifier)(nil)
