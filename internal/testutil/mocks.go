// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"fmt"
	"sync"

	"loan-pipeline/internal/domain"
)

// === Ingestion Run Repository Mock ===

// MockIngestionRunRepo implements domain.IngestionRunRepository in memory.
// Fn fields override the default behavior.
type MockIngestionRunRepo struct {
	CreateFn  func(ctx context.Context, run *domain.IngestionRun) (*domain.IngestionRun, error)
	FinishFn  func(ctx context.Context, run *domain.IngestionRun) error
	GetByIDFn func(ctx context.Context, id string) (*domain.IngestionRun, error)
	ListFn    func(ctx context.Context, filter domain.IngestionRunFilter) ([]domain.IngestionRun, error)

	mu   sync.Mutex
	Runs []domain.IngestionRun // snapshot of every created or finished run, in call order
}

// Create implements the interface method for testing.
func (m *MockIngestionRunRepo) Create(ctx context.Context, run *domain.IngestionRun) (*domain.IngestionRun, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, run)
	}
	if run.ID == "" {
		run.ID = domain.NewID()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	m.record(*run)
	out := *run
	return &out, nil
}

// Finish implements the interface method for testing.
func (m *MockIngestionRunRepo) Finish(ctx context.Context, run *domain.IngestionRun) error {
	if m.FinishFn != nil {
		return m.FinishFn(ctx, run)
	}
	m.record(*run)
	return nil
}

// GetByID implements the interface method for testing.
func (m *MockIngestionRunRepo) GetByID(ctx context.Context, id string) (*domain.IngestionRun, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Runs) - 1; i >= 0; i-- {
		if m.Runs[i].ID == id {
			out := m.Runs[i]
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound("ingestion run %q not found", id)
}

// List implements the interface method for testing.
func (m *MockIngestionRunRepo) List(ctx context.Context, filter domain.IngestionRunFilter) ([]domain.IngestionRun, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	panic("unexpected call to MockIngestionRunRepo.List")
}

// Last returns the most recently recorded run, or nil if none.
func (m *MockIngestionRunRepo) Last() *domain.IngestionRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Runs) == 0 {
		return nil
	}
	out := m.Runs[len(m.Runs)-1]
	return &out
}

func (m *MockIngestionRunRepo) record(run domain.IngestionRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Runs = append(m.Runs, run)
}

// === Object Mirror Mock ===

// MockObjectMirror implements domain.ObjectMirror and records uploads.
type MockObjectMirror struct {
	UploadFn   func(ctx context.Context, localPath, key string) (string, error)
	BucketName string

	mu      sync.Mutex
	Uploads []Upload
}

// Upload is one recorded MockObjectMirror.Upload call.
type Upload struct {
	LocalPath string
	Key       string
}

// Upload implements the interface method for testing.
func (m *MockObjectMirror) Upload(ctx context.Context, localPath, key string) (string, error) {
	m.mu.Lock()
	m.Uploads = append(m.Uploads, Upload{LocalPath: localPath, Key: key})
	m.mu.Unlock()
	if m.UploadFn != nil {
		return m.UploadFn(ctx, localPath, key)
	}
	return fmt.Sprintf("s3://%s/%s", m.BucketName, key), nil
}

// Bucket implements the interface method for testing.
func (m *MockObjectMirror) Bucket() string {
	return m.BucketName
}
