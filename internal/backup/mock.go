package backup

import "context"

// MockRunner is a test double for the Runner interface.
type MockRunner struct {
	Output []byte
	Err    error

	// Track calls
	Calls [][]string
	Envs  [][]string
}

func (m *MockRunner) Run(_ context.Context, env []string, name string, args ...string) ([]byte, error) {
	call := append([]string{name}, args...)
	m.Calls = append(m.Calls, call)
	m.Envs = append(m.Envs, env)
	return m.Output, m.Err
}

// MockUploader is a test double for the Uploader interface.
type MockUploader struct {
	URI string
	Err error

	Uploaded []string
}

func (m *MockUploader) Upload(_ context.Context, _, _, filePath string) (string, error) {
	m.Uploaded = append(m.Uploaded, filePath)
	return m.URI, m.Err
}
