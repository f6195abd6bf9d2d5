package adapter

// PhotoStage owns temporary files holding original photo bytes for the
// duration of one registration attempt.
type PhotoStage interface {
	// Stage writes bytes to a session-owned temp file and returns its path.
	Stage(data []byte) (string, error)
	// Read returns the staged bytes.
	Read(path string) ([]byte, error)
	// Release deletes the staged file. Releasing twice, or releasing an
	// empty path, is a no-op.
	Release(path string) error
}
