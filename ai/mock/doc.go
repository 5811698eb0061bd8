// Package mock provides test double implementations of AI service interfaces.
//
// # Usage
//
//	mockEmbedder := mock.NewMockEmbedder()
//	mockEmbedder.Dimension = 4
//
//	// Override behavior
//	mockEmbedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("model unavailable")
//	}
//
//	// Check calls
//	count := mockEmbedder.CallCount()
//	texts := mockEmbedder.Calls()[0]
//
// # Default Behavior
//
// MockEmbedder returns deterministic vectors derived from a hash of the text,
// so equal texts always embed to equal vectors.
package mock
