package source

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/comp-pricer/internal/model"
)

type mockProvider struct {
	mock.Mock
	name string
}

func newMockProvider(name string) *mockProvider {
	return &mockProvider{name: name}
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Fetch(ctx context.Context, q Query) (*model.SourceObservationSet, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SourceObservationSet), args.Error(1)
}

// blockingProvider waits for ctx to end.
type blockingProvider struct{ name string }

func (b *blockingProvider) Name() string { return b.name }

func (b *blockingProvider) Fetch(ctx context.Context, _ Query) (*model.SourceObservationSet, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
