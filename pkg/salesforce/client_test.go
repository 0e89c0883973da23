package salesforce

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) InsertCollection(ctx context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error) {
	args := m.Called(ctx, sObjectName, records)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]CollectionResult), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*MockClient)(nil)
}

func TestInsertCollection_MockClient(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	expected := []CollectionResult{
		{ID: "00Q000000000001", Success: true},
		{Success: false, Errors: []string{"REQUIRED_FIELD_MISSING: LastName"}},
	}
	mc.On("InsertCollection", ctx, "Lead", mock.Anything).Return(expected, nil)

	results, err := mc.InsertCollection(ctx, "Lead", []map[string]any{{"Company": "A"}, {"Company": "B"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Errors[0], "REQUIRED_FIELD_MISSING")
	mc.AssertExpectations(t)
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()
	c := NewClient(nil)
	sc, ok := c.(*sfClient)
	require.True(t, ok)
	assert.Nil(t, sc.limiter)
	assert.Equal(t, apiBatchLimit, sc.batchSize)
}

func TestWithRateLimit(t *testing.T) {
	t.Parallel()
	c := NewClient(nil, WithRateLimit(5)).(*sfClient)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, 5.0, float64(c.limiter.Limit()), 0.001)

	unlimited := NewClient(nil, WithRateLimit(0)).(*sfClient)
	assert.Nil(t, unlimited.limiter)
}

func TestWithBatchSize(t *testing.T) {
	t.Parallel()
	c := NewClient(nil, WithBatchSize(50)).(*sfClient)
	assert.Equal(t, 50, c.batchSize)

	// Out-of-range values keep the API limit.
	tooBig := NewClient(nil, WithBatchSize(500)).(*sfClient)
	assert.Equal(t, apiBatchLimit, tooBig.batchSize)

	zero := NewClient(nil, WithBatchSize(0)).(*sfClient)
	assert.Equal(t, apiBatchLimit, zero.batchSize)
}
