package coin

import (
	"context"
	"errors"
	"testing"

	"cryptobroker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockStore is a testify mock of Store.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) LookupLatest(ctx context.Context, p Predicate) ([]domain.CurrencyRecord, error) {
	args := m.Called(ctx, p)
	recs, _ := args.Get(0).([]domain.CurrencyRecord)
	return recs, args.Error(1)
}

func (m *mockStore) ListLatest(ctx context.Context, limit int) ([]domain.CurrencyRecord, error) {
	args := m.Called(ctx, limit)
	recs, _ := args.Get(0).([]domain.CurrencyRecord)
	return recs, args.Error(1)
}

// go test -v --run TestPredicateFor
func TestPredicateFor(t *testing.T) {
	tests := []struct {
		name    string
		key     domain.CoinKey
		want    Predicate
		wantErr error
	}{
		{name: "id wins over everything", key: domain.CoinKey{ID: "bitcoin", Name: "Bitcoin", Symbol: "btc"},
			want: Predicate{Field: FieldID, Value: "bitcoin"}},
		{name: "name wins over symbol", key: domain.CoinKey{Name: "Ethereum", Symbol: "eth"},
			want: Predicate{Field: FieldName, Value: "Ethereum"}},
		{name: "symbol only", key: domain.CoinKey{Symbol: "BTC"},
			want: Predicate{Field: FieldSymbol, Value: "BTC"}},
		{name: "empty key", key: domain.CoinKey{}, wantErr: domain.ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PredicateFor(tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// go test -v --run TestPredicateMatches
func TestPredicateMatches(t *testing.T) {
	rec := domain.CurrencyRecord{ID: "bitcoin", Name: "Bitcoin", Symbol: "btc"}

	assert.True(t, Predicate{Field: FieldSymbol, Value: "BTC"}.Matches(rec))
	assert.True(t, Predicate{Field: FieldName, Value: "BITCOIN"}.Matches(rec))
	assert.True(t, Predicate{Field: FieldID, Value: "bitcoin"}.Matches(rec))
	assert.False(t, Predicate{Field: FieldID, Value: "Bitcoin"}.Matches(rec), "ids match exactly")
	assert.False(t, Predicate{Field: Field(9), Value: "btc"}.Matches(rec))
}

// go test -v --run TestResolve
func TestResolve(t *testing.T) {
	ctx := context.Background()
	btc := domain.CurrencyRecord{ID: "bitcoin", Name: "Bitcoin", Symbol: "btc"}
	wrapped := domain.CurrencyRecord{ID: "wrapped-bitcoin", Name: "Wrapped Bitcoin", Symbol: "btc"}

	t.Run("single match", func(t *testing.T) {
		store := new(mockStore)
		store.On("LookupLatest", ctx, Predicate{Field: FieldSymbol, Value: "BTC"}).
			Return([]domain.CurrencyRecord{btc}, nil).Once()

		got, err := NewResolver(store, zap.NewNop()).Resolve(ctx, domain.CoinKey{Symbol: "BTC"})
		require.NoError(t, err)
		assert.Equal(t, btc, got)
		store.AssertExpectations(t)
	})

	t.Run("no match", func(t *testing.T) {
		store := new(mockStore)
		store.On("LookupLatest", ctx, mock.Anything).Return([]domain.CurrencyRecord{}, nil)

		_, err := NewResolver(store, zap.NewNop()).Resolve(ctx, domain.CoinKey{Symbol: "BTC"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("several matches", func(t *testing.T) {
		store := new(mockStore)
		store.On("LookupLatest", ctx, mock.Anything).Return([]domain.CurrencyRecord{btc, wrapped}, nil)

		_, err := NewResolver(store, zap.NewNop()).Resolve(ctx, domain.CoinKey{Symbol: "BTC"})
		assert.ErrorIs(t, err, domain.ErrAmbiguous)

		var amb *domain.AmbiguousError
		require.True(t, errors.As(err, &amb))
		assert.ElementsMatch(t, []domain.CurrencyRecord{btc, wrapped}, amb.Candidates)
	})

	t.Run("invalid key never reaches the store", func(t *testing.T) {
		store := new(mockStore)

		_, err := NewResolver(store, zap.NewNop()).Resolve(ctx, domain.CoinKey{})
		assert.ErrorIs(t, err, domain.ErrInvalidKey)
		store.AssertNotCalled(t, "LookupLatest", mock.Anything, mock.Anything)
	})

	t.Run("storage failure is opaque", func(t *testing.T) {
		store := new(mockStore)
		store.On("LookupLatest", ctx, mock.Anything).Return(nil, errors.New("dial tcp: refused"))

		_, err := NewResolver(store, zap.NewNop()).Resolve(ctx, domain.CoinKey{ID: "bitcoin"})
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})
}

// go test -v --run TestListDefaultsLimit
func TestListDefaultsLimit(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	store.On("ListLatest", ctx, DefaultListLimit).Return([]domain.CurrencyRecord{{ID: "bitcoin"}}, nil).Once()

	list, err := NewResolver(store, zap.NewNop()).List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	store.AssertExpectations(t)
}
