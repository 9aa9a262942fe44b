package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/flowgate/internal/storage"
	"github.com/mattjoyce/flowgate/internal/token"
)

func openStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, opts...)
}

func TestStoreInsertAndFind(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	rec := &Record{
		Token:       "tok-1",
		PhoneNumber: "91900000001",
		MessageID:   "wamid.A",
		Message:     json.RawMessage(`{"id":"wamid.A","type":"text"}`),
	}
	require.NoError(t, s.Insert(ctx, rec))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusReceived, rec.Status)

	got, err := s.FindByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "91900000001", got.PhoneNumber)
	assert.JSONEq(t, `{"id":"wamid.A","type":"text"}`, string(got.Message))
	assert.JSONEq(t, `{}`, string(got.BookingData))
	assert.False(t, got.CreatedAt.IsZero())

	assert.ErrorIs(t, s.Insert(ctx, &Record{Token: "tok-1", PhoneNumber: "x", MessageID: "y"}), ErrDuplicate)

	_, err = s.FindByToken(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreUpdateMergesBookingData(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, &Record{Token: "tok", PhoneNumber: "p", MessageID: "m"}))

	_, err := s.Update(ctx, "tok", Patch{
		Status:      Ptr(StatusInitiatedForm),
		BookingData: json.RawMessage(`{"name":"Asha","trip":{"to":"Goa"}}`),
	})
	require.NoError(t, err)

	rec, err := s.Update(ctx, "tok", Patch{BookingData: json.RawMessage(`{"trip":{"to":"Leh"},"travellers":2}`)})
	require.NoError(t, err)
	assert.Equal(t, StatusInitiatedForm, rec.Status)
	assert.JSONEq(t, `{"name":"Asha","trip":{"to":"Leh"},"travellers":2}`, string(rec.BookingData))

	rec, err = s.Update(ctx, "tok", Patch{
		PreferredDate: Ptr("2026-10-17"),
		PreferredTime: Ptr("10_12"),
		Status:        Ptr(StatusCompleted),
	})
	require.NoError(t, err)

	got, err := s.FindByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "2026-10-17", got.PreferredDate)
	assert.Equal(t, "10_12", got.PreferredTime)
	assert.Equal(t, rec.BookingData, got.BookingData)
}

func TestStoreUpdateErrors(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, &Record{Token: "tok", PhoneNumber: "p", MessageID: "m"}))

	_, err := s.Update(ctx, "missing", Patch{Status: Ptr(StatusCompleted)})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Update(ctx, "tok", Patch{Status: Ptr(Status("archived"))})
	assert.Error(t, err)

	_, err = s.Update(ctx, "tok", Patch{BookingData: json.RawMessage(`[1,2]`)})
	assert.Error(t, err)

	_, err = s.Update(ctx, "", Patch{})
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

type stubVerifier struct{ err error }

func (v stubVerifier) Verify(string) (*token.Claims, error) { return &token.Claims{}, v.err }

func TestStoreTokenCheck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := openStore(t, WithTokenCheck(stubVerifier{err: token.ErrExpired}))
	assert.True(t, s.VerifiesTokens())
	require.NoError(t, s.Insert(ctx, &Record{Token: "tok", PhoneNumber: "p", MessageID: "m"}))

	_, err := s.FindByToken(ctx, "tok")
	assert.True(t, errors.Is(err, token.ErrExpired))
	_, err = s.Update(ctx, "tok", Patch{Status: Ptr(StatusCompleted)})
	assert.True(t, errors.Is(err, token.ErrExpired))

	trusting := openStore(t)
	assert.False(t, trusting.VerifiesTokens())
}

func TestStoreSeenMessages(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	clock := now
	s := openStore(t, WithStoreClock(func() time.Time { return clock }))
	ctx := context.Background()

	first, err := s.MarkSeen(ctx, "wamid.A")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = s.MarkSeen(ctx, "wamid.A")
	require.NoError(t, err)
	assert.False(t, first)

	clock = now.Add(2 * time.Hour)
	_, err = s.MarkSeen(ctx, "wamid.B")
	require.NoError(t, err)

	n, err := s.PruneSeen(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	first, err = s.MarkSeen(ctx, "wamid.A")
	require.NoError(t, err)
	assert.True(t, first, "pruned id is accepted again")

	_, err = s.MarkSeen(ctx, "")
	assert.Error(t, err)
}

func TestStoreConcurrentWrites(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	const tokens = 16
	for i := 0; i < tokens; i++ {
		require.NoError(t, s.Insert(ctx, &Record{Token: fmt.Sprintf("tok-%d", i), PhoneNumber: "p", MessageID: "m"}))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	for i := 0; i < tokens; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := fmt.Sprintf("tok-%d", i)
			for round := 0; round < 5; round++ {
				_, err := s.Update(ctx, tok, Patch{
					Status:      Ptr(StatusInitiatedForm),
					BookingData: json.RawMessage(fmt.Sprintf(`{"round":%d}`, round)),
				})
				record(err)
			}
		}(i)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msgID := fmt.Sprintf("wamid.%d", i)
			_, err := s.MarkSeen(ctx, msgID)
			record(err)
			record(s.Insert(ctx, &Record{Token: "new-" + msgID, PhoneNumber: "p", MessageID: msgID}))
		}(i)
	}
	wg.Wait()
	require.Empty(t, errs)

	for i := 0; i < tokens; i++ {
		got, err := s.FindByToken(ctx, fmt.Sprintf("tok-%d", i))
		require.NoError(t, err)
		assert.Equal(t, StatusInitiatedForm, got.Status)
		assert.JSONEq(t, `{"round":4}`, string(got.BookingData))
	}
}
