package reconcile

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cart-dialer/internal/telephony"
	"cart-dialer/pkg/logger"
)

func TestService_RecordAndState(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, logger.Discard())
	ctx := context.Background()
	t0 := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.Record(ctx, telephony.StatusEvent{Provider: "twilio", ProviderCallID: "CA1", Status: "ringing", OccurredAt: t0}))
	require.NoError(t, svc.Record(ctx, telephony.StatusEvent{Provider: "twilio", ProviderCallID: "CA1", Status: "completed", DurationSecs: 42, OccurredAt: t0.Add(time.Minute)}))
	require.NoError(t, svc.Record(ctx, telephony.StatusEvent{Provider: "twilio", ProviderCallID: "CA2", Status: "busy", OccurredAt: t0}))

	st, ok, err := svc.State(ctx, "CA1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "completed", st.Status)
	assert.Equal(t, 42, st.DurationSecs)
	assert.Equal(t, 2, st.Events)
	assert.Equal(t, t0.Add(time.Minute), st.UpdatedAt)

	_, ok, err = svc.State(ctx, "CA9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_RejectsInvalid(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, nil)
	err := svc.Record(context.Background(), telephony.StatusEvent{Provider: "vapi"})
	assert.True(t, errors.Is(err, ErrInvalidEvent))
}

func TestFold_LaterEmptyValuesDoNotErase(t *testing.T) {
	st, ok := Fold([]Event{
		{StatusEvent: telephony.StatusEvent{ProviderCallID: "c", Status: "ended", Summary: "will buy"}},
		{StatusEvent: telephony.StatusEvent{ProviderCallID: "c", Status: ""}},
	})
	require.True(t, ok)
	assert.Equal(t, "ended", st.Status)
	assert.Equal(t, "will buy", st.Summary)
}

func TestPostgresStore_Init(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS call_status_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, NewPostgresStore(db).Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	e := Event{
		ID: "0b9f6c1e-7d55-4c3e-9a59-000000000001",
		StatusEvent: telephony.StatusEvent{
			Provider: "vapi", ProviderCallID: "call_1", Status: "ended", To: "+1555",
			DurationSecs: 30, EndedReason: "customer-ended-call", OccurredAt: at,
		},
		ReceivedAt: at,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO call_status_events")).
		WithArgs(e.ID, "vapi", "call_1", "ended", "+1555", 30, "customer-ended-call", "", "", "", at, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows := sqlmock.NewRows([]string{
		"id", "provider", "provider_call_id", "status", "to_number", "duration_seconds",
		"ended_reason", "recording_url", "summary", "raw_payload", "occurred_at", "received_at",
	}).AddRow(e.ID, "vapi", "call_1", "ended", "+1555", 30, "customer-ended-call", "", "", "", at, at)
	mock.ExpectQuery(regexp.QuoteMeta("FROM call_status_events")).WithArgs("call_1").WillReturnRows(rows)

	store := NewPostgresStore(db)
	require.NoError(t, store.Append(context.Background(), e))

	got, err := store.ListByCall(context.Background(), "call_1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO call_status_events").WillReturnError(errors.New("conn reset"))
	err = NewPostgresStore(db).Append(context.Background(), Event{})
	assert.ErrorContains(t, err, "conn reset")
}
