package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProblemMediaType(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, 409, "Conflict", "code QT2026090001 taken")

	require.Equal(t, 409, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var pd ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	require.Equal(t, "Conflict", pd.Title)
	require.Equal(t, 409, pd.Status)
	require.Equal(t, "code QT2026090001 taken", pd.Detail)
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: quotation 9", ErrNotFound), 404},
		{fmt.Errorf("%w: slot taken", ErrConflict), 409},
		{fmt.Errorf("%w: count must be positive", ErrValidation), 400},
		{ErrForbidden, 403},
		{ErrUnauthorized, 401},
		{errors.New("pool exhausted"), 500},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.code, rec.Code)
	}

	// Internal failures never leak the cause to the caller.
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("dsn secret leaked"))
	require.NotContains(t, rec.Body.String(), "dsn")
}
