package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/clinicguard/internal/models"
	pkghttp "github.com/BradenHooton/clinicguard/pkg/http"
)

func TestWriteServiceError_AccountState(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{models.ErrAccountBanned, "account_banned"},
		{models.ErrAccountBlocked, "account_blocked"},
		{fmt.Errorf("check access: %w", models.ErrAccountDisabled), "account_disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeServiceError(w, DiscardLogger(), tt.err)

			assert.Equal(t, http.StatusForbidden, w.Code)
			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error)
		})
	}
}
