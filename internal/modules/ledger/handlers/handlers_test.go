package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/eqtrak/internal/database"
	"github.com/aristath/eqtrak/internal/modules/ledger"
	testingpkg "github.com/aristath/eqtrak/internal/testing"
)

func setupRouter(t *testing.T) (*chi.Mux, string) {
	t.Helper()
	db, _ := testingpkg.NewTestDB(t, database.NameMain)
	pf := testingpkg.InsertPortfolio(t, db.Conn(), "user-1", "Main")
	pos := testingpkg.InsertPosition(t, db.Conn(), pf.ID, "MSFT")

	handler := NewHandler(ledger.NewRepository(db.Conn(), zerolog.Nop()), zerolog.Nop())
	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router, pos.ID
}

func request(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleRecordTransaction(t *testing.T) {
	router, positionID := setupRouter(t)

	body := `{"transaction_type":"BUY","quantity":"10","price":"100","fees":"0","date":"2024-01-02"}`
	w := request(router, "POST", "/positions/"+positionID+"/transactions", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "COMPLETED", created["status"])
	assert.Equal(t, "10", created["quantity"])
	id := created["id"].(string)

	w = request(router, "GET", "/transactions/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"transaction_type":"BUY"`)

	w = request(router, "PUT", "/transactions/"+id+"/status", `{"status":"CANCELLED"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = request(router, "GET", "/positions/"+positionID+"/transactions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "CANCELLED")
}

func TestHandleRecordTransaction_Errors(t *testing.T) {
	router, positionID := setupRouter(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"bad json", "/positions/" + positionID + "/transactions", "{", http.StatusBadRequest},
		{"bad date", "/positions/" + positionID + "/transactions", `{"transaction_type":"BUY","quantity":"1","price":"1","date":"02/01/2024"}`, http.StatusBadRequest},
		{"zero quantity", "/positions/" + positionID + "/transactions", `{"transaction_type":"BUY","quantity":"0","price":"1","date":"2024-01-02"}`, http.StatusUnprocessableEntity},
		{"missing position", "/positions/nope/transactions", `{"transaction_type":"BUY","quantity":"1","price":"1","date":"2024-01-02"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(router, "POST", tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := request(router, "GET", "/transactions/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
