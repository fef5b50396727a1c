package api_test

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/notifyd/internal/api"
	"github.com/shaharia-lab/notifyd/internal/notification"
	"github.com/shaharia-lab/notifyd/internal/service"
	svcmocks "github.com/shaharia-lab/notifyd/internal/service/mocks"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

// testHarness bundles the mock service and router used by every test.
type testHarness struct {
	svc    *svcmocks.MockNotificationService
	router chi.Router
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	svc := new(svcmocks.MockNotificationService)
	r := chi.NewRouter()
	api.New(svc, slog.Default()).Mount(r)
	return &testHarness{svc: svc, router: r}
}

func (h *testHarness) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// ---------- Notifications ----------

func TestSendNotification(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     *service.SendResult
		err        error
		wantStatus int
	}{
		{
			name:       "accepted",
			body:       `{"code":"cert_issued","notifiable_type":"user","notifiable_id":42,"context":{"domain":"example.com"},"channels":["mail"]}`,
			result:     &service.SendResult{Jobs: []notification.Job{{ID: "j1", Channel: "mail"}}},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "invalid JSON",
			body:       `{invalid`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "validation error",
			body:       `{"notifiable_type":"user","notifiable_id":42}`,
			err:        &service.ValidationError{Field: "code", Message: "is required"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "service error",
			body:       `{"code":"x","notifiable_type":"user","notifiable_id":1}`,
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if tc.body != `{invalid` {
				h.svc.On("Send", mock.Anything, mock.AnythingOfType("notification.Intent")).Return(tc.result, tc.err)
			}

			req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := h.do(req)
			assert.Equal(t, tc.wantStatus, w.Code)

			if tc.wantStatus == http.StatusAccepted {
				var result service.SendResult
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
				require.Len(t, result.Jobs, 1)
				assert.Equal(t, "mail", result.Jobs[0].Channel)

				intent := h.svc.Calls[0].Arguments.Get(1).(notification.Intent)
				assert.Equal(t, "cert_issued", intent.Code)
				assert.EqualValues(t, 42, intent.NotifiableID)
				assert.Equal(t, []string{"mail"}, intent.PreferredChannels)
				assert.Equal(t, "example.com", intent.Context["domain"])
			}
		})
	}
}

// ---------- Deliveries ----------

func TestListDeliveries(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		filter     storage.DeliveryFilter
		recs       []*storage.DeliveryRecord
		err        error
		wantStatus int
		wantCall   bool
	}{
		{
			name:       "all",
			filter:     storage.DeliveryFilter{},
			recs:       []*storage.DeliveryRecord{{ID: 1}, {ID: 2}},
			wantStatus: http.StatusOK,
			wantCall:   true,
		},
		{
			name:       "filtered",
			query:      "?status=failed&channel=sms&notifiable_type=user&notifiable_id=42&template_id=3&limit=5",
			filter:     storage.DeliveryFilter{Status: storage.DeliveryFailed, Channel: "sms", NotifiableType: "user", NotifiableID: 42, TemplateID: 3, Limit: 5},
			recs:       []*storage.DeliveryRecord{{ID: 1}},
			wantStatus: http.StatusOK,
			wantCall:   true,
		},
		{
			name:       "nil list renders empty array",
			filter:     storage.DeliveryFilter{},
			wantStatus: http.StatusOK,
			wantCall:   true,
		},
		{
			name:       "bad id",
			query:      "?notifiable_id=abc",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad limit",
			query:      "?limit=many",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "validation error",
			query:      "?status=lost",
			filter:     storage.DeliveryFilter{Status: "lost"},
			err:        &service.ValidationError{Field: "status", Message: "unknown status"},
			wantStatus: http.StatusBadRequest,
			wantCall:   true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if tc.wantCall {
				h.svc.On("ListDeliveries", mock.Anything, tc.filter).Return(tc.recs, tc.err)
			}

			w := h.do(httptest.NewRequest(http.MethodGet, "/deliveries"+tc.query, nil))
			assert.Equal(t, tc.wantStatus, w.Code)

			if tc.wantStatus == http.StatusOK {
				var result []*storage.DeliveryRecord
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
				assert.NotNil(t, result)
				assert.Len(t, result, len(tc.recs))
			}
			h.svc.AssertExpectations(t)
		})
	}
}

func TestGetDelivery(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		rec        *storage.DeliveryRecord
		err        error
		wantStatus int
	}{
		{
			name:       "found",
			id:         "7",
			rec:        &storage.DeliveryRecord{ID: 7, Status: storage.DeliveryFailed, Message: "quota exceeded"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "not found",
			id:         "8",
			err:        &service.NotFoundError{Resource: "delivery", ID: 8},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "service error",
			id:         "9",
			err:        fmt.Errorf("db error"),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "invalid id",
			id:         "abc",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if tc.id != "abc" {
				var id int64
				_, _ = fmt.Sscan(tc.id, &id)
				h.svc.On("GetDelivery", mock.Anything, id).Return(tc.rec, tc.err)
			}

			w := h.do(httptest.NewRequest(http.MethodGet, "/deliveries/"+tc.id, nil))
			assert.Equal(t, tc.wantStatus, w.Code)

			if tc.wantStatus == http.StatusOK {
				var result storage.DeliveryRecord
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
				assert.Equal(t, "quota exceeded", result.Message)
			}
		})
	}
}

// ---------- Templates ----------

func TestListTemplates(t *testing.T) {
	h := newHarness(t)
	h.svc.On("ListTemplates", mock.Anything, "cert_issued").
		Return([]*storage.Template{{ID: 1, Code: "cert_issued", Channels: []string{"mail"}}}, nil)

	w := h.do(httptest.NewRequest(http.MethodGet, "/templates?code=cert_issued", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var result []*storage.Template
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result, 1)
	assert.Equal(t, []string{"mail"}, result[0].Channels)
}

func TestImportTemplates(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"created", `[{"code":"welcome","name":"Welcome","channels":["mail"]}]`, nil, http.StatusCreated},
		{"empty", `[]`, nil, http.StatusBadRequest},
		{"invalid JSON", `{`, nil, http.StatusBadRequest},
		{"conflict", `[{"code":"welcome","name":"Welcome","channels":["mail"]}]`, &service.ConflictError{Resource: "template", Key: "welcome/Welcome"}, http.StatusConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			var imported []*storage.Template
			if tc.err == nil {
				imported = []*storage.Template{{ID: 1, Code: "welcome"}}
			}
			h.svc.On("ImportTemplates", mock.Anything, mock.Anything).Return(imported, tc.err).Maybe()

			w := h.do(httptest.NewRequest(http.MethodPost, "/templates", strings.NewReader(tc.body)))
			assert.Equal(t, tc.wantStatus, w.Code)
		})
	}
}

func TestSetTemplateStatus(t *testing.T) {
	h := newHarness(t)
	h.svc.On("SetTemplateStatus", mock.Anything, int64(4), storage.TemplateDisabled).Return(nil)
	h.svc.On("SetTemplateStatus", mock.Anything, int64(5), storage.TemplateDisabled).
		Return(&service.NotFoundError{Resource: "template", ID: 5})

	w := h.do(httptest.NewRequest(http.MethodPut, "/templates/4/status", strings.NewReader(`{"status":"disabled"}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(httptest.NewRequest(http.MethodPut, "/templates/5/status", strings.NewReader(`{"status":"disabled"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	w := h.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var result map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "dev", result["version"])
}
