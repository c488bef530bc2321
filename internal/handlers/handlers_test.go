package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shakti-alert-backend/internal/models"
	"shakti-alert-backend/internal/repository"
	"shakti-alert-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	identity *services.IdentityService
	alerts   *services.AlertService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := repository.NewMemoryStore()
	identity := services.NewIdentityService(
		repository.NewUserRepository(store),
		repository.NewSessionRepository(store),
		repository.NewDeviceTokenRepository(store),
	)
	alerts := services.NewAlertService(
		repository.NewAlertRepository(store),
		repository.NewResponseRepository(store),
		identity,
		services.FixedLocator{Location: models.Location{Latitude: 30.7333, Longitude: 76.7794}},
	)
	hub := services.NewWSHub(alerts)
	hub.Attach(alerts)
	tokens := services.NewTokenService("test-secret", time.Hour)

	srv := httptest.NewServer(NewRouter(identity, tokens, alerts, hub))
	t.Cleanup(alerts.Close)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	return &testServer{Server: srv, identity: identity, alerts: alerts}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = strings.NewReader(raw)
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func pilgrimBody(name, phone string) map[string]interface{} {
	return map[string]interface{}{
		"name":             name,
		"phone":            phone,
		"email":            strings.ToLower(name) + "@example.com",
		"password":         "secret123",
		"confirm_password": "secret123",
		"role":             "pilgrim",
		"emergency_contact": map[string]string{
			"name":         "Ravi",
			"phone":        "9000000099",
			"relationship": "Brother",
		},
		"pilgrim_info": map[string]interface{}{"group_size": 3},
	}
}

func volunteerBody(name, phone string) map[string]interface{} {
	body := pilgrimBody(name, phone)
	body["role"] = "volunteer"
	delete(body, "pilgrim_info")
	body["volunteer_info"] = map[string]interface{}{
		"skills":       []string{" First Aid ", ""},
		"availability": "Evenings",
	}
	return body
}

func (s *testServer) register(t *testing.T, body map[string]interface{}) AuthResponse {
	t.Helper()

	status, data := s.do(t, http.MethodPost, "/api/v1/auth/register", "", body)
	require.Equal(t, http.StatusCreated, status, string(data))

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	require.NotEmpty(t, resp.Token)
	return resp
}

func errorMessage(t *testing.T, data []byte) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(data, &body))
	return body.Error
}

func TestRegister(t *testing.T) {
	s := newTestServer(t)

	pilgrim := s.register(t, pilgrimBody("Asha", "9000000001"))
	assert.Equal(t, "Asha", pilgrim.User.Name)
	assert.Equal(t, "asha@example.com", pilgrim.User.Email)
	assert.Equal(t, models.RolePilgrim, pilgrim.User.Role)
	require.NotNil(t, pilgrim.User.PilgrimInfo)
	assert.Equal(t, 3, pilgrim.User.PilgrimInfo.GroupSize)

	volunteer := s.register(t, volunteerBody("Vik", "9000000002"))
	require.NotNil(t, volunteer.User.VolunteerInfo)
	assert.Equal(t, []string{"First Aid"}, volunteer.User.VolunteerInfo.Skills)

	status, data := s.do(t, http.MethodPost, "/api/v1/auth/register", "", pilgrimBody("Other", "9000000001"))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, services.ErrDuplicatePhone.Error(), errorMessage(t, data))
}

func TestRegister_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		mutate  func(map[string]interface{})
		wantMsg string
	}{
		{"missing name", func(b map[string]interface{}) { delete(b, "name") }, "Name is required"},
		{"short phone", func(b map[string]interface{}) { b["phone"] = "12345" }, "Phone must be at least 10"},
		{"bad email", func(b map[string]interface{}) { b["email"] = "asha" }, "Email must be a valid email"},
		{"short password", func(b map[string]interface{}) {
			b["password"] = "abc"
			b["confirm_password"] = "abc"
		}, "Password must be at least 6"},
		{"long password", func(b map[string]interface{}) {
			b["password"] = strings.Repeat("a", 73)
			b["confirm_password"] = strings.Repeat("a", 73)
		}, "Password must be at most 72"},
		{"password mismatch", func(b map[string]interface{}) { b["confirm_password"] = "other123" }, "passwords do not match"},
		{"unknown role", func(b map[string]interface{}) { b["role"] = "admin" }, "Role must be one of"},
		{"missing emergency contact", func(b map[string]interface{}) { delete(b, "emergency_contact") }, "EmergencyContact is required"},
		{"missing pilgrim info", func(b map[string]interface{}) { delete(b, "pilgrim_info") }, "PilgrimInfo is required for role pilgrim"},
		{"empty group", func(b map[string]interface{}) {
			b["pilgrim_info"] = map[string]interface{}{"group_size": 0}
		}, "PilgrimInfo.GroupSize must be at least 1"},
		{"volunteer without info", func(b map[string]interface{}) { b["role"] = "volunteer" }, "VolunteerInfo is required for role volunteer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := pilgrimBody("Asha", "9000000001")
			tt.mutate(body)

			status, data := s.do(t, http.MethodPost, "/api/v1/auth/register", "", body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Contains(t, errorMessage(t, data), tt.wantMsg)
		})
	}

	status, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", "{broken")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Empty(t, s.identity.AllUsers(context.Background()))
}

func TestRegister_PasswordOverBcryptLimit(t *testing.T) {
	s := newTestServer(t)

	// 40 two-byte runes pass the length tag but exceed what bcrypt accepts
	body := pilgrimBody("Asha", "9000000001")
	body["password"] = strings.Repeat("é", 40)
	body["confirm_password"] = strings.Repeat("é", 40)

	status, data := s.do(t, http.MethodPost, "/api/v1/auth/register", "", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, services.ErrPasswordTooLong.Error(), errorMessage(t, data))
	assert.Empty(t, s.identity.AllUsers(context.Background()))

	body["password"] = strings.Repeat("a", 72)
	body["confirm_password"] = strings.Repeat("a", 72)
	s.register(t, body)
}

func TestLoginAndLogout(t *testing.T) {
	s := newTestServer(t)
	registered := s.register(t, pilgrimBody("Asha", "9000000001"))

	status, _ := s.do(t, http.MethodPost, "/api/v1/auth/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, status)
	assert.False(t, s.identity.IsAuthenticated())

	status, data := s.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Phone: "9000000001", Password: "secret123"})
	require.Equal(t, http.StatusOK, status)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, registered.User.ID, resp.User.ID)
	assert.True(t, s.identity.IsAuthenticated())

	status, data = s.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Phone: "9000000001", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, services.ErrBadCredential.Error(), errorMessage(t, data))

	status, data = s.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Phone: "9999999999", Password: "secret123"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, services.ErrUnknownPhone.Error(), errorMessage(t, data))

	status, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Phone: "9000000001"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUsers(t *testing.T) {
	s := newTestServer(t)
	asha := s.register(t, pilgrimBody("Asha", "9000000001"))
	s.register(t, volunteerBody("Vik", "9000000002"))

	status, data := s.do(t, http.MethodGet, "/api/v1/users/me", asha.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var me models.User
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, asha.User.ID, me.ID)

	status, _ = s.do(t, http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, data = s.do(t, http.MethodGet, "/api/v1/users", asha.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Users []models.User `json:"users"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Equal(t, 2, list.Total)

	status, _ = s.do(t, http.MethodPut, "/api/v1/users/me/device-token", asha.Token, DeviceTokenRequest{Token: "device-1"})
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, []string{"device-1"}, s.identity.DeviceTokensForRole(context.Background(), models.RolePilgrim))

	status, _ = s.do(t, http.MethodPut, "/api/v1/users/me/device-token", asha.Token, DeviceTokenRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBroadcast(t *testing.T) {
	s := newTestServer(t)

	status, data := s.do(t, http.MethodPost, "/api/v1/alerts", "", BroadcastRequest{Type: models.AlertTypeSOS})
	require.Equal(t, http.StatusCreated, status, string(data))
	var created BroadcastResponse
	require.NoError(t, json.Unmarshal(data, &created))

	alert, err := s.alerts.AlertByID(context.Background(), created.AlertID)
	require.NoError(t, err)
	assert.Equal(t, "Anonymous", alert.PilgrimName)
	assert.Equal(t, "Unknown", alert.PilgrimPhone)
	assert.Equal(t, services.DefaultMessage(models.AlertTypeSOS), alert.Message)

	asha := s.register(t, pilgrimBody("Asha", "9000000001"))
	s.register(t, pilgrimBody("Other", "9000000003"))

	status, data = s.do(t, http.MethodPost, "/api/v1/alerts", asha.Token, BroadcastRequest{Type: models.AlertTypeVoice, Message: "Help at gate 4"})
	require.Equal(t, http.StatusCreated, status)
	require.NoError(t, json.Unmarshal(data, &created))

	alert, err = s.alerts.AlertByID(context.Background(), created.AlertID)
	require.NoError(t, err)
	assert.Equal(t, "Asha", alert.PilgrimName, "token identity wins over the session")
	assert.Equal(t, "Help at gate 4", alert.Message)

	status, _ = s.do(t, http.MethodPost, "/api/v1/alerts", "", BroadcastRequest{Type: "fire"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/alerts", "garbage", BroadcastRequest{Type: models.AlertTypeSOS})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestBroadcast_AnonymousIgnoresLastLogin(t *testing.T) {
	s := newTestServer(t)
	s.register(t, pilgrimBody("Asha", "9000000001"))
	require.True(t, s.identity.IsAuthenticated())

	status, data := s.do(t, http.MethodPost, "/api/v1/alerts", "", BroadcastRequest{Type: models.AlertTypeSOS})
	require.Equal(t, http.StatusCreated, status, string(data))
	var created BroadcastResponse
	require.NoError(t, json.Unmarshal(data, &created))

	alert, err := s.alerts.AlertByID(context.Background(), created.AlertID)
	require.NoError(t, err)
	assert.Equal(t, "Anonymous", alert.PilgrimName)
	assert.Equal(t, "Unknown", alert.PilgrimPhone)
}

func TestAlertLifecycle(t *testing.T) {
	s := newTestServer(t)
	asha := s.register(t, pilgrimBody("Asha", "9000000001"))
	vik := s.register(t, volunteerBody("Vik", "9000000002"))

	status, data := s.do(t, http.MethodPost, "/api/v1/alerts", asha.Token, BroadcastRequest{Type: models.AlertTypeSOS})
	require.Equal(t, http.StatusCreated, status)
	var created BroadcastResponse
	require.NoError(t, json.Unmarshal(data, &created))
	path := "/api/v1/alerts/" + created.AlertID

	status, _ = s.do(t, http.MethodPost, path+"/acknowledge", asha.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodPost, path+"/acknowledge", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, data = s.do(t, http.MethodPost, path+"/acknowledge", vik.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var alert models.Alert
	require.NoError(t, json.Unmarshal(data, &alert))
	assert.Equal(t, models.AlertStatusAcknowledged, alert.Status)
	require.NotNil(t, alert.AcknowledgedBy)
	assert.Equal(t, "Vik", *alert.AcknowledgedBy)

	status, data = s.do(t, http.MethodGet, "/api/v1/responses", "", nil)
	require.Equal(t, http.StatusOK, status)
	var responses struct {
		Responses []models.Response `json:"responses"`
		Total     int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(data, &responses))
	require.Equal(t, 1, responses.Total)
	assert.Equal(t, "9000000002", responses.Responses[0].VolunteerPhone)

	status, _ = s.do(t, http.MethodPost, "/api/v1/alerts/alert_missing/acknowledge", vik.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, data = s.do(t, http.MethodPost, path+"/resolve", vik.Token, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(data, &alert))
	assert.Equal(t, models.AlertStatusResolved, alert.Status)

	status, _ = s.do(t, http.MethodGet, "/api/v1/alerts/alert_missing", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListAlerts(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	first, err := s.alerts.Broadcast(ctx, models.AlertTypeSOS, "")
	require.NoError(t, err)
	second, err := s.alerts.Broadcast(ctx, models.AlertTypeGesture, "")
	require.NoError(t, err)
	require.NoError(t, s.alerts.Resolve(ctx, first))

	type listBody struct {
		Alerts []models.Alert `json:"alerts"`
		Total  int            `json:"total"`
	}

	tests := []struct {
		query   string
		wantIDs []string
	}{
		{"", []string{second, first}},
		{"?status=active", []string{second}},
		{"?status=resolved", []string{first}},
		{"?status=acknowledged", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			status, data := s.do(t, http.MethodGet, "/api/v1/alerts"+tt.query, "", nil)
			require.Equal(t, http.StatusOK, status)

			var body listBody
			require.NoError(t, json.Unmarshal(data, &body))
			ids := make([]string, 0, len(body.Alerts))
			for _, a := range body.Alerts {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, len(tt.wantIDs), body.Total)
		})
	}

	status, _ := s.do(t, http.MethodGet, "/api/v1/alerts?status=closed", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func (s *testServer) dialWS(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) services.WSMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg services.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_AlertRoundTrip(t *testing.T) {
	s := newTestServer(t)
	asha := s.register(t, pilgrimBody("Asha", "9000000001"))
	vik := s.register(t, volunteerBody("Vik", "9000000002"))

	volunteerConn := s.dialWS(t, vik.Token)
	hello := readWS(t, volunteerConn)
	assert.Equal(t, services.WSTypeHello, hello.Type)
	assert.Equal(t, models.RoleVolunteer, hello.Role)

	pilgrimConn := s.dialWS(t, asha.Token)
	hello = readWS(t, pilgrimConn)
	assert.Equal(t, models.RolePilgrim, hello.Role)

	status, data := s.do(t, http.MethodPost, "/api/v1/alerts", asha.Token, BroadcastRequest{Type: models.AlertTypeSOS})
	require.Equal(t, http.StatusCreated, status)
	var created BroadcastResponse
	require.NoError(t, json.Unmarshal(data, &created))

	msg := readWS(t, volunteerConn)
	assert.Equal(t, services.WSTypeAlert, msg.Type)
	require.NotNil(t, msg.Alert)
	assert.Equal(t, created.AlertID, msg.Alert.ID)
	assert.Equal(t, "Asha", msg.Alert.PilgrimName)

	status, _ = s.do(t, http.MethodPost, "/api/v1/alerts/"+created.AlertID+"/acknowledge", vik.Token, nil)
	require.Equal(t, http.StatusOK, status)

	msg = readWS(t, pilgrimConn)
	assert.Equal(t, services.WSTypeResponse, msg.Type)
	require.NotNil(t, msg.Response)
	assert.Equal(t, created.AlertID, msg.Response.AlertID)
	assert.Equal(t, "Vik", msg.Response.VolunteerName)

	require.NoError(t, pilgrimConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	msg = readWS(t, pilgrimConn)
	assert.Equal(t, services.WSTypeError, msg.Type)
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	s := newTestServer(t)

	for _, token := range []string{"", "bogus"} {
		url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + token
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}
