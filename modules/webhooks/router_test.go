package webhooks_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/modules/webhooks"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, _ := newRegistryService(t)
	srv := httptest.NewServer(svc.Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, owner uuid.UUID, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if owner != uuid.Nil {
		req.Header.Set("X-Owner-ID", owner.String())
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRouter_CreateSubscription(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	owner := uuid.New()

	resp := doJSON(t, http.MethodPost, srv.URL+"/webhooks", owner, map[string]any{
		"url":    "https://hooks.example.com/receive",
		"events": []string{"user.created"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	sub := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "https://hooks.example.com/receive", sub["target_url"])
	assert.Equal(t, "active", sub["status"])
	secret, _ := sub["secret"].(string)
	assert.Contains(t, secret, "whsec_", "creation response carries the secret")
}

func TestRouter_SecretOnlyOnCreate(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	owner := uuid.New()

	resp := doJSON(t, http.MethodPost, srv.URL+"/webhooks", owner, map[string]any{
		"url":    "https://hooks.example.com/receive",
		"events": []string{"user.created"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[map[string]any](t, resp)
	id := created["id"].(string)

	resp = doJSON(t, http.MethodGet, srv.URL+"/webhooks/"+id, owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[map[string]any](t, resp)
	assert.NotContains(t, got, "secret")

	resp = doJSON(t, http.MethodGet, srv.URL+"/webhooks", owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[map[string]any](t, resp)
	for _, item := range list["data"].([]any) {
		assert.NotContains(t, item.(map[string]any), "secret")
	}
}

func TestRouter_ListPagination(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	owner := uuid.New()

	for range 3 {
		resp := doJSON(t, http.MethodPost, srv.URL+"/webhooks", owner, map[string]any{
			"url":    "https://hooks.example.com/receive",
			"events": []string{"user.created"},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/webhooks?page=2&per_page=2", owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := decodeBody[map[string]any](t, resp)
	assert.Len(t, list["data"].([]any), 1)
	meta := list["meta"].(map[string]any)
	assert.EqualValues(t, 3, meta["total"])
	assert.EqualValues(t, 2, meta["page"])
}

func TestRouter_UpdateSubscription(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	owner := uuid.New()

	resp := doJSON(t, http.MethodPost, srv.URL+"/webhooks", owner, map[string]any{
		"url":    "https://hooks.example.com/receive",
		"events": []string{"user.created"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[map[string]any](t, resp)
	id := created["id"].(string)

	resp = doJSON(t, http.MethodPatch, srv.URL+"/webhooks/"+id, owner, map[string]any{
		"status": "paused",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "paused", updated["status"])
	assert.NotContains(t, updated, "secret")

	// disabled is not settable through the API
	resp = doJSON(t, http.MethodPatch, srv.URL+"/webhooks/"+id, owner, map[string]any{
		"status": "disabled",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decodeBody[map[string]map[string]any](t, resp)
	assert.Equal(t, "validation_error", body["error"]["code"])
}

func TestRouter_DeleteSubscription(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	owner := uuid.New()

	resp := doJSON(t, http.MethodPost, srv.URL+"/webhooks", owner, map[string]any{
		"url":    "https://hooks.example.com/receive",
		"events": []string{"user.created"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[map[string]any](t, resp)
	id := created["id"].(string)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/webhooks/"+id, owner, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/webhooks/"+id, owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_ErrorTaxonomy(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	owner := uuid.New()

	// Missing owner header
	resp := doJSON(t, http.MethodGet, srv.URL+"/webhooks", uuid.Nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Validation failure
	resp = doJSON(t, http.MethodPost, srv.URL+"/webhooks", owner, map[string]any{
		"url":    "ftp://hooks.example.com/x",
		"events": []string{"user.created"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Malformed JSON body
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks", bytes.NewBufferString("{"))
	require.NoError(t, err)
	req.Header.Set("X-Owner-ID", owner.String())
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	// Unknown ids
	resp = doJSON(t, http.MethodGet, srv.URL+"/webhooks/"+uuid.NewString(), owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/webhooks/not-a-uuid", owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/webhooks/deliveries/"+uuid.NewString()+"/retry", owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_DeliveriesAndRetry(t *testing.T) {
	t.Parallel()

	svc, store := newRegistryService(t)
	srv := httptest.NewServer(svc.Router())
	t.Cleanup(srv.Close)
	owner := uuid.New()

	resp := doJSON(t, http.MethodPost, srv.URL+"/webhooks", owner, map[string]any{
		"url":    "https://hooks.example.com/receive",
		"events": []string{"user.created"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[map[string]any](t, resp)
	subID := uuid.MustParse(created["id"].(string))

	// Seed a failed delivery directly; the pipeline is not running here
	delivery := &webhooks.Delivery{
		ID:             uuid.New(),
		SubscriptionID: subID,
		EventID:        uuid.New(),
		EventType:      "user.created",
		Payload:        []byte(`{"k":"v"}`),
		AttemptCount:   3,
		Status:         webhooks.DeliveryFailed,
		ErrorMessage:   "endpoint returned HTTP 500",
	}
	require.NoError(t, store.CreateDelivery(t.Context(), delivery))

	resp = doJSON(t, http.MethodGet, srv.URL+"/webhooks/"+subID.String()+"/deliveries", owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[map[string]any](t, resp)
	assert.Len(t, list["data"].([]any), 1)

	resp = doJSON(t, http.MethodPost, srv.URL+"/webhooks/deliveries/"+delivery.ID.String()+"/retry", owner, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	reset := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "pending", reset["status"])
	assert.EqualValues(t, 0, reset["attempt_count"])

	// The delivery is pending now, so a second retry is rejected
	resp = doJSON(t, http.MethodPost, srv.URL+"/webhooks/deliveries/"+delivery.ID.String()+"/retry", owner, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	rejected := decodeBody[map[string]map[string]any](t, resp)
	assert.Equal(t, "validation_error", rejected["error"]["code"])

	// Another owner cannot see or retry it
	resp = doJSON(t, http.MethodGet, srv.URL+"/webhooks/"+subID.String()+"/deliveries", uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = doJSON(t, http.MethodPost, srv.URL+"/webhooks/deliveries/"+delivery.ID.String()+"/retry", uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
