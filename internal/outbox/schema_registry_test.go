package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchemaRegistryRegistersUnknownSubject(t *testing.T) {
	var registered string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/sales_records-value/versions/latest":
			http.Error(w, `{"error_code":40401}`, http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/sales_records-value/versions":
			var body struct {
				SchemaType string `json:"schemaType"`
				Schema     string `json:"schema"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "JSON", body.SchemaType)
			registered = body.Schema
			_, _ = w.Write([]byte(`{"id":7}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "sales_records-value", recordChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.Equal(t, recordChangedSchema, registered)
}

func TestSchemaRegistryReusesLatestVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method, "existing subjects must not be re-registered")
		_, _ = w.Write([]byte(`{"id":3,"version":1}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "sales_targets-value", targetUpdatedSchema)
	require.NoError(t, err)
	require.Equal(t, 3, id)
}

func TestSchemaRegistryPropagatesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "sales_targets-value", targetUpdatedSchema)
	require.Error(t, err)
}

func TestSchemaRegistrySendsURLCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "key", user)
		require.Equal(t, "secret", pass)
		require.Equal(t, "/registry/subjects/sales_records-value/versions/latest", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":5}`))
	}))
	defer srv.Close()

	base := strings.Replace(srv.URL, "http://", "http://key:secret@", 1) + "/registry"
	id, err := NewSchemaRegistryClient(base).EnsureSchema(context.Background(), "sales_records-value", recordChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 5, id)
}

func TestSchemaRegistryRejectsInvalidURL(t *testing.T) {
	_, err := NewSchemaRegistryClient("not a url").EnsureSchema(context.Background(), "s", "{}")
	require.Error(t, err)
}

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{}`))
	require.Equal(t, []byte{0, 0, 0, 1, 2, '{', '}'}, frame)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	m := &DLQManager{baseDelay: time.Minute}
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 4*time.Minute, m.backoffDelay(3))
	require.Equal(t, time.Hour, m.backoffDelay(7))
	require.Equal(t, time.Hour, m.backoffDelay(40))
}
