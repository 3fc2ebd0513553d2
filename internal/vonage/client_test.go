package vonage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nunutzi10/foam-ai/internal/messages"
	"github.com/nunutzi10/foam-ai/internal/tenants"
)

func testPrivateKeyPEM(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return string(pem.EncodeToMemory(block)), key
}

func TestNewClientHostSelection(t *testing.T) {
	pemKey, _ := testPrivateKeyPEM(t)

	prod, err := NewClient(nil, "app-1", pemKey, true, nil)
	require.NoError(t, err)
	assert.Equal(t, productionHost, prod.host)

	sandbox, err := NewClient(nil, "app-1", pemKey, false, nil)
	require.NoError(t, err)
	assert.Equal(t, sandboxHost, sandbox.host)
}

func TestNewClientRejectsBadKey(t *testing.T) {
	_, err := NewClient(nil, "app-1", "not a key", true, nil)
	require.Error(t, err)
}

func TestSendText(t *testing.T) {
	pemKey, key := testPrivateKeyPEM(t)

	var captured sendRequest
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"message_uuid":"uuid-123"}`))
	}))
	defer srv.Close()

	client, err := NewClient(nil, "app-1", pemKey, true, srv.Client())
	require.NoError(t, err)
	client.host = srv.URL

	uuid, err := client.Send(context.Background(), Outbound{
		To:          "5215512345678",
		From:        "14155550100",
		ContentType: messages.ContentTypeText,
		Body:        "hola",
	})
	require.NoError(t, err)
	assert.Equal(t, "uuid-123", uuid)

	assert.Equal(t, "whatsapp", captured.Channel)
	assert.Equal(t, "text", captured.MessageType)
	assert.Equal(t, "hola", captured.Text)
	assert.Equal(t, "5215512345678", captured.To)

	// The bearer token must be an RS256 application JWT.
	require.True(t, strings.HasPrefix(authHeader, "Bearer "))
	parsed, err := jwt.Parse(strings.TrimPrefix(authHeader, "Bearer "), func(tok *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "app-1", claims["application_id"])
	assert.NotEmpty(t, claims["jti"])
}

func TestSendAPIErrorSurfaces(t *testing.T) {
	pemKey, _ := testPrivateKeyPEM(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"title":"Unauthorized","detail":"bad token"}`))
	}))
	defer srv.Close()

	client, err := NewClient(nil, "app-1", pemKey, true, srv.Client())
	require.NoError(t, err)
	client.host = srv.URL

	_, err = client.Send(context.Background(), Outbound{
		To: "1", From: "2", ContentType: messages.ContentTypeText, Body: "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestBuildSendRequest(t *testing.T) {
	image, err := buildSendRequest(Outbound{
		To: "1", From: "2",
		ContentType: messages.ContentTypeImage,
		Body:        "pie de foto",
		MediaURL:    "https://example.com/a.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "image", image.MessageType)
	require.NotNil(t, image.Image)
	assert.Equal(t, "https://example.com/a.jpg", image.Image.URL)
	assert.Equal(t, "pie de foto", image.Image.Caption)

	audio, err := buildSendRequest(Outbound{
		To: "1", From: "2",
		ContentType: messages.ContentTypeAudio,
		MediaURL:    "https://example.com/a.ogg",
	})
	require.NoError(t, err)
	assert.Equal(t, "audio", audio.MessageType)
	require.NotNil(t, audio.Audio)
	assert.Empty(t, audio.Audio.Caption)

	for _, kind := range []messages.ContentType{
		messages.ContentTypeVideo,
		messages.ContentTypeLocation,
		messages.ContentTypeSticker,
		messages.ContentTypeUnsupported,
	} {
		_, err := buildSendRequest(Outbound{ContentType: kind})
		assert.ErrorIs(t, err, ErrUnsupportedContent, kind.String())
	}
}

func TestCacheReusesAndInvalidates(t *testing.T) {
	pemKey, _ := testPrivateKeyPEM(t)
	tenant := tenants.Tenant{
		ID: 7,
		Settings: tenants.Settings{
			OpenAIAPIKey:        "sk-x",
			VonageApplicationID: "app-7",
			VonagePrivateKey:    pemKey,
			VonageProduction:    "false",
		},
	}

	cache := NewCache(nil, "", nil)

	first, err := cache.For(tenant)
	require.NoError(t, err)
	assert.Equal(t, sandboxHost, first.host)

	second, err := cache.For(tenant)
	require.NoError(t, err)
	assert.Same(t, first, second, "clients are cached per tenant")

	cache.Invalidate(tenant.ID)
	third, err := cache.For(tenant)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestCacheRequiresCredentials(t *testing.T) {
	cache := NewCache(nil, "", nil)
	_, err := cache.For(tenants.Tenant{ID: 1, Settings: tenants.Settings{OpenAIAPIKey: "sk-x"}})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCacheHostOverride(t *testing.T) {
	pemKey, _ := testPrivateKeyPEM(t)
	cache := NewCache(nil, "http://localhost:9999", nil)

	client, err := cache.For(tenants.Tenant{
		ID: 2,
		Settings: tenants.Settings{
			OpenAIAPIKey:        "sk-x",
			VonageApplicationID: "app-2",
			VonagePrivateKey:    pemKey,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", client.host)
}
