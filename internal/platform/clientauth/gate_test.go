package clientauth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"vision_backend/internal/feature/annotation/domain"
	"vision_backend/internal/feature/annotation/domain/entity"
)

// stubVerifier はTokenVerifierのテスト用実装です。
type stubVerifier struct {
	subject string
	err     error
}

func (s *stubVerifier) Verify(token string) (string, error) {
	return s.subject, s.err
}

// TestGate_Authenticate_Secret はID/シークレットペアによる認証を検証します。
func TestGate_Authenticate_Secret(t *testing.T) {
	t.Parallel()

	hashed, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gate := NewGate(map[string]string{
		"client1": "secret1",
		"client2": string(hashed),
	}, nil)

	tests := []struct {
		name    string
		cred    entity.Credential
		wantErr bool
	}{
		{"valid plaintext secret", entity.Credential{ClientID: "client1", ClientSecret: "secret1"}, false},
		{"valid bcrypt secret", entity.Credential{ClientID: "client2", ClientSecret: "hunter2"}, false},
		{"wrong secret", entity.Credential{ClientID: "client1", ClientSecret: "wrongsecret"}, true},
		{"wrong secret against bcrypt", entity.Credential{ClientID: "client2", ClientSecret: "wrong"}, true},
		{"unknown client id", entity.Credential{ClientID: "nobody", ClientSecret: "secret1"}, true},
		{"empty client id", entity.Credential{ClientSecret: "secret1"}, true},
		{"empty secret", entity.Credential{ClientID: "client1"}, true},
		{"empty credential", entity.Credential{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := gate.Authenticate(tt.cred)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUnauthorized) {
					t.Errorf("expected ErrUnauthorized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestGate_Authenticate_Bearer はベアラートークンによる認証を検証します。
func TestGate_Authenticate_Bearer(t *testing.T) {
	t.Parallel()

	clients := map[string]string{"client1": "secret1"}

	tests := []struct {
		name    string
		tokens  TokenVerifier
		wantErr bool
	}{
		{"valid token for registered client", &stubVerifier{subject: "client1"}, false},
		{"valid token for revoked client", &stubVerifier{subject: "gone"}, true},
		{"invalid token", &stubVerifier{err: errors.New("invalid token")}, true},
		{"verifier not configured", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gate := NewGate(clients, tt.tokens)
			err := gate.Authenticate(entity.Credential{BearerToken: "tok"})
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUnauthorized) {
					t.Errorf("expected ErrUnauthorized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestGate_Authenticate_UnknownIDMatchesSecretMode は未知のクライアントIDの比較が
// 登録シークレットと同じ経路（bcrypt設定ならbcrypt）を通ることを検証します。
func TestGate_Authenticate_UnknownIDMatchesSecretMode(t *testing.T) {
	t.Parallel()

	hashed, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name       string
		clients    map[string]string
		wantHashed bool
	}{
		{"plaintext set", map[string]string{"client1": "secret1"}, false},
		{"bcrypt set", map[string]string{"client1": string(hashed)}, true},
		{"mixed set", map[string]string{"client1": "secret1", "client2": string(hashed)}, true},
		{"empty set", map[string]string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gate := NewGate(tt.clients, nil)
			if gate.hashedSecrets != tt.wantHashed {
				t.Errorf("expected hashedSecrets %v, got %v", tt.wantHashed, gate.hashedSecrets)
			}

			// ダミー比較経路でも未知のIDは常に拒否される
			err := gate.Authenticate(entity.Credential{ClientID: "nobody", ClientSecret: "hunter2"})
			if !errors.Is(err, domain.ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

// TestNewGate_DefensiveCopy は生成後に元のマップを変更してもゲートに影響しないことを検証します。
func TestNewGate_DefensiveCopy(t *testing.T) {
	t.Parallel()

	clients := map[string]string{"client1": "secret1"}
	gate := NewGate(clients, nil)

	clients["client1"] = "tampered"

	if err := gate.Authenticate(entity.Credential{ClientID: "client1", ClientSecret: "secret1"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
