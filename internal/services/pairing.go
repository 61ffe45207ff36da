package services

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/httpx"
)

// Pairing errors surfaced to the API layer
var (
	ErrInvalidSecret = errors.New("pairing secret is invalid, expired or already used")
	ErrTokenExpired  = errors.New("pairing token has expired")
)

const pairingSecretTTL = 10 * time.Minute

// PairingToken is the opaque bundle handed to the operator: everything
// the other instance needs to call back and present the secret.
type PairingToken struct {
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	Secret    string    `json:"secret"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AcceptResult is what the accepting instance returns: the credentials
// the remote side uses for its ongoing heartbeat and webhook pushes.
type AcceptResult struct {
	HeartbeatToken           string `json:"heartbeat_token"`
	WebhookToken             string `json:"webhook_token"`
	HeartbeatIntervalSeconds int    `json:"heartbeat_interval_seconds"`
}

// PairingService drives the three-step pairing handshake. Secrets and
// tokens are bearer-style strings; the secret itself is the credential
// for the accept and unpair endpoints.
type PairingService struct {
	db                *gorm.DB
	instanceName      string
	baseURL           string
	heartbeatInterval int
	clients           *httpx.Factory
}

// NewPairingService creates a pairing service
func NewPairingService(db *gorm.DB, instanceName, baseURL string, heartbeatInterval int, clients *httpx.Factory) *PairingService {
	return &PairingService{
		db:                db,
		instanceName:      instanceName,
		baseURL:           strings.TrimRight(baseURL, "/"),
		heartbeatInterval: heartbeatInterval,
		clients:           clients,
	}
}

// Initiate generates a single-use secret with a ten-minute expiry and
// returns it bundled with this instance's callback details as one opaque
// base64 token for the operator to copy.
func (p *PairingService) Initiate() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate pairing secret: %w", err)
	}
	secret := hex.EncodeToString(raw)
	expiresAt := time.Now().Add(pairingSecretTTL)

	if err := database.CreatePairingSecret(p.db, &database.PairingSecret{
		Secret:    secret,
		ExpiresAt: expiresAt,
	}); err != nil {
		return "", err
	}

	bundle, err := json.Marshal(PairingToken{
		URL:       p.baseURL,
		Name:      p.instanceName,
		Secret:    secret,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(bundle), nil
}

// DecodeToken unpacks an operator-pasted pairing token
func DecodeToken(token string) (*PairingToken, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("malformed pairing token: %w", err)
	}
	var decoded PairingToken
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("malformed pairing token: %w", err)
	}
	return &decoded, nil
}

// ValidateSecret checks and consumes a presented secret. Validation is
// single-use: a secret that validated once can never validate again.
func (p *PairingService) ValidateSecret(secret string) (bool, error) {
	return database.ConsumePairingSecret(p.db, secret, time.Now())
}

// HandleAccept runs on the initiating instance when the remote side calls
// back with the secret. It consumes the secret, creates a service and
// peer record for the remote instance and mints the tokens the remote
// will push with.
func (p *PairingService) HandleAccept(secret, remoteName, remoteURL string) (*AcceptResult, error) {
	valid, err := p.ValidateSecret(secret)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, ErrInvalidSecret
	}

	result := &AcceptResult{
		HeartbeatToken:           uuid.New().String(),
		WebhookToken:             uuid.New().String(),
		HeartbeatIntervalSeconds: p.heartbeatInterval,
	}

	err = p.db.Transaction(func(tx *gorm.DB) error {
		service := &database.Service{
			Name:     fmt.Sprintf("Peer: %s", remoteName),
			Severity: database.SeverityHigh,
		}
		if err := tx.Create(service).Error; err != nil {
			return err
		}
		return database.CreatePeer(tx, &database.Peer{
			Name:                     remoteName,
			URL:                      strings.TrimRight(remoteURL, "/"),
			HeartbeatToken:           result.HeartbeatToken,
			WebhookToken:             result.WebhookToken,
			ServiceID:                service.ID,
			PairedAt:                 time.Now(),
			HeartbeatIntervalSeconds: p.heartbeatInterval,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Complete runs on the accepting operator's instance: it decodes the
// pasted token, presents the secret to the remote /pair/accept endpoint
// and records the peer with the credentials the remote minted for us.
func (p *PairingService) Complete(token string) (*database.Peer, error) {
	decoded, err := DecodeToken(token)
	if err != nil {
		return nil, err
	}
	if time.Now().After(decoded.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	payload, err := json.Marshal(map[string]string{
		"secret": decoded.Secret,
		"name":   p.instanceName,
		"url":    p.baseURL,
	})
	if err != nil {
		return nil, err
	}

	client := p.clients.Client(httpx.ClientPeerNotification)
	resp, err := client.Post(decoded.URL+"/pair/accept", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("pairing call to %s failed: %w", decoded.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pairing rejected by %s: status %d", decoded.URL, resp.StatusCode)
	}

	var result AcceptResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("malformed pairing response: %w", err)
	}

	var peer *database.Peer
	err = p.db.Transaction(func(tx *gorm.DB) error {
		service := &database.Service{
			Name:     fmt.Sprintf("Peer: %s", decoded.Name),
			Severity: database.SeverityHigh,
		}
		if err := tx.Create(service).Error; err != nil {
			return err
		}
		peer = &database.Peer{
			Name:                     decoded.Name,
			URL:                      decoded.URL,
			HeartbeatToken:           result.HeartbeatToken,
			WebhookToken:             result.WebhookToken,
			ServiceID:                service.ID,
			PairedAt:                 time.Now(),
			HeartbeatIntervalSeconds: result.HeartbeatIntervalSeconds,
		}
		return database.CreatePeer(tx, peer)
	})
	if err != nil {
		return nil, err
	}
	return peer, nil
}

// Unpair removes a peer and the local service that represented it
func (p *PairingService) Unpair(peerID uint) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		var peer database.Peer
		err := tx.First(&peer, peerID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&database.Service{}, peer.ServiceID).Error; err != nil {
			return err
		}
		return database.DeletePeer(tx, peer.ID)
	})
}
