package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ListPeers returns every paired remote instance
func ListPeers(db *gorm.DB) ([]Peer, error) {
	var peers []Peer
	if err := db.Find(&peers).Error; err != nil {
		return nil, err
	}
	return peers, nil
}

// GetPeerByHeartbeatToken looks up a peer by the token it presents on
// inbound heartbeat pushes
func GetPeerByHeartbeatToken(db *gorm.DB, token string) (*Peer, error) {
	var peer Peer
	err := db.Where("heartbeat_token = ?", token).First(&peer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &peer, nil
}

// GetPeerByWebhookToken looks up a peer by the token it presents on
// inbound dispatch-health webhook calls
func GetPeerByWebhookToken(db *gorm.DB, token string) (*Peer, error) {
	var peer Peer
	err := db.Where("webhook_token = ?", token).First(&peer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &peer, nil
}

// CreatePeer persists a new peer
func CreatePeer(db *gorm.DB, peer *Peer) error {
	return db.Create(peer).Error
}

// DeletePeer removes a peer by primary key
func DeletePeer(db *gorm.DB, id uint) error {
	return db.Delete(&Peer{}, id).Error
}

// CreatePairingSecret persists a freshly generated handshake secret
func CreatePairingSecret(db *gorm.DB, secret *PairingSecret) error {
	return db.Create(secret).Error
}

// ConsumePairingSecret validates and consumes a handshake secret. The
// guarded update makes the consumption atomic: of two concurrent callers
// presenting the same secret, exactly one sees a row flip from unused to
// used and wins.
func ConsumePairingSecret(db *gorm.DB, secret string, now time.Time) (bool, error) {
	result := db.Model(&PairingSecret{}).
		Where("secret = ? AND used = ? AND expires_at > ?", secret, false, now).
		Update("used", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DeleteExpiredPairingSecrets removes stale handshake secrets
func DeleteExpiredPairingSecrets(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Where("expires_at < ? OR used = ?", now, true).Delete(&PairingSecret{})
	return result.RowsAffected, result.Error
}
