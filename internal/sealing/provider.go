// Package sealing encrypts stored session credentials at rest.
//
// A Provider seals and opens opaque blobs. Backends are a local AES-GCM key,
// AWS KMS and the HashiCorp Vault Transit engine.
package sealing

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vault "github.com/hashicorp/vault/api"
	"golang.org/x/crypto/hkdf"
)

// Provider seals and opens data. The associated data aad is authenticated
// but not stored; Open must be given the same aad that Seal was.
type Provider interface {
	// Seal encrypts data bound to aad
	Seal(ctx context.Context, data, aad []byte) ([]byte, error)

	// Open decrypts data produced by Seal with the same aad
	Open(ctx context.Context, sealed, aad []byte) ([]byte, error)

	// Name returns the provider name (e.g., "local", "aws-kms", "vault")
	Name() string
}

// ProviderType names a supported provider
type ProviderType string

const (
	// ProviderNone disables sealing
	ProviderNone ProviderType = "none"

	// ProviderLocal derives an AES-256-GCM key from a local secret
	ProviderLocal ProviderType = "local"

	// ProviderAWSKMS uses AWS KMS
	ProviderAWSKMS ProviderType = "aws-kms"

	// ProviderVault uses the Vault Transit engine
	ProviderVault ProviderType = "vault"
)

// Config selects and configures a provider
type Config struct {
	Provider string

	// Local provider
	LocalKey string

	// AWS KMS
	AWSKeyID  string
	AWSRegion string

	// Vault
	VaultAddress    string
	VaultToken      string
	VaultTransitKey string
}

const localKeyInfo = "controller/sealing/v1"

// LocalProvider seals with AES-256-GCM under a key derived from a local secret
type LocalProvider struct {
	aead cipher.AEAD
}

// NewLocalProvider derives the sealing key from secret with HKDF-SHA256
func NewLocalProvider(secret string) (*LocalProvider, error) {
	if secret == "" {
		return nil, fmt.Errorf("secret is required for local sealing provider")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(localKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &LocalProvider{aead: aead}, nil
}

// Seal prefixes a random nonce to the ciphertext
func (p *LocalProvider) Seal(ctx context.Context, data, aad []byte) ([]byte, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return p.aead.Seal(nonce, nonce, data, aad), nil
}

// Open reverses Seal
func (p *LocalProvider) Open(ctx context.Context, sealed, aad []byte) ([]byte, error) {
	nonceSize := p.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := p.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed data: %w", err)
	}
	return plaintext, nil
}

// Name returns the provider name
func (p *LocalProvider) Name() string {
	return string(ProviderLocal)
}

// AWSKMSProvider seals with an AWS KMS key
type AWSKMSProvider struct {
	keyID  string
	client *kms.Client
}

// NewAWSKMSProvider creates a provider using the default AWS credential chain
func NewAWSKMSProvider(ctx context.Context, keyID, region string) (*AWSKMSProvider, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSKMSProvider{
		keyID:  keyID,
		client: kms.NewFromConfig(cfg),
	}, nil
}

// kmsContextKey names the encryption context entry carrying the aad
const kmsContextKey = "controller:storage-key"

func encryptionContext(aad []byte) map[string]string {
	if len(aad) == 0 {
		return nil
	}
	return map[string]string{kmsContextKey: string(aad)}
}

// Seal encrypts data with KMS. aad travels as the encryption context.
func (p *AWSKMSProvider) Seal(ctx context.Context, data, aad []byte) ([]byte, error) {
	out, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(p.keyID),
		Plaintext:         data,
		EncryptionContext: encryptionContext(aad),
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS encrypt failed: %w", err)
	}
	return out.CiphertextBlob, nil
}

// Open decrypts data with KMS
func (p *AWSKMSProvider) Open(ctx context.Context, sealed, aad []byte) ([]byte, error) {
	out, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:             aws.String(p.keyID),
		CiphertextBlob:    sealed,
		EncryptionContext: encryptionContext(aad),
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS decrypt failed: %w", err)
	}
	return out.Plaintext, nil
}

// Name returns the provider name
func (p *AWSKMSProvider) Name() string {
	return string(ProviderAWSKMS)
}

// VaultProvider seals with a Vault Transit key
type VaultProvider struct {
	transitKey string
	client     *vault.Client
}

// NewVaultProvider creates a Vault Transit provider
func NewVaultProvider(address, token, transitKey string) (*VaultProvider, error) {
	if address == "" {
		return nil, fmt.Errorf("Vault address is required")
	}
	if token == "" {
		return nil, fmt.Errorf("Vault token is required")
	}
	if transitKey == "" {
		return nil, fmt.Errorf("Vault transit key name is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultProvider{transitKey: transitKey, client: client}, nil
}

func transitRequest(field string, value string, aad []byte) map[string]interface{} {
	req := map[string]interface{}{field: value}
	if len(aad) > 0 {
		// requires an AEAD transit key type (aes256-gcm96, chacha20-poly1305)
		req["associated_data"] = base64.StdEncoding.EncodeToString(aad)
	}
	return req
}

// Seal encrypts data with Transit. aad is sent as associated_data.
func (p *VaultProvider) Seal(ctx context.Context, data, aad []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/encrypt/%s", p.transitKey)
	secret, err := p.client.Logical().WriteWithContext(ctx, path,
		transitRequest("plaintext", base64.StdEncoding.EncodeToString(data), aad))
	if err != nil {
		return nil, fmt.Errorf("Vault Transit encrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("Vault Transit encrypt returned empty response")
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault Transit encrypt: ciphertext not found in response")
	}
	// vault:v1:... strings are stored as-is
	return []byte(ciphertext), nil
}

// Open decrypts data with Transit
func (p *VaultProvider) Open(ctx context.Context, sealed, aad []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/decrypt/%s", p.transitKey)
	secret, err := p.client.Logical().WriteWithContext(ctx, path,
		transitRequest("ciphertext", string(sealed), aad))
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("Vault Transit decrypt returned empty response")
	}

	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault Transit decrypt: plaintext not found in response")
	}

	plaintext, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt: failed to decode plaintext: %w", err)
	}
	return plaintext, nil
}

// Name returns the provider name
func (p *VaultProvider) Name() string {
	return string(ProviderVault)
}

// New creates a provider from configuration. ProviderNone (or an empty
// provider) returns nil, meaning values are stored unsealed.
func New(ctx context.Context, cfg *Config) (Provider, error) {
	switch ProviderType(cfg.Provider) {
	case ProviderNone, "":
		return nil, nil
	case ProviderLocal:
		return NewLocalProvider(cfg.LocalKey)
	case ProviderAWSKMS:
		return NewAWSKMSProvider(ctx, cfg.AWSKeyID, cfg.AWSRegion)
	case ProviderVault:
		return NewVaultProvider(cfg.VaultAddress, cfg.VaultToken, cfg.VaultTransitKey)
	default:
		return nil, fmt.Errorf("unsupported sealing provider: %s (supported: %s, %s, %s, %s)",
			cfg.Provider, ProviderNone, ProviderLocal, ProviderAWSKMS, ProviderVault)
	}
}

var (
	_ Provider = (*LocalProvider)(nil)
	_ Provider = (*AWSKMSProvider)(nil)
	_ Provider = (*VaultProvider)(nil)
)
