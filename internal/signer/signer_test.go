package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/controller/pkg/felt"
)

func newKey(t *testing.T) *SigningKey {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	return key
}

func TestGenerateKey_ScalarFitsInFelt(t *testing.T) {
	for i := 0; i < 20; i++ {
		key := newKey(t)
		scalar, err := key.SecretScalar()
		require.NoError(t, err)
		assert.Less(t, scalar.Big().BitLen(), 251)

		restored, err := FromSecretScalar(scalar)
		require.NoError(t, err)
		assert.Equal(t, key.Identity(), restored.Identity())
	}
}

func TestFromSecretScalar_RejectsZero(t *testing.T) {
	_, err := FromSecretScalar(felt.Zero)
	var signErr *SignError
	assert.True(t, errors.As(err, &signErr))
}

func TestKeySigner_SignAndVerify(t *testing.T) {
	ctx := context.Background()
	owner := NewOwner(newKey(t))
	hash := felt.PoseidonMany(felt.FromUint64(1234))

	sig, err := owner.SignHash(ctx, hash)
	require.NoError(t, err)
	require.Len(t, sig, KeySignatureLen)
	assert.Equal(t, felt.FromUint64(uint64(SchemeSecp256k1)), sig[0])
	assert.Equal(t, owner.Identity(), sig[1])

	require.NoError(t, Verify(sig, hash))

	other := felt.PoseidonMany(felt.FromUint64(4321))
	assert.Error(t, Verify(sig, other))
}

func TestKinds(t *testing.T) {
	key := newKey(t)
	assert.Equal(t, KindOwner, NewOwner(key).Kind())
	assert.Equal(t, KindGuardian, NewGuardian(key).Kind())
	assert.Equal(t, KindSession, NewSession(key).Kind())
	assert.Equal(t, "session", KindSession.String())
}

func TestSerialize(t *testing.T) {
	owner := NewOwner(newKey(t))
	assert.Equal(t, []felt.Felt{felt.FromUint64(1), owner.Identity()}, Serialize(owner))
}

func TestDual_OwnerFirst(t *testing.T) {
	ctx := context.Background()
	owner := NewOwner(newKey(t))
	guardian := NewGuardian(newKey(t))
	hash := felt.PoseidonMany(felt.FromUint64(7))

	sig, err := Dual(owner, guardian).SignHash(ctx, hash)
	require.NoError(t, err)
	require.Len(t, sig, 2*KeySignatureLen)

	assert.Equal(t, owner.Identity(), sig[1])
	assert.Equal(t, guardian.Identity(), sig[KeySignatureLen+1])
	require.NoError(t, Verify(sig[:KeySignatureLen], hash))
	require.NoError(t, Verify(sig[KeySignatureLen:], hash))
}

func TestDual_WithoutGuardian(t *testing.T) {
	owner := NewOwner(newKey(t))

	sig, err := Dual(owner, nil).SignHash(context.Background(), felt.One)
	require.NoError(t, err)
	assert.Len(t, sig, KeySignatureLen)
}

func TestHardware_SoftAuthenticator(t *testing.T) {
	auth, err := NewSoftAuthenticator("https://play.example.com")
	require.NoError(t, err)

	hw := NewHardware(auth)
	assert.Equal(t, KindHardware, hw.Kind())
	assert.Equal(t, SchemeWebauthn, hw.Scheme())

	sig, err := hw.SignHash(context.Background(), felt.PoseidonMany(felt.FromUint64(99)))
	require.NoError(t, err)
	assert.Equal(t, felt.FromUint64(uint64(SchemeWebauthn)), sig[0])
	assert.Equal(t, hw.Identity(), sig[1])

	// authenticator data is 37 bytes: rpIdHash, flags, counter
	assert.Equal(t, felt.FromUint64(37), sig[6])
}

func TestHardware_CancelledContext(t *testing.T) {
	auth, err := NewSoftAuthenticator("https://play.example.com")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewHardware(auth).SignHash(ctx, felt.One)
	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.ErrorIs(t, err, ErrUserCancelled)
}

type unavailableAuthenticator struct {
	pub *ecdsa.PublicKey
}

func (u unavailableAuthenticator) PublicKey() *ecdsa.PublicKey { return u.pub }
func (u unavailableAuthenticator) Origin() string              { return "https://play.example.com" }

func (u unavailableAuthenticator) GetAssertion(context.Context, []byte) (*Assertion, error) {
	return nil, ErrAuthenticatorUnavailable
}

type tamperingAuthenticator struct {
	*SoftAuthenticator
}

func (t tamperingAuthenticator) GetAssertion(ctx context.Context, challenge []byte) (*Assertion, error) {
	a, err := t.SoftAuthenticator.GetAssertion(ctx, challenge)
	if err != nil {
		return nil, err
	}
	a.AuthenticatorData[32] ^= 0xff
	return a, nil
}

func TestHardware_DeviceFailures(t *testing.T) {
	soft, err := NewSoftAuthenticator("https://play.example.com")
	require.NoError(t, err)

	t.Run("authenticator unavailable", func(t *testing.T) {
		_, err := NewHardware(unavailableAuthenticator{pub: soft.PublicKey()}).SignHash(context.Background(), felt.One)
		var devErr *DeviceError
		require.True(t, errors.As(err, &devErr))
		assert.ErrorIs(t, err, ErrAuthenticatorUnavailable)
	})

	t.Run("tampered assertion fails verification", func(t *testing.T) {
		_, err := NewHardware(tamperingAuthenticator{soft}).SignHash(context.Background(), felt.One)
		assert.ErrorIs(t, err, ErrAssertionVerification)
	})
}

func signedAssertion(t *testing.T, a *SoftAuthenticator, cd protocol.CollectedClientData, rpID string, flags protocol.AuthenticatorFlags) *Assertion {
	t.Helper()
	raw, err := json.Marshal(cd)
	require.NoError(t, err)

	rpHash := sha256.Sum256([]byte(rpID))
	authData := append(rpHash[:], byte(flags), 0, 0, 0, 1)
	cdHash := sha256.Sum256(raw)
	digest := sha256.Sum256(append(append([]byte(nil), authData...), cdHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	require.NoError(t, err)
	return &Assertion{AuthenticatorData: authData, ClientDataJSON: raw, Signature: sig}
}

func TestVerifyAssertion(t *testing.T) {
	soft, err := NewSoftAuthenticator("https://play.example.com")
	require.NoError(t, err)
	other, err := NewSoftAuthenticator("https://play.example.com")
	require.NoError(t, err)

	challenge := felt.FromUint64(7).Bytes()
	valid := protocol.CollectedClientData{
		Type:      protocol.AssertCeremony,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    "https://play.example.com",
	}
	with := func(f func(*protocol.CollectedClientData)) protocol.CollectedClientData {
		cd := valid
		f(&cd)
		return cd
	}
	present := protocol.FlagUserPresent | protocol.FlagUserVerified

	tests := []struct {
		name      string
		assertion *Assertion
		wantErr   bool
	}{
		{name: "valid", assertion: signedAssertion(t, soft, valid, "play.example.com", present)},
		{name: "nil assertion", wantErr: true},
		{
			name:      "registration ceremony",
			assertion: signedAssertion(t, soft, with(func(cd *protocol.CollectedClientData) { cd.Type = protocol.CreateCeremony }), "play.example.com", present),
			wantErr:   true,
		},
		{
			name: "different challenge",
			assertion: signedAssertion(t, soft, with(func(cd *protocol.CollectedClientData) {
				cd.Challenge = base64.RawURLEncoding.EncodeToString(felt.FromUint64(8).Bytes())
			}), "play.example.com", present),
			wantErr: true,
		},
		{
			name:      "foreign origin",
			assertion: signedAssertion(t, soft, with(func(cd *protocol.CollectedClientData) { cd.Origin = "https://evil.example.com" }), "play.example.com", present),
			wantErr:   true,
		},
		{name: "foreign rp id", assertion: signedAssertion(t, soft, valid, "evil.example.com", present), wantErr: true},
		{name: "user not present", assertion: signedAssertion(t, soft, valid, "play.example.com", protocol.FlagUserVerified), wantErr: true},
		{name: "signed by another credential", assertion: signedAssertion(t, other, valid, "play.example.com", present), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyAssertion(soft.PublicKey(), soft.Origin(), challenge, tt.assertion)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
