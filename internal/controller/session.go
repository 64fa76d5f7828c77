package controller

import (
	"context"
	"fmt"

	"github.com/better-wallet/controller/internal/account"
	"github.com/better-wallet/controller/internal/logger"
	"github.com/better-wallet/controller/internal/session"
	"github.com/better-wallet/controller/internal/signer"
	"github.com/better-wallet/controller/internal/storage"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

// MaxFeeError is returned when a session-routed transaction asks for more
// than the session's fee cap.
type MaxFeeError struct {
	MaxFee felt.Felt
	Cap    felt.Felt
}

func (e *MaxFeeError) Error() string {
	return fmt.Sprintf("max fee %s exceeds session cap %s", e.MaxFee, e.Cap)
}

// CreatedSession is what CreateSession hands back to the caller.
type CreatedSession struct {
	Authorization []felt.Felt
	PrivateKey    felt.Felt
}

// CreateSession authorizes a fresh session key for methods until expiresAt
// and stores it for the origin in ctx, replacing any previous session there.
func (c *Controller) CreateSession(ctx context.Context, methods []session.AllowedMethod, expiresAt uint64) (*CreatedSession, error) {
	selector, err := c.sessionSelector(ctx)
	if err != nil {
		return nil, wrap("create_session", KindOrigin, err)
	}

	key, err := signer.GenerateKey()
	if err != nil {
		return nil, wrap("create_session", KindSign, err)
	}
	defer key.Zero()

	sess, err := session.New(methods, expiresAt, key.Identity())
	if err != nil {
		return nil, wrap("create_session", KindSessionPolicy, err)
	}

	authorization, err := c.owner.SignHash(ctx, sess.Hash(c.chainID, c.address))
	if err != nil {
		return nil, wrap("create_session", KindSign, err)
	}

	privateKey, err := key.SecretScalar()
	if err != nil {
		return nil, wrap("create_session", KindSign, err)
	}

	meta := session.Metadata{
		Session: *sess,
		MaxFee:  c.sessionMaxFee,
		Credentials: session.Credentials{
			Authorization: authorization,
			PrivateKey:    privateKey,
		},
	}
	if err := c.backend.Set(ctx, selector, storage.SessionValue(meta)); err != nil {
		return nil, wrap("create_session", KindStorage, err)
	}

	logger.Info(ctx, "session created",
		"address", c.address.String(),
		"methods", len(methods),
		"expires_at", expiresAt,
	)
	return &CreatedSession{Authorization: authorization, PrivateKey: privateKey}, nil
}

// Session returns the stored session for the origin in ctx, or nil.
func (c *Controller) Session(ctx context.Context) (*session.Metadata, error) {
	return c.loadSession(ctx)
}

// RevokeSession forgets the stored session for the origin in ctx. The
// session stays valid on chain until it expires.
func (c *Controller) RevokeSession(ctx context.Context) error {
	selector, err := c.sessionSelector(ctx)
	if err != nil {
		return wrap("revoke_session", KindOrigin, err)
	}
	if err := c.backend.Remove(ctx, selector); err != nil {
		return wrap("revoke_session", KindStorage, err)
	}
	return nil
}

func (c *Controller) sessionSelector(ctx context.Context) (string, error) {
	origin, err := storage.RequireOrigin(ctx)
	if err != nil {
		return "", err
	}
	return storage.SessionSelector(c.address, origin, c.chainID), nil
}

func (c *Controller) loadSession(ctx context.Context) (*session.Metadata, error) {
	selector, err := c.sessionSelector(ctx)
	if err != nil {
		return nil, wrap("load_session", KindOrigin, err)
	}

	v, err := c.backend.Get(ctx, selector)
	if err != nil {
		return nil, wrap("load_session", KindStorage, err)
	}
	if v == nil || v.Session == nil {
		return nil, nil
	}
	return v.Session, nil
}

// routing is the signer chosen for one call batch.
type routing struct {
	account account.Account
	session *session.Metadata
}

// route picks the session account when a stored session covers every call,
// and the owner account otherwise. It is evaluated afresh on every call.
func (c *Controller) route(ctx context.Context, op string, calls []types.Call) (*routing, error) {
	meta, err := c.loadSession(ctx)
	if err != nil {
		return nil, err
	}
	origin, _ := storage.GetOrigin(ctx)
	ctx = logger.WithAttrs(ctx, "address", c.address.String(), "origin", origin)

	var sess *session.Session
	if meta != nil {
		sess = &meta.Session
	}

	result := c.policy.Evaluate(sess, calls)
	if !result.Allowed() {
		logger.Debug(ctx, "routing call batch", "op", op, "route", "owner", "reason", result.Reason, "calls", len(calls))
		return &routing{account: c.owner}, nil
	}

	key, err := signer.FromSecretScalar(meta.Credentials.PrivateKey)
	if err != nil {
		return nil, wrap(op, KindSign, err)
	}

	logger.Debug(ctx, "routing call batch", "op", op, "route", "session", "calls", len(calls))
	return &routing{
		account: account.NewSessionAccount(
			c.provider,
			signer.NewSession(key),
			c.address,
			c.chainID,
			meta.Credentials.Authorization,
			meta.Session,
		),
		session: meta,
	}, nil
}
