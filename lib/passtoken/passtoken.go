// Package passtoken mints signed tokens for solved challenges and redeems
// each of them at most once.
package passtoken

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/creditpath/captchad"
	"github.com/creditpath/captchad/lib/challenge"
	"github.com/creditpath/captchad/lib/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalid  = errors.New("passtoken: token is invalid")
	ErrRedeemed = errors.New("passtoken: token was already redeemed or has expired")
)

// Claims are the JWT claims of a pass token.
type Claims struct {
	jwt.RegisteredClaims
	ChallengeID string `json:"cid"`
	Hostname    string `json:"hostname,omitempty"`
}

// Redemption is what siteverify learns about a redeemed token.
type Redemption struct {
	ChallengeID string    `json:"challengeId"`
	SolvedAt    time.Time `json:"solvedAt"`
	Hostname    string    `json:"hostname"`
}

type Options struct {
	Store             store.Interface
	ED25519PrivateKey ed25519.PrivateKey
	HS512Secret       []byte
	Expiration        time.Duration
	Now               func() time.Time
}

// Issuer signs pass tokens and tracks which are still redeemable.
type Issuer struct {
	pending     store.JSON[Redemption]
	ed25519Priv ed25519.PrivateKey
	hs512Secret []byte
	expiration  time.Duration
	now         func() time.Time
}

func New(opts Options) (*Issuer, error) {
	if opts.ED25519PrivateKey == nil && opts.HS512Secret == nil {
		slog.Debug("opts.ED25519PrivateKey not set, generating a new one")
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("passtoken: can't generate private key: %v", err)
		}
		opts.ED25519PrivateKey = priv
	}

	if opts.Expiration <= 0 {
		opts.Expiration = captchad.DefaultPassTokenExpiration
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Issuer{
		pending: store.JSON[Redemption]{
			Underlying: opts.Store,
			Prefix:     captchad.PassTokenKeyPrefix,
		},
		ed25519Priv: opts.ED25519PrivateKey,
		hs512Secret: opts.HS512Secret,
		expiration:  opts.Expiration,
		now:         opts.Now,
	}, nil
}

func (i *Issuer) sign(claims *Claims) (string, error) {
	if len(i.hs512Secret) == 0 {
		return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.ed25519Priv)
	} else {
		return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(i.hs512Secret)
	}
}

// Mint creates a redeemable token for a challenge that was just verified.
func (i *Issuer) Mint(ctx context.Context, rec *challenge.Record, hostname string) (string, error) {
	now := i.now()
	jti := uuid.Must(uuid.NewV7()).String()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    "captchad",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-1 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiration)),
		},
		ChallengeID: rec.ID,
		Hostname:    hostname,
	}

	token, err := i.sign(claims)
	if err != nil {
		return "", fmt.Errorf("passtoken: can't sign token: %w", err)
	}

	if err := i.pending.Set(ctx, jti, Redemption{
		ChallengeID: rec.ID,
		SolvedAt:    now,
		Hostname:    hostname,
	}, i.expiration); err != nil {
		return "", fmt.Errorf("passtoken: can't record token: %w", err)
	}

	return token, nil
}

func (i *Issuer) key(token *jwt.Token) (any, error) {
	if len(i.hs512Secret) == 0 {
		return i.ed25519Priv.Public(), nil
	}

	return i.hs512Secret, nil
}

func (i *Issuer) method() string {
	if len(i.hs512Secret) == 0 {
		return jwt.SigningMethodEdDSA.Alg()
	}

	return jwt.SigningMethodHS512.Alg()
}

// Redeem checks the token signature and consumes its pending entry. A token
// redeems successfully exactly once.
func (i *Issuer) Redeem(ctx context.Context, tokenString string) (*Redemption, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, i.key,
		jwt.WithValidMethods([]string{i.method()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrRedeemed, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if claims.ID == "" {
		return nil, fmt.Errorf("%w: no jti", ErrInvalid)
	}

	red, err := i.pending.GetDel(ctx, claims.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrRedeemed
	case err != nil:
		return nil, fmt.Errorf("passtoken: can't look up token: %w", err)
	}

	return &red, nil
}
