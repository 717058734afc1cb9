package walletunlocker

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/keyoracle/keyoracle/keychain"
	"github.com/keyoracle/keyoracle/prompt"
	"github.com/keyoracle/keyoracle/session"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrInvalidEmail is returned when the email is empty.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrInvalidToken is returned when the origin token does not have the
	// expected length.
	ErrInvalidToken = errors.New("invalid initialization token")

	// ErrInvalidOriginKey is returned when the expected origin public key
	// cannot be parsed.
	ErrInvalidOriginKey = errors.New("invalid origin public key")

	// ErrPassphraseRequired is returned when the user cancels the
	// passphrase prompt or enters an empty passphrase.
	ErrPassphraseRequired = errors.New("passphrase required")

	// ErrPassphraseMismatch is returned when the two entries of a new
	// passphrase differ or are empty.
	ErrPassphraseMismatch = errors.New("passphrases did not match")

	// ErrAuthFailed is returned when the derived origin key does not match
	// the expected origin key.
	ErrAuthFailed = errors.New("origin key mismatch")
)

const (
	msgInvalidEmail = "Invalid email address."
	msgInvalidToken = "Invalid initialization token."
	msgPassMismatch = "Your passwords did not match."

	msgStretchNotice = "Your wallet is about to be unlocked. This " +
		"involves a large number of hash operations to strengthen " +
		"your wallet against outside attacks and may take a while."
)

// Config houses the collaborators of the UnlockerService.
type Config struct {
	// Session owns the stretched secret.
	Session *session.Session

	// Stretcher turns email and passphrase into the stretched secret.
	Stretcher *keychain.Stretcher

	// Prompter is used to obtain passphrases from the user.
	Prompter prompt.Prompter

	// TokenLength is the exact length of the origin token.
	TokenLength int

	// Owner is shown to the user when asking for the passphrase.
	Owner string
}

// UnlockerService implements the unlock state machine and the creation of
// the origin key for a new wallet.
type UnlockerService struct {
	cfg *Config
}

// New creates and returns a new UnlockerService.
func New(cfg *Config) *UnlockerService {
	return &UnlockerService{
		cfg: cfg,
	}
}

// Unlock asks the user for the passphrase, stretches it and checks that it
// reproduces expectedPub for token0. Only a verified secret is stored in the
// session. An already unlocked session is reported as success without
// prompting.
func (u *UnlockerService) Unlock(ctx context.Context, email string, token0,
	expectedPub []byte) error {

	if email == "" {
		return ErrInvalidEmail
	}
	if err := keychain.ValidateToken(token0, u.cfg.TokenLength); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := btcec.ParsePubKey(expectedPub); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOriginKey, err)
	}

	ticket, err := u.cfg.Session.BeginUnlock()
	switch {
	case errors.Is(err, session.ErrAlreadyUnlocked):
		log.Debugf("Unlock requested while already unlocked")
		return nil

	case err != nil:
		return err
	}

	// The ticket is stale once the attempt completed, so this only rolls
	// back failed attempts.
	defer u.cfg.Session.AbortUnlock(ticket)

	passphrase, err := u.cfg.Prompter.PromptPassphrase(
		ctx, u.cfg.Owner,
	).UnwrapOrErr(ErrPassphraseRequired)
	if err != nil {
		return err
	}
	if passphrase == "" {
		return ErrPassphraseRequired
	}

	input := keychain.PassphraseInput(email, passphrase)
	secret := u.cfg.Stretcher.Stretch(input)
	wipe(input)

	key, err := verifyOrigin(secret, token0, expectedPub).Unpack()
	if err != nil {
		wipe(secret)
		log.Infof("Unlock failed: %v", err)

		return err
	}
	key.Zero()

	if err := u.cfg.Session.CompleteUnlock(ticket, secret); err != nil {
		return fmt.Errorf("unable to complete unlock: %w", err)
	}

	return nil
}

// CreateOrigin bootstraps a new wallet. The user picks a passphrase which is
// stretched and installed in the session without verification, leaving the
// session unlocked. The returned uncompressed origin public key is what the
// server records for later unlocks. A lock arriving before the secret is
// installed wins and the creation fails with session.ErrStaleTicket.
func (u *UnlockerService) CreateOrigin(ctx context.Context, email string,
	token0 []byte) ([]byte, error) {

	if email == "" {
		u.cfg.Prompter.Notify(msgInvalidEmail, prompt.SeverityError)
		return nil, ErrInvalidEmail
	}
	if err := keychain.ValidateToken(token0, u.cfg.TokenLength); err != nil {
		u.cfg.Prompter.Notify(msgInvalidToken, prompt.SeverityError)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	ticket, err := u.cfg.Session.BeginInstall()
	if err != nil {
		return nil, err
	}

	pair := u.cfg.Prompter.PromptNewPassphrase(ctx)
	passphrase := fn.MapOptionZ(pair, func(p prompt.PassphrasePair) string {
		if !p.Matches() {
			return ""
		}

		return p.First
	})
	if passphrase == "" {
		u.cfg.Prompter.Notify(msgPassMismatch, prompt.SeverityError)
		return nil, ErrPassphraseMismatch
	}

	u.cfg.Prompter.Notify(msgStretchNotice, prompt.SeverityInfo)

	input := keychain.PassphraseInput(email, passphrase)
	secret := u.cfg.Stretcher.Stretch(input)
	wipe(input)

	key, err := keychain.DeriveKeyPair(secret, token0)
	if err != nil {
		wipe(secret)
		return nil, fmt.Errorf("unable to derive origin key: %w", err)
	}
	defer key.Zero()

	if err := u.cfg.Session.Install(ticket, secret); err != nil {
		return nil, fmt.Errorf("unable to install secret: %w", err)
	}

	log.Infof("Created origin key for new wallet")

	return key.SerializedPubKey(), nil
}

// Lock wipes the stretched secret.
func (u *UnlockerService) Lock() {
	u.cfg.Session.Lock()
}

// verifyOrigin derives the origin key from secret and token0 and compares
// it byte for byte against expectedPub, using the serialization expectedPub
// is given in.
func verifyOrigin(secret, token0,
	expectedPub []byte) fn.Result[*keychain.KeyPair] {

	key, err := keychain.DeriveKeyPair(secret, token0)
	if err != nil {
		return fn.Errf[*keychain.KeyPair]("unable to derive origin "+
			"key: %w", err)
	}

	derived := key.SerializedPubKey()
	if len(expectedPub) == btcec.PubKeyBytesLenCompressed {
		derived = key.PubKey.SerializeCompressed()
	}

	if !bytes.Equal(derived, expectedPub) {
		key.Zero()
		return fn.Err[*keychain.KeyPair](ErrAuthFailed)
	}

	return fn.Ok(key)
}

// wipe overwrites b with zeros.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
