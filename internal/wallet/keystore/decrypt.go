package keystore

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
	"github/chapool/wallet-core/internal/wallet/errs"
	"golang.org/x/crypto/scrypt"
)

// Decrypt opens a keystore produced by Encrypt. A wrong password surfaces as a
// Mnemonic error; the caller owns (and should wipe) the returned bytes.
//
//nolint:varnamelen // iv is a common abbreviation for initialization vector
func Decrypt(ks *KeystoreJSON, password string) ([]byte, error) {
	if ks.Version != Version {
		return nil, errs.Mnemonic("unsupported keystore version %d", ks.Version)
	}
	if ks.Crypto.Cipher != cipherName || ks.Crypto.KDF != kdfName {
		return nil, errs.Mnemonic("unsupported keystore cipher %q / kdf %q", ks.Crypto.Cipher, ks.Crypto.KDF)
	}

	salt, err := hex.DecodeString(ks.Crypto.KDFParams.Salt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode salt")
	}

	iv, err := hex.DecodeString(ks.Crypto.CipherParams.IV)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode IV")
	}

	ciphertext, err := hex.DecodeString(ks.Crypto.Ciphertext)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode ciphertext")
	}

	expectedMAC, err := hex.DecodeString(ks.Crypto.MAC)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode MAC")
	}

	p := ks.Crypto.KDFParams
	if p.DKLen < 2*keyLength {
		return nil, errs.Mnemonic("derived key length %d too short", p.DKLen)
	}

	derivedKey, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, p.DKLen)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive key")
	}
	defer wipe(derivedKey)

	mac := calculateMAC(derivedKey[keyLength:2*keyLength], ciphertext)
	if subtle.ConstantTimeCompare(mac, expectedMAC) != 1 {
		return nil, errs.Mnemonic("invalid password: MAC mismatch")
	}

	plaintext, err := aes128CTR(derivedKey[:keyLength], iv, ciphertext)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt mnemonic")
	}

	return plaintext, nil
}

// Parse decodes keystore JSON bytes.
func Parse(data []byte) (*KeystoreJSON, error) {
	var ks KeystoreJSON
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal keystore JSON")
	}
	return &ks, nil
}
