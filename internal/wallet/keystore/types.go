package keystore

const (
	Version    = 3
	cipherName = "aes-128-ctr"
	kdfName    = "scrypt"
)

// KeystoreJSON represents the Ethereum keystore v3 JSON structure, carrying a
// mnemonic instead of a raw private key.
//
//nolint:revive // KeystoreJSON is the standard name for Ethereum keystore JSON structure
type KeystoreJSON struct {
	Version int    `json:"version"`
	ID      string `json:"id"`
	Crypto  struct {
		Ciphertext   string `json:"ciphertext"`
		CipherParams struct {
			IV string `json:"iv"`
		} `json:"cipherparams"`
		Cipher    string `json:"cipher"`
		KDF       string `json:"kdf"`
		KDFParams struct {
			DKLen int    `json:"dklen"`
			Salt  string `json:"salt"`
			N     int    `json:"n"`
			R     int    `json:"r"`
			P     int    `json:"p"`
		} `json:"kdfparams"`
		MAC string `json:"mac"`
	} `json:"crypto"`
}

// ScryptParams defines scrypt KDF parameters
type ScryptParams struct {
	DKLen int // Derived key length (32 bytes)
	N     int // CPU/memory cost parameter
	R     int // Block size parameter (8)
	P     int // Parallelization parameter (1)
}

// StandardScryptParams matches geth's standard keystore cost (N = 2^18).
func StandardScryptParams() ScryptParams {
	const (
		scryptDKLen = 32
		scryptN     = 1 << 18
		scryptR     = 8
		scryptP     = 1
	)

	return ScryptParams{DKLen: scryptDKLen, N: scryptN, R: scryptR, P: scryptP}
}

// LightScryptParams matches geth's light keystore cost (N = 2^12).
func LightScryptParams() ScryptParams {
	p := StandardScryptParams()
	p.N = 1 << 12
	p.P = 6
	return p
}
