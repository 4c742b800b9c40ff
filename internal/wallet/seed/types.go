package seed

// Manager owns a wallet secret and lends it out for the duration of a call.
type Manager interface {
	// Initialize validates the mnemonic and stores it with the BIP39 passphrase.
	Initialize(mnemonic string, passphrase string) error

	// WithSeed derives the seed, passes it to fn and zeroes it when fn returns.
	// fn must not retain the slice.
	WithSeed(fn func(seed []byte) error) error

	// WithPhrase lends the raw phrase bytes to fn, zeroing the copy afterwards.
	WithPhrase(fn func(phrase []byte) error) error

	// IsInitialized checks if a secret is loaded
	IsInitialized() bool

	// Clear zeroes the secret
	Clear()
}
