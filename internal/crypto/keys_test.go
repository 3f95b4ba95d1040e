package crypto

import (
	"encoding/hex"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptKey_RoundTrip(t *testing.T) {
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(ethcrypto.FromECDSA(pk))

	blob, err := EncryptKey("0x"+keyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)
}

func TestDecryptKey_WrongPassword(t *testing.T) {
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	blob, err := EncryptKey(hex.EncodeToString(ethcrypto.FromECDSA(pk)), "right")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadSigningKey_Raw(t *testing.T) {
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(ethcrypto.FromECDSA(pk))

	loaded, err := LoadSigningKey(KeyConfig{RawPrivateKey: "0x" + keyHex})
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(pk.PublicKey), ethcrypto.PubkeyToAddress(loaded.PublicKey))
}

func TestLoadSigningKey_NoSource(t *testing.T) {
	_, err := LoadSigningKey(KeyConfig{})
	assert.Error(t, err)
}
