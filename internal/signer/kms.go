package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/asn1"
	"math/big"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// kmsAPI is the subset of the KMS client the signer needs, so tests can
// substitute a fake without standing up real AWS credentials.
type kmsAPI interface {
	GetPublicKey(ctx context.Context, in *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, in *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KMSSigner signs transaction hashes with a remote AWS KMS asymmetric
// ECC_SECG_P256K1 key, the path used when RELAYER_KEY_KMS_ARN is set
// (SPEC_FULL.md A6). It never holds the private key material in process
// memory.
type KMSSigner struct {
	client  kmsAPI
	keyARN  string
	address common.Address
	pubKey  *ecdsa.PublicKey
}

// asn1EcPublicKey mirrors the SubjectPublicKeyInfo structure KMS returns
// from GetPublicKey for an ECC key.
type asn1EcPublicKey struct {
	Algorithm struct {
		Algorithm  asn1.ObjectIdentifier
		Parameters asn1.ObjectIdentifier
	}
	PublicKey asn1.BitString
}

// asn1Signature mirrors the DER-encoded (r, s) pair KMS returns from Sign.
type asn1Signature struct {
	R *big.Int
	S *big.Int
}

// NewKMSSigner resolves the relayer address from the KMS key's public
// key material and returns a ready-to-use Signer.
func NewKMSSigner(ctx context.Context, client kmsAPI, keyARN string) (*KMSSigner, error) {
	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyARN)})
	if err != nil {
		return nil, errors.Wrap(err, "kms GetPublicKey")
	}

	var pk asn1EcPublicKey
	if _, err := asn1.Unmarshal(out.PublicKey, &pk); err != nil {
		return nil, errors.Wrap(err, "parse kms public key DER")
	}

	x, y := elliptic.Unmarshal(crypto.S256(), pk.PublicKey.Bytes)
	if x == nil {
		return nil, errors.New("kms public key is not a valid secp256k1 point")
	}
	pubKey := &ecdsa.PublicKey{Curve: crypto.S256(), X: x, Y: y}

	return &KMSSigner{
		client:  client,
		keyARN:  keyARN,
		address: crypto.PubkeyToAddress(*pubKey),
		pubKey:  pubKey,
	}, nil
}

func (s *KMSSigner) Address() common.Address {
	return s.address
}

func (s *KMSSigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(chainID)
	hash := signer.Hash(tx)

	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyARN),
		Message:          hash[:],
		MessageType:      kmstypes.MessageTypeDigest,
		SigningAlgorithm: kmstypes.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return nil, errors.Wrap(err, "kms Sign")
	}

	var sig asn1Signature
	if _, err := asn1.Unmarshal(out.Signature, &sig); err != nil {
		return nil, errors.Wrap(err, "parse kms signature DER")
	}

	rsSig, err := canonicalRecoverableSignature(s.pubKey, hash[:], sig.R, sig.S)
	if err != nil {
		return nil, errors.Wrap(err, "recover signature v")
	}

	signed, err := tx.WithSignature(signer, rsSig)
	if err != nil {
		return nil, errors.Wrap(err, "attach kms signature")
	}
	return signed, nil
}

// canonicalRecoverableSignature normalizes s to the curve's low-S form
// (as go-ethereum / EIP-2 requires) and brute-forces the recovery id by
// trying both candidates and checking which one's recovered public key
// matches pubKey.
func canonicalRecoverableSignature(pubKey *ecdsa.PublicKey, hash []byte, r, s *big.Int) ([]byte, error) {
	curveOrder := crypto.S256().Params().N
	halfOrder := new(big.Int).Rsh(curveOrder, 1)
	if s.Cmp(halfOrder) > 0 {
		s = new(big.Int).Sub(curveOrder, s)
	}

	rBytes := make([]byte, 32)
	r.FillBytes(rBytes)
	sBytes := make([]byte, 32)
	s.FillBytes(sBytes)

	for recID := byte(0); recID < 2; recID++ {
		sig := append(append(append([]byte{}, rBytes...), sBytes...), recID)
		recovered, err := crypto.SigToPub(hash, sig)
		if err != nil {
			continue
		}
		if recovered.X.Cmp(pubKey.X) == 0 && recovered.Y.Cmp(pubKey.Y) == 0 {
			return sig, nil
		}
	}
	return nil, errors.New("no recovery id produced the expected public key")
}
