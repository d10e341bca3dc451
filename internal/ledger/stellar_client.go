package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
)

// StellarConfig contains Stellar network configuration
type StellarConfig struct {
	HorizonURL      string `json:"horizon_url"`
	IssuerSecretKey string `json:"issuer_secret_key"`
	Network         string `json:"network"` // "testnet" or "public"
	NimoAssetCode   string `json:"nimo_asset_code"`
	USDCAssetCode   string `json:"usdc_asset_code"`
	USDCIssuer      string `json:"usdc_issuer"`
}

// StellarClient implements Client against Stellar Horizon. Verification
// records are payments of the platform asset carrying the proof hash as a
// memo; reward mints pay out the secondary asset.
type StellarClient struct {
	horizon           horizonclient.ClientInterface
	issuerKeyPair     *keypair.Full
	networkPassphrase string
	config            *StellarConfig
}

// NewStellarClient creates a Stellar ledger client
func NewStellarClient(config *StellarConfig) (*StellarClient, error) {
	horizon := horizonclient.DefaultTestNetClient
	if config.Network == "public" {
		horizon = horizonclient.DefaultPublicNetClient
	} else if config.HorizonURL != "" {
		horizon = &horizonclient.Client{HorizonURL: config.HorizonURL}
	}

	issuerKeyPair, err := keypair.ParseFull(config.IssuerSecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer key pair: %w", err)
	}

	networkPassphrase := network.TestNetworkPassphrase
	if config.Network == "public" {
		networkPassphrase = network.PublicNetworkPassphrase
	}

	if config.NimoAssetCode == "" {
		config.NimoAssetCode = "NIMO"
	}

	return &StellarClient{
		horizon:           horizon,
		issuerKeyPair:     issuerKeyPair,
		networkPassphrase: networkPassphrase,
		config:            config,
	}, nil
}

// SubmitVerification implements Client. Token awards are whole asset units.
func (s *StellarClient) SubmitVerification(ctx context.Context, req VerifyRequest) (*SubmitResult, error) {
	return s.submit(ctx, []txnbuild.Operation{s.verifyOp(req)}, req.Proof)
}

// SubmitMint implements Client. Mint amounts arrive in integer cents and are
// rendered as asset-unit decimals on the wire.
func (s *StellarClient) SubmitMint(ctx context.Context, req MintRequest) (*SubmitResult, error) {
	return s.submit(ctx, []txnbuild.Operation{s.mintOp(req)}, req.Proof)
}

// SubmitBatch implements Client with a single multi-operation transaction.
// Stellar bounds operations per transaction at 100, well above the engine's
// batch cap.
func (s *StellarClient) SubmitBatch(ctx context.Context, reqs []VerifyRequest) ([]SubmitResult, error) {
	ops := make([]txnbuild.Operation, 0, len(reqs))
	for _, req := range reqs {
		ops = append(ops, s.verifyOp(req))
	}

	proof := ""
	if len(reqs) > 0 {
		proof = reqs[0].Proof
	}
	result, err := s.submit(ctx, ops, proof)
	if err != nil {
		return nil, err
	}

	results := make([]SubmitResult, len(reqs))
	for i := range results {
		results[i] = *result
	}
	return results, nil
}

// TransactionStatus implements Client
func (s *StellarClient) TransactionStatus(ctx context.Context, externalRef string) (TransactionStatus, error) {
	txResp, err := s.horizon.TransactionDetail(externalRef)
	if err != nil {
		return "", classifyHorizonError(err)
	}
	if txResp.Successful {
		return StatusConfirmed, nil
	}
	return StatusFailed, nil
}

func (s *StellarClient) nimoAsset() txnbuild.Asset {
	return txnbuild.CreditAsset{Code: s.config.NimoAssetCode, Issuer: s.issuerKeyPair.Address()}
}

func (s *StellarClient) usdcAsset() txnbuild.Asset {
	issuer := s.config.USDCIssuer
	if issuer == "" {
		issuer = s.issuerKeyPair.Address()
	}
	code := s.config.USDCAssetCode
	if code == "" {
		code = "USDC"
	}
	return txnbuild.CreditAsset{Code: code, Issuer: issuer}
}

func (s *StellarClient) verifyOp(req VerifyRequest) txnbuild.Operation {
	return &txnbuild.Payment{
		Destination: req.SubmitterRef,
		Amount:      fmt.Sprintf("%d", req.TokenAmount),
		Asset:       s.nimoAsset(),
	}
}

func (s *StellarClient) mintOp(req MintRequest) txnbuild.Operation {
	return &txnbuild.Payment{
		Destination: req.ToRef,
		Amount:      centsToDecimal(req.Amount),
		Asset:       s.usdcAsset(),
	}
}

// centsToDecimal renders integer cents as a Stellar asset amount string.
// Cents are never sent raw: a 110-cent reward pays 1.10 units, not 110.
func centsToDecimal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func (s *StellarClient) submit(ctx context.Context, ops []txnbuild.Operation, proof string) (*SubmitResult, error) {
	account, err := s.horizon.AccountDetail(horizonclient.AccountRequest{
		AccountID: s.issuerKeyPair.Address(),
	})
	if err != nil {
		return nil, classifyHorizonError(err)
	}

	params := txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		Operations:           ops,
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(300)},
	}
	if proof != "" {
		params.Memo = txnbuild.MemoHash(proofMemo(proof))
	}

	tx, err := txnbuild.NewTransaction(params)
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to build transaction: %w", err)}
	}

	tx, err = tx.Sign(s.networkPassphrase, s.issuerKeyPair)
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to sign transaction: %w", err)}
	}

	txResp, err := s.horizon.SubmitTransaction(tx)
	if err != nil {
		return nil, classifyHorizonError(err)
	}
	if !txResp.Successful {
		return nil, &FatalError{Err: fmt.Errorf("transaction rejected: %s", txResp.ResultXdr)}
	}

	return &SubmitResult{
		ExternalRef: txResp.Hash,
		Confirmed:   true,
	}, nil
}

// proofMemo packs the hex-encoded proof digest into the 32-byte memo field
func proofMemo(proof string) [32]byte {
	var memo [32]byte
	if decoded, err := hex.DecodeString(proof); err == nil {
		copy(memo[:], decoded)
	} else {
		copy(memo[:], proof)
	}
	return memo
}

// classifyHorizonError maps Horizon failures onto the bridge's retry
// taxonomy. Connection and rate-limit problems are transient; everything the
// network rejected outright is fatal.
func classifyHorizonError(err error) error {
	if herr, ok := err.(*horizonclient.Error); ok {
		switch herr.Problem.Status {
		case 429, 500, 502, 503, 504:
			return &TransientError{Err: err}
		default:
			return &FatalError{Err: err}
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "temporary") {
		return &TransientError{Err: err}
	}
	return &TransientError{Err: err}
}
