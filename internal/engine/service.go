package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nimo/identity-platform/verification-engine/internal/contribution"
	"nimo/identity-platform/verification-engine/internal/ledger"
	"nimo/identity-platform/verification-engine/internal/rewards"
)

// Outcome is the terminal state of a verification decision
type Outcome string

const (
	OutcomeVerified     Outcome = "verified"
	OutcomeRejected     Outcome = "rejected"
	OutcomeFraudFlagged Outcome = "flagged_for_fraud"
)

// Decision is the immutable verification decision for one contribution
type Decision struct {
	ContributionID uuid.UUID `json:"contribution_id"`
	Outcome        Outcome   `json:"outcome"`
	Confidence     float64   `json:"confidence"`
	Explanation    string    `json:"explanation"`
	ProofHash      string    `json:"proof_hash"`
	Backend        string    `json:"backend"`
	DecidedAt      time.Time `json:"decided_at"`
}

// VerifyRequest carries one contribution through the pipeline. SubmitterRef
// is the submitter's ledger address.
type VerifyRequest struct {
	Contribution *contribution.Contribution      `json:"contribution"`
	Signal       *contribution.SubmitterSignal   `json:"submitter_signal"`
	Priors       []contribution.PriorContribution `json:"prior_contributions,omitempty"`
	SubmitterRef string                          `json:"submitter_ref"`
}

// VerifyResult is the caller-visible outcome for one contribution. Recorded
// distinguishes "verified but not yet on the ledger" from "not verified".
type VerifyResult struct {
	Decision *Decision            `json:"decision,omitempty"`
	Fraud    *FraudAssessment     `json:"fraud,omitempty"`
	Reward   *rewards.Calculation `json:"reward,omitempty"`
	VerifyTx *ledger.Transaction  `json:"verify_transaction,omitempty"`
	MintTx   *ledger.Transaction  `json:"mint_transaction,omitempty"`
	Recorded bool                 `json:"recorded"`
	Error    string               `json:"error,omitempty"`
}

// ServiceConfig bounds the engine's external calls
type ServiceConfig struct {
	BackendTimeout time.Duration `json:"backend_timeout"`
}

// Service runs the full verification and reward pipeline for a single
// contribution: validation, fraud assessment, backend decision, reward
// calculation, ledger recording. Per-item ordering is strict; nothing is
// shared across items beyond the sticky backend selector and the processed
// reward keys inside the bridge.
type Service struct {
	backend Backend
	fraud   *FraudDetector
	calc    *rewards.Calculator
	bridge  *ledger.Bridge
	logger  *zap.Logger
	cfg     ServiceConfig
}

// NewService creates the verification pipeline
func NewService(backend Backend, fraud *FraudDetector, calc *rewards.Calculator, bridge *ledger.Bridge, logger *zap.Logger, cfg ServiceConfig) *Service {
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = 15 * time.Second
	}
	return &Service{
		backend: backend,
		fraud:   fraud,
		calc:    calc,
		bridge:  bridge,
		logger:  logger,
		cfg:     cfg,
	}
}

// Verify processes one contribution end to end
func (s *Service) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	if err := contribution.Validate(req.Contribution); err != nil {
		return nil, err
	}
	if req.Signal != nil {
		if err := contribution.ValidateSignal(req.Signal); err != nil {
			return nil, err
		}
	}
	c := req.Contribution

	// fraud check comes first; flagged contributions never reach the
	// backend, the reward calculator, or the ledger
	assessment := s.fraud.Assess(c, req.Signal, req.Priors)
	if assessment.IsFraud {
		decision := s.buildDecision(c.ID, OutcomeFraudFlagged, assessment.Confidence, assessment.Reason, "fraud-detector")
		s.logger.Info("Contribution flagged for fraud",
			zap.String("contribution_id", c.ID.String()),
			zap.String("reason", assessment.Reason))
		return &VerifyResult{
			Decision: decision,
			Fraud:    &assessment,
		}, nil
	}

	backendCtx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	validation, err := s.backend.Validate(backendCtx, ValidationInput{
		Contribution: c,
		Signal:       req.Signal,
	})
	cancel()
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			return &VerifyResult{
				Fraud: &assessment,
				Error: err.Error(),
			}, err
		}
		return nil, fmt.Errorf("backend validation failed: %w", err)
	}

	outcome := OutcomeRejected
	if validation.Verified {
		outcome = OutcomeVerified
	}
	decision := s.buildDecision(c.ID, outcome, validation.Confidence, validation.Explanation, s.backend.Name())

	result := &VerifyResult{
		Decision: decision,
		Fraud:    &assessment,
	}
	if outcome != OutcomeVerified {
		return result, nil
	}

	calc := s.calc.Calculate(decision.Confidence, c.Category)
	result.Reward = &calc

	verifyTx, err := s.bridge.RecordVerification(ctx, c.ID, req.SubmitterRef, calc.NimoAmount, decision.ProofHash)
	if errors.Is(err, ledger.ErrAlreadyProcessed) {
		// reward already distributed for this pair; surface the prior
		// transaction and do not mint again
		result.VerifyTx = verifyTx
		result.Recorded = true
		return result, nil
	}
	if err != nil {
		// the decision stands even when recording fails
		result.VerifyTx = verifyTx
		result.Recorded = false
		s.logger.Warn("Verification decided but not recorded",
			zap.String("contribution_id", c.ID.String()),
			zap.Error(err))
		return result, nil
	}
	result.VerifyTx = verifyTx
	result.Recorded = verifyTx.Status != ledger.StatusFailed

	if calc.Eligible {
		mintTx, mintErr := s.bridge.MintReward(ctx, req.SubmitterRef, usdcCents(calc.FinalUSDC),
			fmt.Sprintf("usdc-reward:%s", c.ID), decision.ProofHash)
		if mintErr != nil {
			s.logger.Warn("USDC reward mint failed",
				zap.String("contribution_id", c.ID.String()),
				zap.Error(mintErr))
		}
		result.MintTx = mintTx
	}

	return result, nil
}

// PreviewReward exposes the pure reward calculation for what-if queries
func (s *Service) PreviewReward(confidence float64, category contribution.Category) rewards.Calculation {
	return s.calc.Calculate(confidence, category)
}

// PreviewRewardFromAmount previews the secondary reward for an explicit
// NIMO amount
func (s *Service) PreviewRewardFromAmount(nimoAmount int64, confidence float64) rewards.Calculation {
	return s.calc.CalculateFromAmount(nimoAmount, confidence)
}

func (s *Service) buildDecision(id uuid.UUID, outcome Outcome, confidence float64, explanation, backend string) *Decision {
	d := &Decision{
		ContributionID: id,
		Outcome:        outcome,
		Confidence:     confidence,
		Explanation:    explanation,
		Backend:        backend,
		DecidedAt:      time.Now().UTC(),
	}
	d.ProofHash = proofHash(d)
	return d
}

// proofHash digests the canonical decision payload. The timestamp is
// excluded so the hash is a pure function of the decision itself.
func proofHash(d *Decision) string {
	payload, _ := json.Marshal(struct {
		ContributionID string  `json:"contribution_id"`
		Outcome        Outcome `json:"outcome"`
		Confidence     float64 `json:"confidence"`
		Explanation    string  `json:"explanation"`
		Backend        string  `json:"backend"`
	}{
		ContributionID: d.ContributionID.String(),
		Outcome:        d.Outcome,
		Confidence:     d.Confidence,
		Explanation:    d.Explanation,
		Backend:        d.Backend,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// usdcCents converts a USDC amount to integer cents for the ledger
func usdcCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
