package engine

import (
	"context"
	"fmt"
	"time"
)

// maxImageClaimLength bounds the claim text handed to the multimodal
// provider, independent of whatever limit that provider enforces itself.
const maxImageClaimLength = 2000

// ImageVerdict is the structured outcome a multimodal provider returns
// for an image claim.
type ImageVerdict struct {
	Verdict    Verdict
	Confidence float64
	Detail     string
}

// ImageVerifier is the external multimodal collaborator the image adapter
// defers to; its verdict is treated as authoritative.
type ImageVerifier interface {
	Verify(ctx context.Context, imageBytes []byte, claim string) (ImageVerdict, error)
}

// ImageAdapter bounds the claim length and delegates to an ImageVerifier.
type ImageAdapter struct {
	verifier ImageVerifier
}

// NewImageAdapter builds an ImageAdapter.
func NewImageAdapter(verifier ImageVerifier) *ImageAdapter {
	return &ImageAdapter{verifier: verifier}
}

// Verify delegates task to the configured ImageVerifier.
func (a *ImageAdapter) Verify(ctx context.Context, task ImageTask) (Result, error) {
	started := time.Now()

	if len(task.Claim) > maxImageClaimLength {
		err := fmt.Errorf("image: claim length %d exceeds %d", len(task.Claim), maxImageClaimLength)
		return Result{Verdict: VerdictUnsafe, Latency: time.Since(started), Diagnostic: err.Error()}, err
	}
	if a.verifier == nil {
		err := fmt.Errorf("image: no multimodal provider configured")
		return Result{Verdict: VerdictError, Latency: time.Since(started), Diagnostic: err.Error()}, err
	}

	verdict, err := a.verifier.Verify(ctx, task.ImageBytes, task.Claim)
	if err != nil {
		return Result{Verdict: VerdictError, Latency: time.Since(started), Diagnostic: err.Error()}, err
	}

	return Result{
		Verdict:    verdict.Verdict,
		Confidence: verdict.Confidence,
		Diagnostic: verdict.Detail,
		Latency:    time.Since(started),
	}, nil
}
