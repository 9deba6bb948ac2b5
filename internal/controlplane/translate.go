package controlplane

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/QWED-AI/qwed-verification/internal/cache"
	"github.com/QWED-AI/qwed-verification/internal/consensus"
	"github.com/QWED-AI/qwed-verification/internal/engine"
)

// admissionText picks the text each kind exposes to the admission gate.
// code, sql, and image kinds have no natural-language query; the gate
// still screens the content a caller controls most directly for each.
func admissionText(req Request) string {
	switch req.Kind {
	case "code":
		if req.CodeTask != nil {
			return req.CodeTask.Code
		}
	case "sql":
		if req.SQLTask != nil {
			return req.SQLTask.Query
		}
	case "image":
		if req.ImageTask != nil {
			return req.ImageTask.Claim
		}
	case "reasoning":
		return ""
	}
	return req.Query
}

// runOnce translates (when the kind requires it), checks the cache, and
// dispatches to the one engine adapter that decides the kind. It never
// retries; reflection and consensus are the callers that decide whether
// and how many times to call it again.
func (p *Pipeline) runOnce(ctx context.Context, req Request) (engine.Result, string, bool, error) {
	switch req.Kind {
	case "math":
		task, providerName, err := p.Router.TranslateMath(ctx, req.PreferredProvider, req.TenantDefaultProvider, req.SystemDefaultProvider, req.Query)
		if err != nil {
			return engine.Result{}, "", false, fmt.Errorf("translate math: %w", err)
		}
		result, hit, err := p.runCacheableStep(ctx, req, "math", task, func() (engine.Result, error) {
			return p.Dispatcher.VerifyStep(ctx, engine.ReasoningTaskStep{Kind: "math", Payload: task})
		})
		result.Provider = providerName
		return result, providerName, hit, err

	case "logic":
		task, providerName, err := p.Router.TranslateLogicDSL(ctx, req.PreferredProvider, req.TenantDefaultProvider, req.SystemDefaultProvider, req.Query)
		if err != nil {
			return engine.Result{}, "", false, fmt.Errorf("translate logic: %w", err)
		}
		result, hit, err := p.runCacheableStep(ctx, req, "logic", task, func() (engine.Result, error) {
			return p.Dispatcher.VerifyStep(ctx, engine.ReasoningTaskStep{Kind: "logic", Payload: task})
		})
		result.Provider = providerName
		return result, providerName, hit, err

	case "stats":
		task, providerName, err := p.Router.GenerateStatsCode(ctx, req.PreferredProvider, req.TenantDefaultProvider, req.SystemDefaultProvider, req.Query, req.Schema)
		if err != nil {
			return engine.Result{}, "", false, fmt.Errorf("generate stats code: %w", err)
		}
		result, hit, err := p.runCacheableStep(ctx, req, "stats", task, func() (engine.Result, error) {
			return p.Dispatcher.VerifyStep(ctx, engine.ReasoningTaskStep{Kind: "stats", Payload: task})
		})
		result.Provider = providerName
		return result, providerName, hit, err

	case "fact":
		verdict, providerName, err := p.Router.VerifyFact(ctx, req.PreferredProvider, req.TenantDefaultProvider, req.SystemDefaultProvider, req.Query, req.FactContext)
		if err != nil {
			return engine.Result{}, "", false, fmt.Errorf("verify fact: %w", err)
		}
		result, err := p.Dispatcher.VerifyStep(ctx, engine.ReasoningTaskStep{Kind: "fact", Payload: verdict})
		result.Provider = providerName
		return result, providerName, false, err

	case "code":
		if req.CodeTask == nil {
			return engine.Result{}, "", false, fmt.Errorf("code request missing its task payload")
		}
		result, hit, err := p.runCacheableStep(ctx, req, "code", *req.CodeTask, func() (engine.Result, error) {
			return p.Dispatcher.VerifyStep(ctx, engine.ReasoningTaskStep{Kind: "code", Payload: *req.CodeTask})
		})
		return result, "", hit, err

	case "sql":
		if req.SQLTask == nil {
			return engine.Result{}, "", false, fmt.Errorf("sql request missing its task payload")
		}
		result, hit, err := p.runCacheableStep(ctx, req, "sql", *req.SQLTask, func() (engine.Result, error) {
			return p.Dispatcher.VerifyStep(ctx, engine.ReasoningTaskStep{Kind: "sql", Payload: *req.SQLTask})
		})
		return result, "", hit, err

	case "image":
		if req.ImageTask == nil {
			return engine.Result{}, "", false, fmt.Errorf("image request missing its task payload")
		}
		if p.Dispatcher.Image == nil {
			return engine.Result{}, "", false, fmt.Errorf("no image adapter configured")
		}
		result, err := p.Dispatcher.Image.Verify(ctx, *req.ImageTask)
		return result, "", false, err

	case "reasoning":
		if req.ReasoningTask == nil {
			return engine.Result{}, "", false, fmt.Errorf("reasoning request missing its task payload")
		}
		result, err := p.Dispatcher.Reasoning.Verify(ctx, *req.ReasoningTask)
		return result, "", false, err

	default:
		return engine.Result{}, "", false, fmt.Errorf("unsupported request kind %q", req.Kind)
	}
}

// runCacheableStep wraps run with a cache lookup/store for kinds whose
// result is a deterministic function of (kind, task). task is marshaled
// to its canonical JSON form to derive the fingerprint; the marshal can
// only fail for a task containing something unmarshalable, which none of
// the translator/engine task types do, so a marshal error degrades to a
// cache-less call rather than failing the request.
func (p *Pipeline) runCacheableStep(ctx context.Context, req Request, kind string, task interface{}, run func() (engine.Result, error)) (engine.Result, bool, error) {
	consensusMode := req.Mode != "" && req.Mode != consensus.ModeSingle
	if p.Cache == nil || !cache.CacheableKind(kind) || consensusMode {
		result, err := run()
		return result, false, err
	}

	canon, err := json.Marshal(task)
	if err != nil {
		result, runErr := run()
		return result, false, runErr
	}
	key := cache.Key{TenantID: req.Tenant.Org.ID, Fingerprint: cache.Fingerprint(kind, canon)}

	if cached, ok, err := p.Cache.Get(ctx, key); err == nil && ok {
		return cached, true, nil
	}

	result, err := run()
	if err == nil && cache.Cacheable(kind, result.Verdict) {
		_ = p.Cache.Set(ctx, key, result, cache.DefaultTTL)
	}
	return result, false, err
}
