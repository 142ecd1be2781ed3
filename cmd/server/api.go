package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/feed"
	"portfolio-vault/internal/multicall"
	"portfolio-vault/internal/observability"
	"portfolio-vault/internal/reporting"
	"portfolio-vault/internal/shares"
	"portfolio-vault/internal/storage"
	"portfolio-vault/internal/units"
	"portfolio-vault/internal/vault"
	"portfolio-vault/internal/vaulterrors"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// api serves the deployment over HTTP. Every handler touching the chain
// holds mu: the environment is single-threaded.
type api struct {
	mu      sync.Mutex
	d       *deployment
	facts   storage.FactStore
	reports *reporting.Generator
	nav     storage.NAVStore
	hub     *feed.Hub
	clock   func() time.Time
	started time.Time
	logger  *zap.Logger
}

func newAPI(d *deployment, facts storage.FactStore, nav storage.NAVStore, hub *feed.Hub, logger *zap.Logger) *api {
	return &api{
		d:       d,
		facts:   facts,
		reports: reporting.NewGenerator(facts, nav),
		nav:     nav,
		hub:     hub,
		clock:   time.Now,
		started: time.Now(),
		logger:  logger,
	}
}

// Locker exposes the chain lock to the sampler.
func (a *api) Locker() sync.Locker { return &a.mu }

// routes builds the server mux.
func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("GET /api/vault", a.handleVault)
	mux.HandleFunc("POST /api/preview/deposit", a.handlePreviewDeposit)
	mux.HandleFunc("POST /api/deposit", a.handleDeposit)
	mux.HandleFunc("POST /api/withdraw", a.handleWithdraw)
	mux.HandleFunc("POST /api/multicall/preview", a.handleMulticallPreview)
	mux.HandleFunc("GET /api/facts", a.handleFacts)
	mux.HandleFunc("GET /api/report", a.handleReport)
	if a.hub != nil {
		mux.Handle("GET /ws", a.hub)
	}
	return mux
}

// withChain runs fn under the chain lock with the block clock advanced to now.
func (a *api) withChain(fn func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.d.env.SetTime(uint64(a.clock().Unix()))
	return fn()
}

type amountView struct {
	Token  string `json:"token"`
	Symbol string `json:"symbol"`
	Raw    string `json:"raw"`
	Amount string `json:"amount"`
}

func (a *api) amount(token common.Address, v *uint256.Int) amountView {
	info := a.d.token(token)
	return amountView{
		Token:  token.Hex(),
		Symbol: info.Symbol,
		Raw:    v.Dec(),
		Amount: units.Format(v, info.Decimals),
	}
}

func (a *api) amounts(assets []domain.Asset, values []*uint256.Int) []amountView {
	out := make([]amountView, len(values))
	for i, v := range values {
		out[i] = a.amount(assets[i].Token, v)
	}
	return out
}

type assetView struct {
	Index   int        `json:"index"`
	Kind    string     `json:"kind"`
	Legs    []string   `json:"legs,omitempty"`
	Balance amountView `json:"balance"`
	Value   amountView `json:"value"`
}

type feeView struct {
	Recipient      string `json:"recipient"`
	EntryFee       uint32 `json:"entryFee"`
	ExitFee        uint32 `json:"exitFee"`
	ManagementFee  uint32 `json:"managementFee"`
	PerformanceFee uint32 `json:"performanceFee"`
	DecayFactor    string `json:"decayFactor"`
	FeeCap         uint32 `json:"feeCap"`
}

type vaultView struct {
	Address       string      `json:"address"`
	Name          string      `json:"name"`
	Owner         string      `json:"owner"`
	Manager       string      `json:"manager"`
	BlockTime     uint64      `json:"blockTime"`
	TotalSupply   amountView  `json:"totalSupply"`
	TotalValue    amountView  `json:"totalValue"`
	HighWaterMark amountView  `json:"highWaterMark"`
	HWMPerShare   amountView  `json:"highWaterMarkPerShare"`
	FeeReserve    amountView  `json:"performanceFeeReserve"`
	LastMgmtFee   uint64      `json:"lastCollectManagementFee"`
	LastPerfFee   uint64      `json:"lastCollectPerformanceFee"`
	Fees          feeView     `json:"fees"`
	Assets        []assetView `json:"assets"`
}

func (a *api) handleVault(w http.ResponseWriter, _ *http.Request) {
	var view vaultView
	err := a.withChain(func() error {
		v := a.d.vault
		assets := v.Assets()
		base := assets[0].Token

		total, err := v.CalculateTotalValue()
		if err != nil {
			return err
		}
		composition, err := v.CalculateValueComposition()
		if err != nil {
			return err
		}
		hwmPerShare, err := v.HighWaterMarkPerShare()
		if err != nil {
			return err
		}

		cfg := v.FeeConfig()
		decay := "0"
		if cfg.DecayFactor != nil {
			decay = cfg.DecayFactor.Dec()
		}
		view = vaultView{
			Address:       v.Address().Hex(),
			Name:          v.Name(),
			Owner:         v.Owner().Hex(),
			Manager:       v.Manager().Hex(),
			BlockTime:     a.d.env.Now(),
			TotalSupply:   a.amount(v.Address(), v.TotalSupply()),
			TotalValue:    a.amount(base, total),
			HighWaterMark: a.amount(base, v.HighWaterMark()),
			HWMPerShare:   a.amount(base, hwmPerShare),
			FeeReserve:    a.amount(v.Address(), v.PerformanceFeeReserve()),
			LastMgmtFee:   v.LastCollectManagementFee(),
			LastPerfFee:   v.LastCollectPerformanceFee(),
			Fees: feeView{
				Recipient:      cfg.Recipient.Hex(),
				EntryFee:       cfg.EntryFee,
				ExitFee:        cfg.ExitFee,
				ManagementFee:  cfg.ManagementFee,
				PerformanceFee: cfg.PerformanceFee,
				DecayFactor:    decay,
				FeeCap:         v.FeeCap(),
			},
		}

		balances := v.Balances()
		view.Assets = make([]assetView, len(assets))
		for i, asset := range assets {
			legs := make([]string, len(asset.Legs))
			for j, leg := range asset.Legs {
				legs[j] = leg.Hex()
			}
			view.Assets[i] = assetView{
				Index:   i,
				Kind:    asset.Kind.String(),
				Legs:    legs,
				Balance: a.amount(asset.Token, balances[i]),
				Value:   a.amount(base, composition[i]),
			}
		}
		return nil
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// sharesRequest is the body of the deposit, withdraw and preview endpoints.
// Shares are whole share units, e.g. "1.5".
type sharesRequest struct {
	Caller   string `json:"caller"`
	Shares   string `json:"shares"`
	Deadline uint64 `json:"deadline,omitempty"`
}

type sharesResponse struct {
	Shares    amountView   `json:"shares"`
	Amounts   []amountView `json:"amounts"`
	Flattened []amountView `json:"flattened,omitempty"`
}

func (a *api) decodeShares(w http.ResponseWriter, r *http.Request, needCaller bool) (sharesRequest, common.Address, *uint256.Int, error) {
	var req sharesRequest
	if err := decodeBody(w, r, &req); err != nil {
		return req, common.Address{}, nil, err
	}
	amount, err := units.Parse(req.Shares, shares.Decimals)
	if err != nil {
		return req, common.Address{}, nil, badRequest(fmt.Errorf("shares: %w", err))
	}
	var caller common.Address
	if needCaller {
		if caller, err = a.d.resolve(req.Caller); err != nil {
			return req, common.Address{}, nil, badRequest(err)
		}
	}
	if req.Deadline == 0 {
		req.Deadline = vault.NoDeadline
	}
	return req, caller, amount, nil
}

func (a *api) handlePreviewDeposit(w http.ResponseWriter, r *http.Request) {
	_, _, amount, err := a.decodeShares(w, r, false)
	if err != nil {
		a.writeError(w, err)
		return
	}

	var resp sharesResponse
	err = a.withChain(func() error {
		v := a.d.vault
		perSlot, err := v.PreviewDeposit(amount)
		if err != nil {
			return err
		}
		flat, err := v.PreviewDepositFlattened(amount)
		if err != nil {
			return err
		}
		resp.Shares = a.amount(v.Address(), amount)
		resp.Amounts = a.amounts(v.Assets(), perSlot)
		for _, ta := range flat {
			resp.Flattened = append(resp.Flattened, a.amount(ta.Token, ta.Amount))
		}
		return nil
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleDeposit(w http.ResponseWriter, r *http.Request) {
	a.handleShares(w, r, "deposit", a.d.vault.Deposit)
}

func (a *api) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	a.handleShares(w, r, "withdraw", a.d.vault.Withdraw)
}

func (a *api) handleShares(w http.ResponseWriter, r *http.Request, op string, call func(common.Address, *uint256.Int, uint64) ([]*uint256.Int, error)) {
	req, caller, amount, err := a.decodeShares(w, r, true)
	if err != nil {
		a.writeError(w, err)
		return
	}

	var resp sharesResponse
	err = a.withChain(func() error {
		moved, err := call(caller, amount, req.Deadline)
		if err != nil {
			return err
		}
		v := a.d.vault
		resp.Shares = a.amount(v.Address(), amount)
		resp.Amounts = a.amounts(v.Assets(), moved)
		return nil
	})
	if err != nil {
		a.logger.Info(op+" rejected", zap.String("caller", caller.Hex()), zap.String("shares", amount.Dec()), zap.Error(err))
		a.writeError(w, err)
		return
	}
	a.logger.Info(op, zap.String("caller", caller.Hex()), zap.String("shares", amount.Dec()))
	writeJSON(w, http.StatusOK, resp)
}

// multicallRequest mirrors multicall.Request. Amounts are raw integers,
// steps are hex-encoded step calldata.
type multicallRequest struct {
	Caller       string          `json:"caller"`
	VaultType    uint8           `json:"vaultType"`
	Vault        string          `json:"vault,omitempty"`
	InputTokens  []string        `json:"inputTokens"`
	InputAmounts []string        `json:"inputAmounts"`
	MinOutputs   []string        `json:"minOutputs"`
	Steps        []hexutil.Bytes `json:"steps"`
	NativeValue  string          `json:"nativeValue,omitempty"`
}

type multicallResponse struct {
	Results []hexutil.Bytes `json:"results"`
}

func (a *api) toMulticall(body multicallRequest) (common.Address, multicall.Request, error) {
	var req multicall.Request
	caller, err := a.d.resolve(body.Caller)
	if err != nil {
		return caller, req, err
	}
	req.VaultType = multicall.VaultType(body.VaultType)
	req.Vault = a.d.vault.Address()
	if body.Vault != "" {
		if req.Vault, err = a.d.resolve(body.Vault); err != nil {
			return caller, req, err
		}
	}
	for _, t := range body.InputTokens {
		token, err := a.d.resolve(t)
		if err != nil {
			return caller, req, err
		}
		req.InputTokens = append(req.InputTokens, token)
	}
	if req.InputAmounts, err = parseRaw(body.InputAmounts); err != nil {
		return caller, req, fmt.Errorf("inputAmounts: %w", err)
	}
	if req.MinOutputs, err = parseRaw(body.MinOutputs); err != nil {
		return caller, req, fmt.Errorf("minOutputs: %w", err)
	}
	for _, s := range body.Steps {
		req.Steps = append(req.Steps, []byte(s))
	}
	req.NativeValue = new(uint256.Int)
	if body.NativeValue != "" {
		if req.NativeValue, err = uint256.FromDecimal(body.NativeValue); err != nil {
			return caller, req, fmt.Errorf("nativeValue: %w", err)
		}
	}
	return caller, req, nil
}

func (a *api) handleMulticallPreview(w http.ResponseWriter, r *http.Request) {
	var body multicallRequest
	if err := decodeBody(w, r, &body); err != nil {
		a.writeError(w, err)
		return
	}
	caller, req, err := a.toMulticall(body)
	if err != nil {
		a.writeError(w, badRequest(err))
		return
	}

	var results [][]byte
	err = a.withChain(func() error {
		results, err = a.d.helper.Preview(caller, req)
		return err
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	resp := multicallResponse{Results: make([]hexutil.Bytes, len(results))}
	for i, res := range results {
		resp.Results[i] = res
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFacts lists journaled facts: by id, by kind, or by emitter from a
// sequence number. The vault's own facts are the default.
func (a *api) handleFacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	var (
		records []*domain.FactRecord
		err     error
	)
	switch {
	case q.Get("id") != "":
		var rec *domain.FactRecord
		rec, err = a.facts.GetByID(ctx, q.Get("id"))
		if err == nil {
			records = []*domain.FactRecord{rec}
		}
	case q.Get("kind") != "":
		records, err = a.facts.GetByKind(ctx, domain.FactKind(q.Get("kind")))
	default:
		emitter := a.d.vault.Address()
		if raw := q.Get("emitter"); raw != "" {
			if emitter, err = a.d.resolve(raw); err != nil {
				a.writeError(w, badRequest(err))
				return
			}
		}
		var from int64
		if raw := q.Get("from"); raw != "" {
			if from, err = strconv.ParseInt(raw, 10, 64); err != nil {
				a.writeError(w, badRequest(fmt.Errorf("from: %w", err)))
				return
			}
		}
		records, err = a.facts.GetByEmitter(ctx, emitter.Hex(), from)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
			return
		}
		a.writeError(w, err)
		return
	}

	out := make([]feed.Message, len(records))
	for i, rec := range records {
		out[i] = feed.NewMessage(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleReport renders the vault report over [from, to] (Unix ms, default
// the last 24h) as Markdown, or the NAV series as CSV with format=csv.
func (a *api) handleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	end := a.clock().UnixMilli()
	start := end - (24 * time.Hour).Milliseconds()
	for _, p := range []struct {
		key string
		dst *int64
	}{{"from", &start}, {"to", &end}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			a.writeError(w, badRequest(fmt.Errorf("%s: %w", p.key, err)))
			return
		}
		*p.dst = v
	}
	vault := a.d.vault.Address().Hex()

	if q.Get("format") == "csv" {
		points, err := a.nav.GetByTimeRange(r.Context(), vault, start, end)
		if err != nil {
			a.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte(reporting.RenderCSV(points)))
		return
	}

	report, err := a.reports.Generate(r.Context(), vault, start, end)
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(reporting.RenderMarkdown(report)))
}

type statusView struct {
	BlockTime   uint64            `json:"blockTime"`
	Uptime      string            `json:"uptime"`
	FeedClients int               `json:"feedClients"`
	Accounts    map[string]string `json:"accounts"`
	Tokens      map[string]string `json:"tokens"`
	Helper      string            `json:"helper"`
}

func (a *api) handleStatus(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	view := statusView{
		BlockTime: a.d.env.Now(),
		Uptime:    time.Since(a.started).Round(time.Second).String(),
		Accounts:  make(map[string]string, len(a.d.accounts)),
		Tokens:    make(map[string]string, len(a.d.tokens)),
		Helper:    a.d.helper.Address().Hex(),
	}
	for _, name := range a.d.accountNames() {
		view.Accounts[name] = a.d.accounts[name].Hex()
	}
	for addr, info := range a.d.tokens {
		view.Tokens[info.Symbol] = addr.Hex()
	}
	a.mu.Unlock()

	if a.hub != nil {
		view.FeedClients = a.hub.Clients()
	}
	writeJSON(w, http.StatusOK, view)
}

type errorBody struct {
	Error     string `json:"error"`
	Codespace string `json:"codespace,omitempty"`
	Code      uint32 `json:"code,omitempty"`
}

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return requestError{err} }

// writeError maps vault errors to 422 with their code, malformed requests
// to 400, and anything else to 500.
func (a *api) writeError(w http.ResponseWriter, err error) {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	codespace, code, _ := sdkerrors.ABCIInfo(err, false)
	if codespace == vaulterrors.Codespace {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Codespace: codespace, Code: code})
		return
	}
	a.logger.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Errorf("decode body: %w", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseRaw(values []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(values))
	for i, s := range values {
		v, err := uint256.FromDecimal(s)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}
