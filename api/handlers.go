package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zaki9501/pikimon-mcp-server/indexer"
	"github.com/zaki9501/pikimon-mcp-server/internal/constants"
)

// BlockView is the REST shape of a block. Numeric fields are decimal strings
// for the same safe-integer reason as the streaming envelopes.
type BlockView struct {
	Number       string   `json:"number"`
	Hash         string   `json:"hash"`
	ParentHash   string   `json:"parentHash"`
	Timestamp    string   `json:"timestamp"`
	GasUsed      string   `json:"gasUsed"`
	GasLimit     string   `json:"gasLimit"`
	Miner        string   `json:"miner"`
	TxCount      int      `json:"txCount"`
	Transactions []string `json:"transactions,omitempty"`
}

func blockView(block *ethtypes.Block, includeTx bool) BlockView {
	view := BlockView{
		Number:     block.Number().String(),
		Hash:       block.Hash().Hex(),
		ParentHash: block.ParentHash().Hex(),
		Timestamp:  strconv.FormatUint(block.Time(), 10),
		GasUsed:    strconv.FormatUint(block.GasUsed(), 10),
		GasLimit:   strconv.FormatUint(block.GasLimit(), 10),
		Miner:      block.Coinbase().Hex(),
		TxCount:    len(block.Transactions()),
	}
	if includeTx {
		view.Transactions = make([]string, 0, len(block.Transactions()))
		for _, tx := range block.Transactions() {
			view.Transactions = append(view.Transactions, tx.Hash().Hex())
		}
	}
	return view
}

// handleHead returns the latest block number
func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	number, err := s.chain.HeadNumber(r.Context())
	if err != nil {
		s.logger.Error("head number lookup failed", zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	writeSuccess(w, map[string]string{"number": strconv.FormatUint(number, 10)})
}

// handleBlock returns a block by number; "latest" resolves to the current
// head. ?includeTx=true adds the transaction hash list.
func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "number")

	var number uint64
	var err error
	if strings.EqualFold(raw, "latest") {
		number, err = s.chain.HeadNumber(r.Context())
		if err != nil {
			s.logger.Error("head number lookup failed", zap.Error(err))
			writeUpstreamError(w, err)
			return
		}
	} else {
		number, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid block number")
			return
		}
	}

	includeTx := r.URL.Query().Get("includeTx") == "true"

	block, err := s.chain.BlockByNumber(r.Context(), number)
	if err != nil {
		s.logger.Error("block fetch failed", zap.Uint64("number", number), zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	writeSuccess(w, blockView(block, includeTx))
}

// ReceiptView is the REST shape of a transaction receipt
type ReceiptView struct {
	TxHash      string `json:"txHash"`
	BlockNumber string `json:"blockNumber"`
	GasUsed     string `json:"gasUsed"`
	Status      uint64 `json:"status"`
}

// handleReceipt returns a transaction receipt
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "hash")
	if !strings.HasPrefix(raw, "0x") || len(raw) != 66 {
		writeError(w, http.StatusBadRequest, "invalid transaction hash")
		return
	}

	receipt, err := s.chain.TransactionReceipt(r.Context(), common.HexToHash(raw))
	if err != nil {
		s.logger.Error("receipt fetch failed", zap.String("hash", raw), zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	writeSuccess(w, ReceiptView{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.String(),
		GasUsed:     strconv.FormatUint(receipt.GasUsed, 10),
		Status:      receipt.Status,
	})
}

// handleBalance returns the current balance of an address
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	balance, err := s.chain.Balance(r.Context(), common.HexToAddress(raw))
	if err != nil {
		s.logger.Error("balance fetch failed", zap.String("address", raw), zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	writeSuccess(w, map[string]string{
		"address": common.HexToAddress(raw).Hex(),
		"balance": balance.String(),
	})
}

// handleChainState returns the configured on-chain state read
func (s *Server) handleChainState(w http.ResponseWriter, r *http.Request) {
	result, err := s.chain.ChainState(r.Context())
	if err != nil {
		s.logger.Error("chain state read failed", zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	writeSuccess(w, map[string]string{"data": hexutil.Encode(result)})
}

// SubmitTxRequest is the body of a transaction submission
type SubmitTxRequest struct {
	Raw string `json:"raw"`
}

// handleSubmitTx submits a signed raw transaction
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	var req SubmitTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rawTx, err := hexutil.Decode(req.Raw)
	if err != nil || len(rawTx) == 0 {
		writeError(w, http.StatusBadRequest, "invalid raw transaction")
		return
	}

	hash, err := s.chain.SendRawTransaction(r.Context(), rawTx)
	if err != nil {
		s.logger.Error("transaction submission failed", zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	writeSuccess(w, map[string]string{"hash": hash.Hex()})
}

// indexerQuery extracts the shared pass-through parameters
func indexerQuery(r *http.Request) (indexer.Query, bool) {
	address := chi.URLParam(r, "address")
	if !common.IsHexAddress(address) {
		return indexer.Query{}, false
	}

	q := indexer.Query{
		Address: address,
		Cursor:  r.URL.Query().Get("cursor"),
		Limit:   constants.DefaultPaginationLimit,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > constants.MaxPaginationLimit {
			return indexer.Query{}, false
		}
		q.Limit = limit
	}
	return q, true
}

func (s *Server) handleIndexerPassThrough(w http.ResponseWriter, r *http.Request,
	fetch func(q indexer.Query) (json.RawMessage, error)) {

	q, ok := indexerQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address or pagination parameters")
		return
	}

	body, err := fetch(q)
	if err != nil {
		s.logger.Error("indexer pass-through failed",
			zap.String("address", q.Address), zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	writeSuccess(w, body)
}

func (s *Server) handleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	s.handleIndexerPassThrough(w, r, func(q indexer.Query) (json.RawMessage, error) {
		return s.indexer.AccountTransactions(r.Context(), q)
	})
}

func (s *Server) handleAccountTokens(w http.ResponseWriter, r *http.Request) {
	s.handleIndexerPassThrough(w, r, func(q indexer.Query) (json.RawMessage, error) {
		return s.indexer.AccountTokens(r.Context(), q)
	})
}

func (s *Server) handleAccountActivities(w http.ResponseWriter, r *http.Request) {
	s.handleIndexerPassThrough(w, r, func(q indexer.Query) (json.RawMessage, error) {
		return s.indexer.AccountActivities(r.Context(), q)
	})
}
